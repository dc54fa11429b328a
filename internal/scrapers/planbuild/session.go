package planbuild

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const report_client_acquire_session = "client.acquire-session"

// AcquireSession loads the public search page and pulls the session cookie and the
// anti-forgery token out of it. Any failure is an *AuthBootstrapError.
func (c *Client) AcquireSession(ctx context.Context) (Session, error) {
	fail := func(err *AuthBootstrapError) (Session, error) {
		c.tel.ReportBroken(report_client_acquire_session, err)
		return Session{}, err
	}

	// the bootstrap is attempted once, a failure ends the run
	res, err := c.http.R().
		SetContext(withoutRetries(ctx)).
		SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		Get(c.opts.Endpoints.Landing)
	if err != nil {
		return fail(&AuthBootstrapError{Reason: "landing page request", Err: err})
	}
	if res.StatusCode() != http.StatusOK {
		return fail(&AuthBootstrapError{
			Reason: "landing page request",
			Status: res.StatusCode(),
		})
	}

	credential := ""
	for _, cookie := range res.Cookies() {
		if cookie.Name == c.opts.SessionCookie && cookie.Value != "" {
			credential = cookie.Value
		}
	}
	if credential == "" {
		// the cookie may have been set on a redirect hop, the jar saw every hop
		credential = c.jar.stored(c.baseUrl, c.opts.SessionCookie)
	}
	if credential == "" {
		return fail(&AuthBootstrapError{
			Reason: "no " + c.opts.SessionCookie + " cookie in landing page response",
		})
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return fail(&AuthBootstrapError{Reason: "parse landing page", Err: err})
	}
	token, header := csrfFromDocument(doc)
	if token == "" {
		return fail(&AuthBootstrapError{Reason: "no anti-forgery token in landing page"})
	}

	c.tel.ReportDebug(report_client_acquire_session, "header", header)

	return Session{
		Credential: credential,
		CSRFToken:  token,
		CSRFHeader: header,
		IssuedAt:   time.Now().UTC(),
	}, nil
}

// csrfFromDocument reads the token and the header it belongs under from the page metadata,
// falling back to DefaultCSRFHeader when the header marker is missing.
func csrfFromDocument(doc *goquery.Document) (token, header string) {
	token = strings.TrimSpace(doc.Find(`meta[name="_csrf"]`).First().AttrOr("content", ""))
	header = strings.TrimSpace(doc.Find(`meta[name="_csrf_header"]`).First().AttrOr("content", ""))
	if header == "" {
		header = DefaultCSRFHeader
	}
	return token, header
}
