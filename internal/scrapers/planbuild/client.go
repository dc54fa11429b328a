// Package planbuild scrapes the advertisement search of the PlanBuild Tasmania portal.
//
// Every request after the session bootstrap is an "authenticated request": it carries the
// session cookie, the anti-forgery token under the header name the portal declared, an
// XMLHttpRequest marker and the browser user-agent. authRequest is the only place those are
// attached.
package planbuild

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"planharvest/internal/components/assert"
	"planharvest/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseUrl       = "https://portal.planbuild.tas.gov.au"
	DefaultSessionCookie = "JSESSIONID"
	DefaultCSRFHeader    = "X-CSRF-TOKEN"
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultPageSize      = 100
	DefaultMaxPages      = 10
)

// Endpoints are the paths of the portal, manifest and download are format strings taking the
// escaped record uuid (and attachment id).
type Endpoints struct {
	Landing  string
	Listing  string
	Manifest string
	Download string
}

var DefaultEndpoints = Endpoints{
	Landing:  "/external/advertisement/search",
	Listing:  "/api/advertisement/search",
	Manifest: "/api/advertisement/%s/attachments",
	Download: "/api/advertisement/%s/attachments/%s",
}

type Options struct {
	BaseUrl       string
	SessionCookie string
	UserAgent     string
	Endpoints     Endpoints

	Timeout           time.Duration
	Retries           int
	RequestsPerSecond float64

	PageSize       int
	MaxPages       int
	LegacyLgaField bool

	// CloudflareBypass wraps the transport with browser-like TLS settings.
	CloudflareBypass bool
	// HttpDump receives a full dump of every exchange when non-nil.
	HttpDump telemetry.MessageOutput
}

func (o Options) withDefaults() Options {
	if o.BaseUrl == "" {
		o.BaseUrl = DefaultBaseUrl
	}
	if o.SessionCookie == "" {
		o.SessionCookie = DefaultSessionCookie
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Endpoints == (Endpoints{}) {
		o.Endpoints = DefaultEndpoints
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	return o
}

type Client struct {
	http    *resty.Client
	baseUrl *url.URL
	jar     *sessionJar
	opts    Options
	tel     telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("planbuild", tel)
	opts = opts.withDefaults()

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := newSessionJar(opts.SessionCookie)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	// only transport failures and server errors are retried, a rejected session never is
	httpClient.SetRetryCount(opts.Retries)
	httpClient.SetRetryWaitTime(500 * time.Millisecond)
	httpClient.SetRetryMaxWaitTime(5 * time.Second)
	httpClient.AddRetryCondition(func(res *resty.Response, err error) bool {
		// a nil response means a request hook failed, the request never left
		if res == nil || res.Request == nil || noRetries(res.Request.Context()) {
			return false
		}
		if err != nil {
			return true
		}
		return res.StatusCode() >= http.StatusInternalServerError
	})

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	rateLimiter := rate.NewLimiter(limit, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, "scrapers/planbuild/http", tel, opts.HttpDump)

	return &Client{
		http:    httpClient,
		baseUrl: baseUrl,
		jar:     jar,
		opts:    opts,
		tel:     tel,
	}, nil
}

type noRetriesKeyType struct{}

var noRetriesKey noRetriesKeyType

// withoutRetries marks requests made with ctx as attempted exactly once.
func withoutRetries(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetriesKey, true)
}

func noRetries(ctx context.Context) bool {
	v, _ := ctx.Value(noRetriesKey).(bool)
	return v
}

// authRequest builds a request carrying everything the portal needs to accept it as part of
// session.
func (c *Client) authRequest(ctx context.Context, session Session) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetCookie(&http.Cookie{Name: c.opts.SessionCookie, Value: session.Credential}).
		SetHeader(session.CSRFHeader, session.CSRFToken).
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetHeader("accept", "application/json, text/plain, */*")
}

func isUnauthenticated(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
