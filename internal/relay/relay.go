// Package relay forwards downloaded attachments to the upstream document store.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"planharvest/internal/components/assert"
	"planharvest/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

const report_relay_upload = "relay.upload"

type Options struct {
	Url     string
	Token   string
	Timeout time.Duration
	// HttpDump receives a full dump of every exchange when non-nil.
	HttpDump telemetry.MessageOutput
}

// Upload is one attachment and the record it belongs to.
type Upload struct {
	UUID             string
	CouncilReference string
	// FileName must already be sanitized.
	FileName string
	Content  []byte
}

// AttachmentRelayError is a relay that the upstream did not accept. The download is never
// repeated because of it.
type AttachmentRelayError struct {
	CouncilReference string
	FileName         string
	Status           int
	Body             string
	Err              error
}

func (e *AttachmentRelayError) Error() string {
	msg := fmt.Sprintf("relay: upload %s of %s", e.FileName, e.CouncilReference)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	return msg
}

func (e *AttachmentRelayError) Unwrap() error {
	return e.Err
}

type Client struct {
	http  *resty.Client
	url   string
	token string
	tel   telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	if opts.Url == "" {
		return nil, errors.New("relay: no upstream url configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	tel = telemetry.NewScopedAPI("relay", tel)

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)
	// the multipart body is a one-shot reader
	httpClient.SetRetryCount(0)
	telemetry.InstrumentResty(httpClient, "relay/http", tel, opts.HttpDump)

	return &Client{
		http:  httpClient,
		url:   opts.Url,
		token: opts.Token,
		tel:   tel,
	}, nil
}

// Relay posts the attachment as multipart form data. Anything other than a 200 is an
// *AttachmentRelayError.
func (c *Client) Relay(ctx context.Context, up Upload) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetFileReader("pdf", up.FileName, bytes.NewReader(up.Content)).
		SetMultipartFormData(map[string]string{
			"uuid":              up.UUID,
			"council_reference": up.CouncilReference,
			"token":             c.token,
		}).
		Post(c.url)
	if err != nil {
		rerr := &AttachmentRelayError{
			CouncilReference: up.CouncilReference,
			FileName:         up.FileName,
			Err:              err,
		}
		c.tel.ReportWarning(report_relay_upload, rerr)
		return rerr
	}
	if res.StatusCode() != http.StatusOK {
		body := res.String()
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		rerr := &AttachmentRelayError{
			CouncilReference: up.CouncilReference,
			FileName:         up.FileName,
			Status:           res.StatusCode(),
			Body:             body,
		}
		c.tel.ReportWarning(report_relay_upload, rerr)
		return rerr
	}

	c.tel.ReportDebug(report_relay_upload, up.CouncilReference, up.FileName, len(up.Content))
	return nil
}
