package planbuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	report_client_fetch_manifest      = "client.fetch-manifest"
	report_client_download_attachment = "client.download-attachment"
)

// FetchManifest lists the attachments of the record identified by uuid.
func (c *Client) FetchManifest(ctx context.Context, uuid string, session Session) ([]Attachment, error) {
	if uuid == "" {
		return nil, &ManifestFetchError{Err: errors.New("record has no uuid")}
	}

	res, err := c.authRequest(ctx, session).
		Get(fmt.Sprintf(c.opts.Endpoints.Manifest, url.PathEscape(uuid)))
	if err != nil {
		return nil, &ManifestFetchError{UUID: uuid, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		merr := &ManifestFetchError{UUID: uuid, Status: res.StatusCode()}
		if isUnauthenticated(res.StatusCode()) {
			merr.Err = ErrUnauthenticated
		}
		return nil, merr
	}

	var manifest manifestResponse
	err = json.Unmarshal(res.Body(), &manifest)
	if err != nil {
		return nil, &ManifestFetchError{
			UUID:   uuid,
			Status: res.StatusCode(),
			Err:    fmt.Errorf("json unmarshal: %w", err),
		}
	}
	if manifest.Attachments == nil {
		return nil, &ManifestFetchError{
			UUID:   uuid,
			Status: res.StatusCode(),
			Err:    errors.New("manifest has no attachments field"),
		}
	}

	c.tel.ReportDebug(report_client_fetch_manifest, uuid, len(*manifest.Attachments))
	return *manifest.Attachments, nil
}

// DownloadAttachment returns the raw content of one attachment.
func (c *Client) DownloadAttachment(ctx context.Context, uuid, attachmentId string, session Session) ([]byte, error) {
	res, err := c.authRequest(ctx, session).
		SetHeader("accept", "*/*").
		Get(fmt.Sprintf(
			c.opts.Endpoints.Download,
			url.PathEscape(uuid),
			url.PathEscape(attachmentId),
		))
	if err != nil {
		return nil, &AttachmentDownloadError{UUID: uuid, AttachmentID: attachmentId, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		derr := &AttachmentDownloadError{
			UUID:         uuid,
			AttachmentID: attachmentId,
			Status:       res.StatusCode(),
		}
		if isUnauthenticated(res.StatusCode()) {
			derr.Err = ErrUnauthenticated
		}
		return nil, derr
	}

	c.tel.ReportDebug(report_client_download_attachment, uuid, attachmentId, len(res.Body()))
	return res.Body(), nil
}

// SanitizeName turns a declared attachment name into a token safe for file systems and
// multipart headers. ASCII letters, digits, '.' and '-' are kept, every other rune becomes '_'.
func SanitizeName(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	if out == "" {
		return "attachment"
	}
	return out
}
