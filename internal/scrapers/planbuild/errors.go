package planbuild

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is wrapped by fetch errors when the portal rejected the session.
var ErrUnauthenticated = errors.New("session rejected as unauthenticated")

const maxErrorBody = 512

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// AuthBootstrapError means no session could be established, nothing else can be harvested.
type AuthBootstrapError struct {
	Reason string
	Status int
	Err    error
}

func (e *AuthBootstrapError) Error() string {
	msg := fmt.Sprintf("planbuild: acquire session: %s", e.Reason)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *AuthBootstrapError) Unwrap() error {
	return e.Err
}

// ListingFetchError is the failure of one jurisdiction's listing.
type ListingFetchError struct {
	Jurisdiction string
	Status       int
	Body         string
	Err          error
}

func (e *ListingFetchError) Error() string {
	msg := fmt.Sprintf("planbuild: fetch listing %s", e.Jurisdiction)
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

func (e *ListingFetchError) Unwrap() error {
	return e.Err
}

// ManifestFetchError is the failure to list a record's attachments.
type ManifestFetchError struct {
	UUID   string
	Status int
	Err    error
}

func (e *ManifestFetchError) Error() string {
	msg := fmt.Sprintf("planbuild: fetch attachment manifest %q", e.UUID)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *ManifestFetchError) Unwrap() error {
	return e.Err
}

// AttachmentDownloadError is the failure to download a single attachment.
type AttachmentDownloadError struct {
	UUID         string
	AttachmentID string
	Status       int
	Err          error
}

func (e *AttachmentDownloadError) Error() string {
	msg := fmt.Sprintf("planbuild: download attachment %s of %q", e.AttachmentID, e.UUID)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *AttachmentDownloadError) Unwrap() error {
	return e.Err
}
