package planbuild

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Session is the authentication state of one harvest run. It is a value, acquiring a new
// session produces a new one rather than mutating the old.
type Session struct {
	Credential string
	CSRFToken  string
	CSRFHeader string
	IssuedAt   time.Time
}

// FlexString decodes a JSON string, number or boolean into its text, anything else
// (null, objects, arrays) decodes to "". The portal has changed field types between
// versions so decoding never fails on shape.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = ""
			return nil
		}
		*f = FlexString(strings.TrimSpace(s))
	case '{', '[', 'n':
		*f = ""
	default:
		*f = FlexString(string(data))
	}
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// RawListingRecord holds the subset of a listing item that is trusted. startDate and endDate
// are epoch milliseconds but are kept raw, interpreting them is the normalizer's business.
type RawListingRecord struct {
	Description     FlexString      `json:"description"`
	AddressString   FlexString      `json:"addressString"`
	ReferenceNumber FlexString      `json:"referenceNumber"`
	Pid             FlexString      `json:"pid"`
	UUID            FlexString      `json:"uuid"`
	StartDate       json.RawMessage `json:"startDate"`
	EndDate         json.RawMessage `json:"endDate"`
}

// Attachment is one entry of a record's attachment manifest.
type Attachment struct {
	ID   FlexString `json:"id"`
	Name FlexString `json:"name"`
}

type manifestResponse struct {
	Attachments *[]Attachment `json:"attachments"`
}
