// Package records holds the canonical shape of a planning application and the mapping from
// the portal's listing items into it.
package records

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"planharvest/internal/scrapers/planbuild"
)

// ApplicationRecord is one persisted planning application. CouncilReference is the natural key.
type ApplicationRecord struct {
	CouncilReference    string
	Description         string
	DateScraped         time.Time
	DateReceived        *time.Time
	OnNoticeTo          *time.Time
	Address             string
	Applicant           string
	Owner               string
	StageDescription    string
	StageStatus         string
	DocumentDescription string
	TitleReference      string
	PidReference        string
	UUID                string
	// Jurisdiction is the code the record was first harvested under.
	Jurisdiction string
}

var (
	earliestDate = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	latestDate   = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Normalize maps a listing item into an ApplicationRecord. It never fails, fields the portal
// does not send (applicant, owner, stage and document descriptions, title reference) are left
// empty.
func Normalize(raw planbuild.RawListingRecord, jurisdiction string, scrapedAt time.Time) ApplicationRecord {
	rec := ApplicationRecord{
		CouncilReference: strings.TrimSpace(raw.ReferenceNumber.String()),
		Description:      strings.TrimSpace(raw.Description.String()),
		DateScraped:      scrapedAt.UTC(),
		Address:          strings.TrimSpace(raw.AddressString.String()),
		PidReference:     strings.TrimSpace(raw.Pid.String()),
		UUID:             strings.TrimSpace(raw.UUID.String()),
		Jurisdiction:     jurisdiction,
	}
	if date, ok := EpochMillisDate(raw.StartDate); ok {
		rec.DateReceived = &date
	}
	if date, ok := EpochMillisDate(raw.EndDate); ok {
		rec.OnNoticeTo = &date
	}
	return rec
}

// EpochMillisDate reads a JSON number (or a string holding one) of milliseconds since the
// epoch and returns the UTC calendar date it falls on. ok is false when the value is absent,
// not numeric, or outside [1990-01-01, 2100-01-01).
func EpochMillisDate(raw json.RawMessage) (date time.Time, ok bool) {
	text := bytes.TrimSpace(raw)
	if len(text) == 0 || bytes.Equal(text, []byte("null")) {
		return time.Time{}, false
	}
	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(text, &s); err != nil {
			return time.Time{}, false
		}
		text = []byte(strings.TrimSpace(s))
	}

	millis, err := strconv.ParseFloat(string(text), 64)
	if err != nil || math.IsNaN(millis) || math.IsInf(millis, 0) {
		return time.Time{}, false
	}
	// bounds are checked before converting so huge values cannot overflow
	if millis < float64(earliestDate.UnixMilli()) || millis >= float64(latestDate.UnixMilli()) {
		return time.Time{}, false
	}

	seconds := int64(math.Floor(millis / 1000))
	t := time.Unix(seconds, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}
