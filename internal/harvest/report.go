package harvest

import (
	"time"
)

type EventKind string

const (
	EventInserted          EventKind = "inserted"
	EventSkipped           EventKind = "skipped"
	EventRecordFailed      EventKind = "record-failed"
	EventListingFailed     EventKind = "listing-failed"
	EventManifestFailed    EventKind = "manifest-failed"
	EventAttachmentRelayed EventKind = "attachment-relayed"
	EventAttachmentFailed  EventKind = "attachment-failed"
)

// Failure reports whether the event counts towards the failure threshold of a run.
func (k EventKind) Failure() bool {
	switch k {
	case EventRecordFailed, EventListingFailed, EventManifestFailed, EventAttachmentFailed:
		return true
	}
	return false
}

// Event is one terminal outcome of a run, it carries enough context to find the affected
// row or document afterwards.
type Event struct {
	Kind             EventKind
	Jurisdiction     string
	CouncilReference string
	AttachmentID     string
	Err              error
}

type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Jurisdictions       int
	JurisdictionsFailed int
	Inserted            int
	Skipped             int
	RecordsFailed       int
	ManifestsFailed     int
	AttachmentsRelayed  int
	AttachmentsFailed   int

	// Events is every outcome in the order it happened.
	Events []Event
}

func (r *RunReport) emit(e Event) {
	r.Events = append(r.Events, e)
	switch e.Kind {
	case EventInserted:
		r.Inserted++
	case EventSkipped:
		r.Skipped++
	case EventRecordFailed:
		r.RecordsFailed++
	case EventListingFailed:
		r.JurisdictionsFailed++
	case EventManifestFailed:
		r.ManifestsFailed++
	case EventAttachmentRelayed:
		r.AttachmentsRelayed++
	case EventAttachmentFailed:
		r.AttachmentsFailed++
	}
}

// Failures is the number of failure outcomes so far.
func (r RunReport) Failures() int {
	return r.JurisdictionsFailed + r.RecordsFailed + r.ManifestsFailed + r.AttachmentsFailed
}

// EventsOf returns the events of one kind in order.
func (r RunReport) EventsOf(kind EventKind) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
