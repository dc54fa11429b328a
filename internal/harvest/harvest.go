// Package harvest drives a full harvest run: one session, every configured jurisdiction in
// order, each listed record normalized, stored and its attachments relayed.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"planharvest/internal/components/assert"
	"planharvest/internal/components/chrono"
	"planharvest/internal/components/telemetry"
	"planharvest/internal/records"
	"planharvest/internal/relay"
	"planharvest/internal/scrapers/planbuild"
	"planharvest/internal/store"

	random "github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_harvest_run          = "harvest.run"
	report_harvest_jurisdiction = "harvest.jurisdiction"
	report_harvest_record       = "harvest.record"
)

var (
	tracer = otel.Tracer("planharvest/harvest")
	meter  = otel.Meter("planharvest/harvest")

	recordsInserted, _    = meter.Int64Counter("records_inserted")
	recordsSkipped, _     = meter.Int64Counter("records_skipped")
	attachmentsRelayed, _ = meter.Int64Counter("attachments_relayed")
	attachmentsFailed, _  = meter.Int64Counter("attachments_failed")
)

// ErrTooManyFailures is returned by Run when the failure threshold was crossed.
var ErrTooManyFailures = errors.New("harvest: too many failures")

// Portal is the part of the planbuild client a run uses.
type Portal interface {
	AcquireSession(ctx context.Context) (planbuild.Session, error)
	FetchListing(ctx context.Context, code string, session planbuild.Session) ([]planbuild.RawListingRecord, error)
	FetchManifest(ctx context.Context, uuid string, session planbuild.Session) ([]planbuild.Attachment, error)
	DownloadAttachment(ctx context.Context, uuid, attachmentId string, session planbuild.Session) ([]byte, error)
}

type Relay interface {
	Relay(ctx context.Context, up relay.Upload) error
}

type Store interface {
	Persist(ctx context.Context, rec records.ApplicationRecord) (store.Outcome, error)
}

type RelayPolicy string

const (
	// RelayAlways relays attachments of duplicates as well.
	RelayAlways RelayPolicy = "always"
	// RelayInsertedOnly skips attachment work for records that were already stored.
	RelayInsertedOnly RelayPolicy = "inserted-only"
)

func (p RelayPolicy) Valid() bool {
	return p == RelayAlways || p == RelayInsertedOnly
}

type Options struct {
	Jurisdictions     []string
	RelayPolicy       RelayPolicy
	AttachmentWorkers int
	// MaxFailures stops the run once more failures than this were seen, 0 disables it.
	MaxFailures int
}

type Harvester struct {
	portal      Portal
	store       Store
	keeper      *sessionKeeper
	attachments *AttachmentRelay
	clock       chrono.API
	opts        Options
	tel         telemetry.API
}

func NewHarvester(
	portal Portal,
	writer Store,
	upstream Relay,
	clock chrono.API,
	opts Options,
	tel telemetry.API,
) *Harvester {
	assert.NotNil(portal)
	assert.NotNil(writer)
	assert.NotNil(upstream)
	assert.NotNil(clock)
	assert.NotNil(tel)

	if opts.RelayPolicy == "" {
		opts.RelayPolicy = RelayAlways
	}
	if opts.AttachmentWorkers <= 0 {
		opts.AttachmentWorkers = 1
	}

	tel = telemetry.NewScopedAPI("harvest", tel)
	keeper := &sessionKeeper{portal: portal, tel: tel}
	return &Harvester{
		portal: portal,
		store:  writer,
		keeper: keeper,
		attachments: &AttachmentRelay{
			portal:  portal,
			relay:   upstream,
			keeper:  keeper,
			workers: opts.AttachmentWorkers,
			tel:     tel,
		},
		clock: clock,
		opts:  opts,
		tel:   tel,
	}
}

// Attachments returns the relay stage the harvester uses, sharing its session.
func (h *Harvester) Attachments() *AttachmentRelay {
	return h.attachments
}

// JurisdictionListing is the listing of one jurisdiction, Err is set when it could not be
// fetched.
type JurisdictionListing struct {
	Code    string
	Records []planbuild.RawListingRecord
	Err     error
}

// Jurisdictions lists each code in order, lazily. A failing jurisdiction is yielded with its
// error and iteration moves on to the next one.
func (h *Harvester) Jurisdictions(ctx context.Context, jurisdictionCodes []string) iter.Seq[JurisdictionListing] {
	return func(yield func(JurisdictionListing) bool) {
		for _, code := range jurisdictionCodes {
			if ctx.Err() != nil {
				return
			}

			listCtx, span := tracer.Start(ctx, "harvest.listing", trace.WithAttributes(
				attribute.String("jurisdiction", code),
			))
			raw, err := withSession(listCtx, h.keeper, func(s planbuild.Session) ([]planbuild.RawListingRecord, error) {
				return h.portal.FetchListing(listCtx, code, s)
			})
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "listing failed")
				h.tel.ReportWarning(report_harvest_jurisdiction, code, err)
			} else {
				span.SetAttributes(attribute.Int("records", len(raw)))
			}
			span.End()

			if !yield(JurisdictionListing{Code: code, Records: raw, Err: err}) {
				return
			}
		}
	}
}

func (h *Harvester) newRunId() string {
	id, err := random.String(12)
	if err != nil {
		return h.clock.Now().Format("20060102T150405")
	}
	return id
}

// Run harvests every configured jurisdiction once. It fails outright only when no session
// can be established, when the failure threshold is crossed (ErrTooManyFailures) or when ctx
// is cancelled. The report is filled in all cases.
func (h *Harvester) Run(ctx context.Context) (report RunReport, err error) {
	report.RunID = h.newRunId()
	report.StartedAt = h.clock.Now()

	ctx, span := tracer.Start(ctx, "harvest.run", trace.WithAttributes(
		attribute.String("run_id", report.RunID),
		attribute.Int("jurisdictions", len(h.opts.Jurisdictions)),
	))
	defer func() {
		report.FinishedAt = h.clock.Now()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		h.tel.ReportCount("records.inserted", int64(report.Inserted))
		h.tel.ReportCount("records.skipped", int64(report.Skipped))
		h.tel.ReportCount("attachments.relayed", int64(report.AttachmentsRelayed))
		h.tel.ReportCount("attachments.failed", int64(report.AttachmentsFailed))
	}()

	err = h.keeper.start(ctx)
	if err != nil {
		h.tel.ReportBroken(report_harvest_run, err)
		return report, err
	}

	for listing := range h.Jurisdictions(ctx, h.opts.Jurisdictions) {
		report.Jurisdictions++
		if listing.Err != nil {
			report.emit(Event{
				Kind:         EventListingFailed,
				Jurisdiction: listing.Code,
				Err:          listing.Err,
			})
			if h.tooManyFailures(report) {
				return report, h.abort(report)
			}
			continue
		}

		err = h.harvestJurisdiction(ctx, listing, &report)
		if err != nil {
			return report, err
		}
	}

	return report, ctx.Err()
}

func (h *Harvester) tooManyFailures(report RunReport) bool {
	return h.opts.MaxFailures > 0 && report.Failures() > h.opts.MaxFailures
}

func (h *Harvester) abort(report RunReport) error {
	h.tel.ReportBroken(report_harvest_run, "failure threshold crossed", report.Failures())
	return fmt.Errorf("%w: %d failures (limit %d)", ErrTooManyFailures, report.Failures(), h.opts.MaxFailures)
}

func (h *Harvester) harvestJurisdiction(ctx context.Context, listing JurisdictionListing, report *RunReport) error {
	ctx, span := tracer.Start(ctx, "harvest.jurisdiction", trace.WithAttributes(
		attribute.String("jurisdiction", listing.Code),
		attribute.Int("records", len(listing.Records)),
	))
	defer span.End()

	h.tel.ReportDebug(report_harvest_jurisdiction, listing.Code, len(listing.Records))

	for _, raw := range listing.Records {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := records.Normalize(raw, listing.Code, h.clock.Now())
		h.harvestRecord(ctx, rec, report)
		if h.tooManyFailures(*report) {
			return h.abort(*report)
		}
	}
	return nil
}

func (h *Harvester) harvestRecord(ctx context.Context, rec records.ApplicationRecord, report *RunReport) {
	ctx, span := tracer.Start(ctx, "harvest.record", trace.WithAttributes(
		attribute.String("council_reference", rec.CouncilReference),
	))
	defer span.End()

	outcome, err := h.store.Persist(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		h.tel.ReportWarning(report_harvest_record, rec.Jurisdiction, rec.CouncilReference, err)
		report.emit(Event{
			Kind:             EventRecordFailed,
			Jurisdiction:     rec.Jurisdiction,
			CouncilReference: rec.CouncilReference,
			Err:              err,
		})
		return
	}
	span.SetAttributes(attribute.String("outcome", outcome.String()))

	switch outcome.Status {
	case store.Inserted:
		recordsInserted.Add(ctx, 1, metric.WithAttributes(attribute.String("jurisdiction", rec.Jurisdiction)))
		report.emit(Event{Kind: EventInserted, Jurisdiction: rec.Jurisdiction, CouncilReference: rec.CouncilReference})
	case store.Skipped:
		recordsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("jurisdiction", rec.Jurisdiction)))
		report.emit(Event{Kind: EventSkipped, Jurisdiction: rec.Jurisdiction, CouncilReference: rec.CouncilReference})
		if h.opts.RelayPolicy == RelayInsertedOnly {
			return
		}
	}

	attachmentReport := h.attachments.RelayAttachments(ctx, rec)
	if attachmentReport.ManifestErr != nil {
		report.emit(Event{
			Kind:             EventManifestFailed,
			Jurisdiction:     rec.Jurisdiction,
			CouncilReference: rec.CouncilReference,
			Err:              attachmentReport.ManifestErr,
		})
		return
	}
	for _, result := range attachmentReport.Results {
		event := Event{
			Kind:             EventAttachmentRelayed,
			Jurisdiction:     rec.Jurisdiction,
			CouncilReference: rec.CouncilReference,
			AttachmentID:     result.AttachmentID,
			Err:              result.Err,
		}
		if result.Err != nil {
			event.Kind = EventAttachmentFailed
			attachmentsFailed.Add(ctx, 1)
		} else {
			attachmentsRelayed.Add(ctx, 1)
		}
		report.emit(event)
	}
}
