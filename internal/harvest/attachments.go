package harvest

import (
	"context"

	"planharvest/internal/components/telemetry"
	"planharvest/internal/records"
	"planharvest/internal/relay"
	"planharvest/internal/scrapers/planbuild"

	"golang.org/x/sync/errgroup"
)

const report_harvest_attachments = "harvest.attachments"

type AttachmentFailure struct {
	AttachmentID string
	Name         string
	Err          error
}

// AttachmentResult is the outcome for one manifest entry, Err is nil when it was relayed.
type AttachmentResult struct {
	AttachmentID string
	Name         string
	Err          error
}

// AttachmentReport summarizes the attachment work for one record. Results and Failed follow
// manifest order.
type AttachmentReport struct {
	Attempted   int
	Succeeded   int
	Failed      []AttachmentFailure
	Results     []AttachmentResult
	ManifestErr error
}

// AttachmentRelay moves every attachment of a record from the portal to the upstream store.
// A failing attachment never stops the others.
type AttachmentRelay struct {
	portal  Portal
	relay   Relay
	keeper  *sessionKeeper
	workers int
	tel     telemetry.API
}

func (a *AttachmentRelay) RelayAttachments(ctx context.Context, rec records.ApplicationRecord) AttachmentReport {
	var report AttachmentReport

	manifest, err := withSession(ctx, a.keeper, func(s planbuild.Session) ([]planbuild.Attachment, error) {
		return a.portal.FetchManifest(ctx, rec.UUID, s)
	})
	if err != nil {
		a.tel.ReportWarning(report_harvest_attachments, rec.CouncilReference, err)
		report.ManifestErr = err
		return report
	}

	results := make([]AttachmentResult, len(manifest))
	var group errgroup.Group
	group.SetLimit(max(a.workers, 1))
	for i, attachment := range manifest {
		group.Go(func() error {
			results[i] = AttachmentResult{
				AttachmentID: attachment.ID.String(),
				Name:         attachment.Name.String(),
				Err:          a.relayOne(ctx, rec, attachment),
			}
			return nil
		})
	}
	group.Wait()

	report.Attempted = len(results)
	report.Results = results
	for _, r := range results {
		if r.Err == nil {
			report.Succeeded++
			continue
		}
		report.Failed = append(report.Failed, AttachmentFailure(r))
	}
	return report
}

func (a *AttachmentRelay) relayOne(ctx context.Context, rec records.ApplicationRecord, attachment planbuild.Attachment) error {
	id := attachment.ID.String()
	content, err := withSession(ctx, a.keeper, func(s planbuild.Session) ([]byte, error) {
		return a.portal.DownloadAttachment(ctx, rec.UUID, id, s)
	})
	if err != nil {
		a.tel.ReportWarning(report_harvest_attachments, rec.CouncilReference, id, err)
		return err
	}

	err = a.relay.Relay(ctx, relay.Upload{
		UUID:             rec.UUID,
		CouncilReference: rec.CouncilReference,
		FileName:         planbuild.SanitizeName(attachment.Name.String()),
		Content:          content,
	})
	if err != nil {
		a.tel.ReportWarning(report_harvest_attachments, rec.CouncilReference, id, err)
		return err
	}
	return nil
}
