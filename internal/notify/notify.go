// Package notify mails a summary of each harvest run.
package notify

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"planharvest/internal/components/assert"
	"planharvest/internal/components/telemetry"
	"planharvest/internal/harvest"
	"planharvest/internal/scrapers/planbuild"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
)

const report_notify_send = "notify.send"

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Config struct {
	Smtp SmtpConfig `json:"smtp"`
	To   []string   `json:"to"`
}

// Enabled reports whether there is a server and someone to send to.
func (c Config) Enabled() bool {
	return c.Smtp.Server != "" && len(c.To) > 0
}

type Notifier struct {
	config Config
	tel    telemetry.API
}

func NewNotifier(config Config, tel telemetry.API) *Notifier {
	assert.NotNil(tel)
	if config.Smtp.Port == 0 {
		config.Smtp.Port = 587
	}
	return &Notifier{
		config: config,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
}

// Summary renders the subject and plain text body describing a run.
func Summary(report harvest.RunReport, runErr error) (subject, body string) {
	status := "ok"
	switch {
	case runErr == nil && report.Failures() > 0:
		status = fmt.Sprintf("%d failures", report.Failures())
	case errors.Is(runErr, harvest.ErrTooManyFailures):
		status = "aborted, too many failures"
	case runErr != nil:
		var bootstrapErr *planbuild.AuthBootstrapError
		if errors.As(runErr, &bootstrapErr) {
			status = "no session"
		} else {
			status = "failed"
		}
	}
	subject = fmt.Sprintf(
		"planharvest %s: %d new, %d duplicate (%s)",
		report.StartedAt.Format("2006-01-02"),
		report.Inserted,
		report.Skipped,
		status,
	)

	counts := table.NewWriter()
	counts.SetStyle(table.StyleLight)
	counts.AppendHeader(table.Row{"Outcome", "Count"})
	counts.AppendRows([]table.Row{
		{"Jurisdictions", report.Jurisdictions},
		{"Jurisdictions failed", report.JurisdictionsFailed},
		{"Records inserted", report.Inserted},
		{"Records skipped", report.Skipped},
		{"Records failed", report.RecordsFailed},
		{"Manifests failed", report.ManifestsFailed},
		{"Attachments relayed", report.AttachmentsRelayed},
		{"Attachments failed", report.AttachmentsFailed},
	})

	var out strings.Builder
	fmt.Fprintf(&out, "Run %s finished in %s.\n\n", report.RunID, report.Duration().Round(time.Second))
	if runErr != nil {
		fmt.Fprintf(&out, "Error: %s\n\n", runErr)
	}
	out.WriteString(counts.Render())
	out.WriteString("\n")

	var failures []harvest.Event
	for _, e := range report.Events {
		if e.Kind.Failure() {
			failures = append(failures, e)
		}
	}
	if len(failures) > 0 {
		failed := table.NewWriter()
		failed.SetStyle(table.StyleLight)
		failed.AppendHeader(table.Row{"Kind", "Jurisdiction", "Reference", "Attachment", "Error"})
		for _, e := range failures {
			failed.AppendRow(table.Row{e.Kind, e.Jurisdiction, e.CouncilReference, e.AttachmentID, e.Err})
		}
		out.WriteString("\n")
		out.WriteString(failed.Render())
		out.WriteString("\n")
	}

	return subject, out.String()
}

// SendRunSummary mails the summary of a run to every configured recipient.
func (n *Notifier) SendRunSummary(report harvest.RunReport, runErr error) error {
	if !n.config.Enabled() {
		return nil
	}

	subject, body := Summary(report, runErr)
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("planharvest <%s>", n.config.Smtp.EmailAddress)
	mail.To = n.config.To
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", n.config.Smtp.Server, n.config.Smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", n.config.Smtp.EmailAddress, n.config.Smtp.Password, n.config.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		n.tel.ReportBroken(report_notify_send, err)
		return fmt.Errorf("send run summary: %w", err)
	}

	n.tel.ReportDebug(report_notify_send, report.RunID, len(n.config.To))
	return nil
}
