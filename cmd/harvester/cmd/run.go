package cmd

import (
	"fmt"

	"planharvest/internal/components/serviceutil"
	"planharvest/internal/harvest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	runDumpDir       string
	runJurisdictions []string
)

func init() {
	runCmd.Flags().StringVar(&runDumpDir, "dump-http", "", "Write every http exchange into this directory.")
	runCmd.Flags().StringSliceVarP(&runJurisdictions, "jurisdiction", "j", nil, "Only harvest these jurisdiction codes.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--dump-http <dir>] [--jurisdiction <code>]...",
	Short: "Harvests every configured jurisdiction once.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		if len(runJurisdictions) > 0 {
			cfg.Jurisdictions = runJurisdictions
		}

		e, err := newEnv(cmd.Context(), cfg, runDumpDir)
		if err != nil {
			serviceutil.Fatal("failed to setup harvester", err)
		}
		defer e.Close()

		report, err := e.runOnce(cmd.Context())
		printReport(report)
		if err != nil {
			e.Close()
			serviceutil.Fatal("harvest failed", err)
		}
	},
}

func printReport(report harvest.RunReport) {
	t := newTable()
	t.SetTitle(fmt.Sprintf("Run %s", report.RunID))
	t.AppendHeader(table.Row{"Outcome", "Count"})
	t.AppendRows([]table.Row{
		{"Jurisdictions", report.Jurisdictions},
		{"Jurisdictions failed", report.JurisdictionsFailed},
		{"Records inserted", report.Inserted},
		{"Records skipped", report.Skipped},
		{"Records failed", report.RecordsFailed},
		{"Manifests failed", report.ManifestsFailed},
		{"Attachments relayed", report.AttachmentsRelayed},
		{"Attachments failed", report.AttachmentsFailed},
	})
	t.AppendFooter(table.Row{"Took", report.Duration().String()})
	t.Render()

	var failures []harvest.Event
	for _, e := range report.Events {
		if e.Kind.Failure() {
			failures = append(failures, e)
		}
	}
	if len(failures) == 0 {
		return
	}

	f := newTable()
	f.SetTitle("Failures")
	f.AppendHeader(table.Row{"Kind", "Jurisdiction", "Reference", "Attachment", "Error"})
	for _, e := range failures {
		f.AppendRow(table.Row{e.Kind, e.Jurisdiction, e.CouncilReference, e.AttachmentID, e.Err})
	}
	f.Render()
}
