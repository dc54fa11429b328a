package cmd

import (
	"context"
	"errors"
	"time"

	"planharvest/internal/components/serviceutil"
	"planharvest/internal/records"
	"planharvest/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var recordsLimit int

func init() {
	recordsListCmd.Flags().IntVarP(&recordsLimit, "limit", "n", 50, "The maximum number of records to list.")
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	rootCmd.AddCommand(recordsCmd)
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspects the stored application records.",
}

func openStore(ctx context.Context) *store.Store {
	cfg, err := loadConfig(configPath)
	if err != nil {
		serviceutil.Fatal("failed to load config", err)
	}
	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		serviceutil.Fatal("failed to open store", err)
	}
	return s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

var recordsListCmd = &cobra.Command{
	Use:   "list [--limit <n>]",
	Short: "Lists the most recently harvested records.",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore(cmd.Context())
		defer s.Close()

		list, err := s.List(cmd.Context(), recordsLimit)
		if err != nil {
			serviceutil.Fatal("failed to list records", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Reference", "Jurisdiction", "Received", "On notice to", "Address"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Address", WidthMax: 48, WidthMaxEnforcer: text.Trim},
		})
		for _, rec := range list {
			t.AppendRow(table.Row{
				rec.CouncilReference,
				rec.Jurisdiction,
				formatDate(rec.DateReceived),
				formatDate(rec.OnNoticeTo),
				rec.Address,
			})
		}
		t.Render()
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <council_reference>",
	Short: "Shows every stored field of one record.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore(cmd.Context())
		defer s.Close()

		rec, err := s.Get(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			s.Close()
			serviceutil.Fatal("no such record", err)
		}
		if err != nil {
			s.Close()
			serviceutil.Fatal("failed to read record", err)
		}
		printRecord(rec)
	},
}

func printRecord(rec records.ApplicationRecord) {
	t := newTable()
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 72},
	})
	t.AppendRows([]table.Row{
		{"Council reference", rec.CouncilReference},
		{"Jurisdiction", rec.Jurisdiction},
		{"Description", rec.Description},
		{"Address", rec.Address},
		{"Date received", formatDate(rec.DateReceived)},
		{"On notice to", formatDate(rec.OnNoticeTo)},
		{"Date scraped", rec.DateScraped.Format(time.RFC3339)},
		{"PID", rec.PidReference},
		{"UUID", rec.UUID},
		{"Applicant", rec.Applicant},
		{"Owner", rec.Owner},
		{"Stage", rec.StageDescription},
		{"Stage status", rec.StageStatus},
		{"Document", rec.DocumentDescription},
		{"Title reference", rec.TitleReference},
	})
	t.Render()
}
