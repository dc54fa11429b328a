package cmd

import (
	"fmt"
	"strings"

	"planharvest/internal/lga"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	lgasCmd.AddCommand(lgasListCmd)
	lgasCmd.AddCommand(lgasResolveCmd)
	rootCmd.AddCommand(lgasCmd)
}

var lgasCmd = &cobra.Command{
	Use:   "lgas",
	Short: "Looks up Tasmanian councils by name, the portal's LGA codes are configured separately.",
}

var lgasListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every council in the catalog.",
	Run: func(cmd *cobra.Command, args []string) {
		t := newTable()
		t.AppendHeader(table.Row{"Slug", "Name"})
		for _, c := range lga.Catalog {
			t.AppendRow(table.Row{c.Slug, c.Name})
		}
		t.Render()
	},
}

var lgasResolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Finds the councils closest to a name.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t := newTable()
		t.AppendHeader(table.Row{"Slug", "Name", "Similarity"})
		for _, m := range lga.Resolve(strings.Join(args, " "), 5) {
			t.AppendRow(table.Row{m.Council.Slug, m.Council.Name, fmt.Sprintf("%.2f", m.Similarity)})
		}
		t.Render()
	},
}
