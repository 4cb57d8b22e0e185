package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	"github.com/ducminhle1904/orb-breakout-bot/internal/journal"
	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
)

var xlsxPath string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the session journal",
	Long: `report reads the session journal and prints one row per trading
session: the outcome, the reason, and the order details when one was placed.
With --xlsx the same rows are exported to an Excel workbook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if !cfg.Journal.Enabled {
			log.Warn().Msg("Journal disabled in config; nothing to report")
			return nil
		}

		jrnl, err := journal.NewSQLite(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer jrnl.Close()

		records, err := jrnl.Sessions()
		if err != nil {
			return err
		}

		printSessions(records)

		if xlsxPath != "" {
			if err := journal.ExportXLSX(records, xlsxPath); err != nil {
				return err
			}
			log.Info().Str("path", xlsxPath).Int("sessions", len(records)).
				Msg("Excel report written")
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also export the report to this Excel file")
	rootCmd.AddCommand(reportCmd)
}

func printSessions(records []journal.SessionRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Date", "Symbol", "Outcome", "Direction", "Entry", "SL", "TP", "Volume", "Ticket", "Reason"})

	placed := 0
	for _, rec := range records {
		row := table.Row{rec.Date, rec.Symbol, string(rec.Outcome), rec.Direction}
		if rec.Outcome == session.OutcomeOrderPlaced {
			placed++
			row = append(row, rec.Entry, rec.StopLoss, rec.TakeProfit, rec.Volume, rec.TicketID, rec.Reason)
		} else {
			row = append(row, "", "", "", "", "", rec.Reason)
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "placed", placed})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Entry", Align: text.AlignRight},
		{Name: "SL", Align: text.AlignRight},
		{Name: "TP", Align: text.AlignRight},
		{Name: "Volume", Align: text.AlignRight},
	})
	t.Render()
}
