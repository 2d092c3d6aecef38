package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"fetch404/internal/archive"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyArchive string
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "How many envelopes to list.")
	historyCmd.Flags().StringVar(&historyArchive, "archive", "", "Read this sqlite file instead of the configured archive.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <limit>] [--archive <file>]",
	Short: "Lists the most recently archived envelopes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if historyArchive != "" {
			cfg.Archive = archive.Config{File: historyArchive}
		}
		if !cfg.Archive.Enabled() {
			return errors.New("no archive is configured, pass --archive or set archive in the config")
		}
		if historyLimit <= 0 {
			return fmt.Errorf("limit must be positive, got %d", historyLimit)
		}

		db, err := cfg.Archive.OpenDB()
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		store, err := archive.Open(ctx, db, chrono.StandardImpl{}, telemetry.SlogAPI{})
		if err != nil {
			db.Close()
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()

		records, err := store.Recent(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"RUN", "TYPE", "INDICATOR", "SUCCESS", "KIND", "AT"})
		for _, r := range records {
			t.AppendRow(table.Row{
				r.RunID,
				r.Type,
				r.Indicator,
				strconv.FormatBool(r.Success),
				r.Kind,
				r.CreatedAt.Format(time.DateTime),
			})
		}
		t.AppendFooter(table.Row{fmt.Sprintf("%d envelopes", len(records))})
		t.Render()
		return nil
	},
}
