package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fetch404/internal/config"
	"fetch404/internal/dispatch"
	"fetch404/internal/server"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	runPayload string
	runSummary bool
	runArchive string
)

func init() {
	runCmd.Flags().StringVarP(&runPayload, "payload", "p", "", "The job request, inline JSON or a path to a JSON file.")
	runCmd.Flags().BoolVar(&runSummary, "summary", false, "Print the delivered items as a table on stderr.")
	runCmd.Flags().StringVar(&runArchive, "archive", "", "Archive the envelope into this sqlite file.")
	runCmd.MarkFlagRequired("payload")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run -p <payload>",
	Short: "Runs a single job and delivers its envelope to the callback url.",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := runJob(cmd)
		// printed on every outcome, the exit code tells them apart
		fmt.Fprintln(cmd.OutOrStdout(), "done.")
		return err
	},
}

func runJob(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if runArchive != "" {
		cfg.Archive.File = runArchive
		cfg.Archive.Url = ""
	}

	raw, err := dispatch.ReadPayload(runPayload)
	if err != nil {
		return err
	}

	d, err := buildDeps(ctx, cfg, "fetch404-run", nil)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d.Close(shutdownCtx)
	}()

	report, err := runRequest(ctx, d.dispatcher, raw)
	if runSummary {
		printSummary(report)
	}
	if err != nil {
		slog.Error("job failed", "run_id", report.RunID, "err", err)
		return errJobFailed
	}

	slog.Info("job finished", "run_id", report.RunID, "items", report.Items, "attempts", report.Attempts)
	return nil
}

// runRequest parses and handles a payload, a payload that cannot be parsed
// has no callback to deliver to.
func runRequest(ctx context.Context, runner server.Runner, raw []byte) (dispatch.Report, error) {
	req, err := dispatch.ParseRequest(raw)
	if err != nil {
		return dispatch.Report{}, err
	}
	report, err := runner.Handle(ctx, req)
	if err != nil && errors.Is(err, context.Canceled) {
		return report, fmt.Errorf("interrupted: %w", err)
	}
	return report, err
}

func printSummary(report dispatch.Report) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stderr)
	t.SetTitle(fmt.Sprintf("%s (%s)", report.Envelope.Type, report.RunID))

	if !report.Envelope.Success {
		t.AppendHeader(table.Row{"KIND", "MESSAGE"})
		if report.Envelope.Error != nil {
			t.AppendRow(table.Row{report.Envelope.Error.Kind, report.Envelope.Error.Message})
		}
		t.Render()
		return
	}

	header := table.Row{}
	for _, h := range report.Headers {
		header = append(header, h)
	}
	t.AppendHeader(header)
	for _, row := range report.Rows {
		out := table.Row{}
		for _, cell := range row {
			out = append(out, text.Trim(cell, 80))
		}
		t.AppendRow(out)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d items", report.Items)})
	t.Render()
}
