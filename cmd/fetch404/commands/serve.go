package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/config"
	"fetch404/internal/publish"
	"fetch404/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on, overrides server.port in the config.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>]",
	Short: "Accepts job requests over HTTP and runs them in the background.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		// callbacks come from untrusted requests
		d, err := buildDeps(ctx, cfg, "fetch404-serve", publish.SafeClient(cfg.DeliveryTimeout()))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			d.Close(shutdownCtx)
		}()

		telemetry.InstrumentPerfStats(ctx, d.tel)

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts := server.Options{
			DedupeTTL: cfg.DedupeTTL(),
			Registry:  reg,
		}
		if d.archive != nil {
			opts.History = d.archive
		}
		srv := server.New(ctx, d.dispatcher, opts, chrono.StandardImpl{}, d.tel)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
			Handler:           h2c.NewHandler(srv.Router(), &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errs := make(chan error, 1)
		go func() {
			slog.Info("listening...", "port", cfg.Server.Port, "mirrors", len(cfg.Mirrors))
			errs <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errs:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen on port %d: %w", cfg.Server.Port, err)
			}
		case <-ctx.Done():
		}

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to shut down cleanly", "err", err)
		}
		// ctx is done so in-flight jobs stop at their next wait and still
		// deliver a failure envelope
		srv.Wait()
		slog.Info("done.")
		return nil
	},
}
