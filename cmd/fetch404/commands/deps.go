package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"fetch404/internal/archive"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/config"
	"fetch404/internal/dispatch"
	"fetch404/internal/nitter"
	"fetch404/internal/publish"
	"fetch404/internal/session"
)

// deps holds everything a command needs to run jobs.
type deps struct {
	config     config.Config
	dispatcher dispatch.Dispatcher
	archive    *archive.Store
	providers  telemetry.Providers
	tel        telemetry.API
}

// buildDeps wires the dispatcher from the configuration. callbackClient may be
// nil to use a plain client for callbacks.
func buildDeps(ctx context.Context, cfg config.Config, serviceName string, callbackClient *http.Client) (out deps, err error) {
	tel := telemetry.SlogAPI{Logger: slog.Default()}
	clock := chrono.StandardImpl{}

	providers, err := telemetry.Setup(ctx, serviceName, cfg.Otlp)
	if err != nil {
		return deps{}, fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		if err != nil {
			if shutdownErr := providers.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
				slog.Warn("failed to flush telemetry", "err", shutdownErr)
			}
		}
	}()

	mirrors, err := cfg.Endpoints()
	if err != nil {
		return deps{}, err
	}
	budgets, err := cfg.JobBudgets()
	if err != nil {
		return deps{}, err
	}

	sessions := session.NewHTTPFactory(session.HTTPOptions{
		Layout:            nitter.Layout(),
		UserAgent:         cfg.Session.UserAgent,
		RequestsPerSecond: cfg.Session.RateLimit(),
		PollInterval:      cfg.PollInterval(),
		Cookies:           nitter.Cookies(),
	}, clock, tel)

	out = deps{config: cfg, providers: providers, tel: tel}

	var extra []publish.Publisher
	if cfg.Archive.Enabled() {
		db, err := cfg.Archive.OpenDB()
		if err != nil {
			return deps{}, fmt.Errorf("open archive: %w", err)
		}
		store, err := archive.Open(ctx, db, clock, tel)
		if err != nil {
			db.Close()
			return deps{}, fmt.Errorf("open archive: %w", err)
		}
		out.archive = &store
		extra = append(extra, store)
	}

	out.dispatcher = dispatch.New(dispatch.Options{
		Mirrors:             mirrors,
		Sessions:            sessions,
		Budgets:             budgets,
		MaxSourceAttempts:   cfg.Budgets.MaxSourceAttempts,
		MaxPaginationRounds: cfg.Budgets.MaxPaginationRounds,
		Publishers:          dispatch.CallbackPublishers(callbackClient, cfg.DeliveryTimeout(), tel, extra...),
	}, clock, tel)

	return out, nil
}

func (d deps) Close(ctx context.Context) {
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			slog.Warn("failed to close archive", "err", err)
		}
	}
	if err := d.providers.Shutdown(ctx); err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}
