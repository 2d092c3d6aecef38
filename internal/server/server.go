package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"fetch404/internal/components/assert"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/dispatch"
	"fetch404/internal/fault"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	report_server_intake = "server.intake"
	report_server_job    = "server.job"
)

const maxRequestBytes = 1 << 20

// Runner executes one request and publishes its envelope.
type Runner interface {
	Handle(ctx context.Context, req dispatch.Request) (dispatch.Report, error)
}

// History reports whether a request with the indicator already succeeded.
type History interface {
	Seen(ctx context.Context, indicator string) (bool, error)
}

type Options struct {
	// DedupeTTL is how long an indicator is remembered, 0 disables dedupe.
	DedupeTTL time.Duration
	// History optionally rejects indicators that outlived the dedupe window.
	History  History
	Registry *prometheus.Registry
}

// Server accepts job requests over HTTP and runs them in the background.
type Server struct {
	ctx     context.Context
	runner  Runner
	history History
	metrics *Metrics
	gather  prometheus.Gatherer
	time    chrono.API
	tel     telemetry.API

	seenLock sync.Mutex
	seen     *expirable.LRU[string, string]
	jobs     sync.WaitGroup
}

type acceptedResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// New creates a server whose jobs run on ctx, cancelling ctx cancels every
// job still in flight.
func New(ctx context.Context, runner Runner, opts Options, clock chrono.API, tel telemetry.API) *Server {
	assert.NotNil(runner)
	assert.NotNil(clock)
	assert.NotNil(tel)

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		ctx:     ctx,
		runner:  runner,
		history: opts.History,
		metrics: NewMetrics(reg),
		gather:  reg,
		time:    clock,
		tel:     tel,
	}
	if opts.DedupeTTL > 0 {
		s.seen = expirable.NewLRU[string, string](4096, nil, opts.DedupeTTL)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/jobs", s.SubmitJob)
	r.Get("/healthz", s.Healthz)
	r.Method(http.MethodGet, "/metrics", MetricsHandler(s.gather))
	return r
}

// Wait blocks until every accepted job has finished.
func (s *Server) Wait() {
	s.jobs.Wait()
}

// SubmitJob handles POST /jobs.
func (s *Server) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.tel.ReportWarning(report_server_intake, err)
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    string(fault.InvalidJob),
			Message: err.Error(),
		})
		return
	}
	req, err := dispatch.ParseRequest(body)
	if err != nil {
		s.tel.ReportWarning(report_server_intake, err)
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    string(fault.KindOf(err)),
			Message: fault.Message(err),
		})
		return
	}

	if s.archived(r.Context(), req.Indicator) {
		s.metrics.RecordRejected()
		writeJSON(w, http.StatusConflict, errorResponse{
			Kind:    string(fault.InvalidJob),
			Message: "a job with this indicator was already delivered",
		})
		return
	}

	id := uuid.NewString()
	if prev, duplicate := s.claim(req.Indicator, id); duplicate {
		s.metrics.RecordRejected()
		s.tel.ReportDebug(report_server_intake, "duplicate indicator", req.Indicator, prev)
		writeJSON(w, http.StatusConflict, errorResponse{
			Kind:    string(fault.InvalidJob),
			Message: "a job with this indicator was accepted recently",
			ID:      prev,
		})
		return
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.run(id, req)
	}()

	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id})
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopping"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// claim records the indicator and reports the id of an earlier job that
// already holds it.
func (s *Server) claim(indicator, id string) (string, bool) {
	if s.seen == nil || indicator == "" {
		return "", false
	}
	s.seenLock.Lock()
	defer s.seenLock.Unlock()
	if prev, ok := s.seen.Get(indicator); ok {
		return prev, true
	}
	s.seen.Add(indicator, id)
	return "", false
}

func (s *Server) archived(ctx context.Context, indicator string) bool {
	if s.history == nil || indicator == "" {
		return false
	}
	seen, err := s.history.Seen(ctx, indicator)
	if err != nil {
		s.tel.ReportWarning(report_server_intake, err, indicator)
		return false
	}
	return seen
}

func (s *Server) run(id string, req dispatch.Request) {
	start := s.time.Now()
	report, err := s.runner.Handle(s.ctx, req)
	took := s.time.Now().Sub(start)

	s.metrics.RecordJob(req.Type, err == nil, report.Attempts, report.Items, took)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.tel.ReportDebug(report_server_job, "cancelled", id)
			return
		}
		s.tel.ReportWarning(report_server_job, err, id, report.RunID)
		return
	}
	s.tel.ReportDebug(report_server_job, "done", id, report.RunID, report.Items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
