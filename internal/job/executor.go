package job

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fetch404/internal/components/assert"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/extract"
	"fetch404/internal/fault"
	"fetch404/internal/nitter"
	"fetch404/internal/pagination"
	"fetch404/internal/rotation"
	"fetch404/internal/session"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fetch404/job")

const (
	report_executor_attempt       = "executor.attempt"
	report_executor_release       = "executor.release"
	report_executor_profile       = "executor.profile"
	report_executor_handle        = "executor.handle"
	report_executor_items_dropped = "executor.items-dropped"
)

// handles that are less similar than this to the requested username are
// reported, mirrors sometimes redirect to a different account.
const handleSimilarityThreshold = 0.85

type Budgets struct {
	Navigation       time.Duration
	Selector         time.Duration
	FailureThreshold int
	SettleDelay      time.Duration
	RoundDelay       time.Duration
}

func DefaultBudgets() Budgets {
	return Budgets{
		Navigation:       30 * time.Second,
		Selector:         15 * time.Second,
		FailureThreshold: pagination.DefaultFailureThreshold,
		SettleDelay:      2 * time.Second,
		RoundDelay:       time.Second,
	}
}

type Metadata struct {
	Kind               Kind                  `json:"type"`
	Username           string                `json:"username,omitempty"`
	Query              string                `json:"query,omitempty"`
	RunID              string                `json:"runId,omitempty"`
	Timestamp          int64                 `json:"timestamp"`
	Mirror             string                `json:"nitterInstance"`
	ItemsCount         int                   `json:"itemsCount"`
	Limit              int                   `json:"limit"`
	TotalFound         int                   `json:"totalFound"`
	PaginationAttempts int                   `json:"paginationAttempts"`
	PaginationRounds   int                   `json:"paginationRounds"`
	StopReason         pagination.StopReason `json:"stopReason"`
	SourceAttempts     int                   `json:"sourceAttempts"`
}

// Outcome is the terminal result of a job, Err is set when it failed.
type Outcome[T any] struct {
	Profile  *nitter.Profile
	Items    []T
	Metadata Metadata
	Attempts int
	Err      error
}

func (o Outcome[T]) Success() bool {
	return o.Err == nil
}

// Executor runs jobs of one kind, failing over between mirrors.
type Executor[T any] struct {
	pipeline Pipeline[T]
	sessions session.Factory
	budgets  Budgets
	time     chrono.API
	tel      telemetry.API
}

func NewExecutor[T any](
	pipeline Pipeline[T],
	sessions session.Factory,
	budgets Budgets,
	clock chrono.API,
	tel telemetry.API,
) Executor[T] {
	assert.NotNil(pipeline.Address)
	assert.NotNil(pipeline.Items)
	assert.NotNil(sessions)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return Executor[T]{
		pipeline: pipeline,
		sessions: sessions,
		budgets:  budgets,
		time:     clock,
		tel:      telemetry.NewScopedAPI("job", tel),
	}
}

// Execute tries up to job.MaxSourceAttempts mirrors starting at the current
// one. The rotation is only advanced after a failed attempt so it is left on
// the mirror that succeeded.
func (e Executor[T]) Execute(ctx context.Context, job Job, rot *rotation.State) Outcome[T] {
	ctx, span := tracer.Start(ctx, "executor:Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("kind", string(job.Kind)),
		attribute.String("target", job.Target),
		attribute.String("run_id", job.RunID),
	)

	attempts := job.MaxSourceAttempts
	if attempts <= 0 {
		attempts = rot.Len()
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		endpoint := rot.Current()
		out, err := e.attempt(ctx, job, endpoint)
		if err == nil {
			out.Attempts = i
			out.Metadata.SourceAttempts = i
			span.SetAttributes(attribute.String("mirror", endpoint.String()))
			return out
		}

		lastErr = err
		e.tel.ReportWarning(report_executor_attempt, err, job.String(), endpoint.String(), i)
		rot.Advance()

		if ctx.Err() != nil {
			attempts = i
			break
		}
	}

	span.SetStatus(codes.Error, lastErr.Error())
	span.RecordError(lastErr)
	return Outcome[T]{
		Attempts: attempts,
		Err: fault.Wrap(
			fault.KindOf(lastErr),
			fmt.Errorf("failed to scrape %s after %d attempts, last error: %w", job, attempts, lastErr),
		),
	}
}

func (e Executor[T]) attempt(ctx context.Context, job Job, endpoint rotation.Endpoint) (out Outcome[T], err error) {
	ctx, span := tracer.Start(ctx, "executor:attempt")
	defer span.End()
	span.SetAttributes(attribute.String("mirror", endpoint.String()))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	s, err := e.sessions.Acquire(ctx, endpoint)
	if err != nil {
		return out, err
	}
	defer func() {
		if err := s.Release(); err != nil {
			e.tel.ReportBroken(report_executor_release, err, endpoint.String())
		}
	}()

	address := e.pipeline.Address(endpoint, job.Target)
	if err := s.Navigate(ctx, address, e.budgets.Navigation); err != nil {
		return out, err
	}

	landed, err := s.WaitForAnyOf(ctx, []string{e.pipeline.Content, e.pipeline.Error}, e.budgets.Selector)
	if err != nil {
		return out, err
	}
	if landed == 1 {
		message, _ := session.Extract(ctx, s, func(root *goquery.Selection) string {
			return extract.TextOr(root, e.pipeline.Error, "unknown error")
		})
		return out, fault.New(fault.SourceError, "%s: %s", endpoint, message)
	}

	if e.pipeline.Profile != nil {
		profile, err := session.Extract(ctx, s, e.pipeline.Profile)
		if err != nil {
			profile = nitter.Profile{Partial: true, Error: err.Error()}
		}
		if profile.Partial {
			e.tel.ReportWarning(report_executor_profile, profile.Error, endpoint.String())
			return out, fault.New(fault.EmptyResult, "profile of %s could not be read: %s", job.Target, profile.Error)
		}
		e.checkHandle(job, profile)
		out.Profile = &profile

		if e.pipeline.Timeline != "" {
			if _, err := s.WaitForAnyOf(ctx, []string{e.pipeline.Timeline}, e.budgets.Selector); err != nil {
				return out, err
			}
		}
	}

	ctrl := pagination.NewController(e.pipeline.Items, pagination.Options{
		DesiredCount:     job.Limit,
		MaxRounds:        job.MaxPaginationRounds,
		FailureThreshold: e.budgets.FailureThreshold,
		SettleDelay:      e.budgets.SettleDelay,
		RoundDelay:       e.budgets.RoundDelay,
	}, e.time, e.tel)
	res, err := ctrl.Run(ctx, s)
	if err != nil {
		return out, err
	}

	items := res.Items
	if job.Limit > 0 && len(items) > job.Limit {
		e.tel.ReportDebug(report_executor_items_dropped, len(items)-job.Limit)
		items = items[:job.Limit]
	}
	if len(items) == 0 {
		return out, fault.New(fault.EmptyResult, "no items found for %s on %s", job.Target, endpoint)
	}

	out.Items = items
	out.Metadata = Metadata{
		Kind:               job.Kind,
		RunID:              job.RunID,
		Timestamp:          e.time.Now().UnixMilli(),
		Mirror:             endpoint.String(),
		ItemsCount:         len(items),
		Limit:              job.Limit,
		TotalFound:         len(res.Items),
		PaginationAttempts: job.MaxPaginationRounds,
		PaginationRounds:   res.Rounds,
		StopReason:         res.Stop,
	}
	if job.Kind == KindUserTweets {
		out.Metadata.Username = job.Target
	} else {
		out.Metadata.Query = job.Target
	}
	return out, nil
}

// checkHandle warns when the profile that was landed on does not look like
// the one that was asked for.
func (e Executor[T]) checkHandle(job Job, profile nitter.Profile) {
	if profile.Username == nil {
		return
	}
	requested := strings.ToLower(job.Target)
	landed := strings.ToLower(*profile.Username)
	similarity := matchr.JaroWinkler(requested, landed, false)
	if similarity < handleSimilarityThreshold {
		e.tel.ReportWarning(report_executor_handle, job.Target, *profile.Username, similarity)
	}
}
