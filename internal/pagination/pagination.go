package pagination

import (
	"context"
	"errors"
	"time"

	"fetch404/internal/components/assert"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/session"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_controller_extract   = "controller.extract"
	report_controller_load_more = "controller.load-more"
	report_controller_stop      = "controller.stop"
)

const DefaultFailureThreshold = 3

// Adapter turns a rendered page into items.
type Adapter[T any] interface {
	// Items returns every item currently rendered along with the faults of
	// the items that could not be read.
	Items(root *goquery.Selection) ([]T, []error)
	ID(item T) string
}

// SeenSet holds the ids of the items accepted so far in a job.
type SeenSet map[string]struct{}

// Admit records id and reports whether it was not seen before.
func (s SeenSet) Admit(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

type StopReason string

const (
	// StopExhausted means the source stopped yielding items.
	StopExhausted StopReason = "exhausted"
	StopSatisfied StopReason = "satisfied"
	// StopBudget means the round budget ran out.
	StopBudget    StopReason = "budget"
	StopCancelled StopReason = "cancelled"
)

type Options struct {
	// DesiredCount of 0 or less never stops on count.
	DesiredCount     int
	MaxRounds        int
	FailureThreshold int
	SettleDelay      time.Duration
	RoundDelay       time.Duration
}

type Result[T any] struct {
	Items []T
	// RawCount is the highest number of raw items seen rendered.
	RawCount int
	Rounds   int
	Stop     StopReason
}

// Controller repeatedly reveals more items in a session and collects the
// ones it has not seen yet.
type Controller[T any] struct {
	adapter Adapter[T]
	opts    Options
	time    chrono.API
	tel     telemetry.API
}

func NewController[T any](adapter Adapter[T], opts Options, clock chrono.API, tel telemetry.API) Controller[T] {
	assert.NotNil(adapter)
	assert.NotNil(clock)
	assert.NotNil(tel)
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	return Controller[T]{
		adapter: adapter,
		opts:    opts,
		time:    clock,
		tel:     telemetry.NewScopedAPI("pagination", tel),
	}
}

func (c Controller[T]) satisfied(n int) bool {
	return c.opts.DesiredCount > 0 && n >= c.opts.DesiredCount
}

// fresh extracts the rendered items and returns the unseen ones in page order.
func (c Controller[T]) fresh(ctx context.Context, s session.Session, seen SeenSet) []T {
	var items []T
	var faults []error
	err := s.Evaluate(ctx, func(root *goquery.Selection) error {
		items, faults = c.adapter.Items(root)
		return nil
	})
	if err != nil {
		c.tel.ReportBroken(report_controller_extract, err, s.Address())
		return nil
	}
	if len(faults) > 0 {
		c.tel.ReportWarning(report_controller_extract, errors.Join(faults...), len(faults), s.Address())
	}

	var out []T
	for _, item := range items {
		if seen.Admit(c.adapter.ID(item)) {
			out = append(out, item)
		}
	}
	return out
}

// Run paginates until the source is exhausted, enough items were collected or
// the round budget runs out. Only a cancelled context returns an error, the
// items gathered until then are returned with it.
func (c Controller[T]) Run(ctx context.Context, s session.Session) (Result[T], error) {
	seen := SeenSet{}
	res := Result[T]{RawCount: s.ItemCount()}
	res.Items = c.fresh(ctx, s, seen)

	if c.satisfied(len(res.Items)) {
		res.Stop = StopSatisfied
		return res, nil
	}
	if c.opts.MaxRounds <= 0 {
		res.Stop = StopBudget
		return res, nil
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			res.Stop = StopCancelled
			return res, err
		}
		res.Rounds++

		_, err := s.TriggerLoadMore(ctx)
		if err != nil {
			c.tel.ReportWarning(report_controller_load_more, err, res.Rounds, s.Address())
		}
		if err := c.time.Sleep(ctx, c.opts.SettleDelay); err != nil {
			res.Stop = StopCancelled
			return res, err
		}

		added := c.fresh(ctx, s, seen)
		res.Items = append(res.Items, added...)

		count := s.ItemCount()
		if count > res.RawCount || len(added) > 0 {
			failures = 0
		} else {
			failures++
		}
		if count > res.RawCount {
			res.RawCount = count
		}

		switch {
		case failures >= c.opts.FailureThreshold:
			res.Stop = StopExhausted
		case c.satisfied(len(res.Items)):
			res.Stop = StopSatisfied
		case res.Rounds >= c.opts.MaxRounds:
			res.Stop = StopBudget
		}
		if res.Stop != "" {
			c.tel.ReportDebug(report_controller_stop, res.Stop, res.Rounds, len(res.Items))
			return res, nil
		}

		if err := c.time.Sleep(ctx, c.opts.RoundDelay); err != nil {
			res.Stop = StopCancelled
			return res, err
		}
	}
}
