package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"fetch404/internal/fault"
	"fetch404/internal/rotation"

	"github.com/PuerkitoBio/goquery"
)

// Session is a single rendered page on one mirror. It is owned by one job
// attempt and must be released on every exit path.
type Session interface {
	// Navigate loads address, failing with NavigationTimeout when it does not
	// settle within budget.
	Navigate(ctx context.Context, address string, budget time.Duration) error
	// WaitForAnyOf returns the index of the first marker present in the
	// rendered page, failing with SelectorTimeout when none appears within budget.
	WaitForAnyOf(ctx context.Context, markers []string, budget time.Duration) (int, error)
	// Evaluate runs fn against the rendered document root.
	Evaluate(ctx context.Context, fn func(root *goquery.Selection) error) error
	// ItemCount is the number of raw items currently rendered.
	ItemCount() int
	// TriggerLoadMore performs one reveal-more action and reports whether the
	// number of rendered items changed.
	TriggerLoadMore(ctx context.Context) (bool, error)
	// Address is the address of the most recently rendered page.
	Address() string
	// Release frees the session, calling it more than once is a no-op.
	Release() error
}

// Factory creates sessions bound to a mirror.
type Factory interface {
	Acquire(ctx context.Context, endpoint rotation.Endpoint) (Session, error)
}

type FactoryFunc func(ctx context.Context, endpoint rotation.Endpoint) (Session, error)

func (f FactoryFunc) Acquire(ctx context.Context, endpoint rotation.Endpoint) (Session, error) {
	return f(ctx, endpoint)
}

// Layout describes where items and load more affordances live in a page.
type Layout struct {
	// Item selects raw items, excluding load more pseudo-items.
	Item string
	// ItemKey selects the element inside an item whose href identifies it,
	// the item's markup is used when it is missing.
	ItemKey string
	// Timeline selects the container new items are appended to.
	Timeline string
	// LoadMore lists the affordance variants in priority order.
	LoadMore []string
}

// Extract evaluates fn and returns its output.
func Extract[T any](ctx context.Context, s Session, fn func(root *goquery.Selection) T) (T, error) {
	var out T
	err := s.Evaluate(ctx, func(root *goquery.Selection) error {
		out = fn(root)
		return nil
	})
	return out, err
}

// Guard runs fn against root, turning a panic into an ExtractionInternal fault.
func Guard(root *goquery.Selection, fn func(root *goquery.Selection) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.New(fault.ExtractionInternal, "%v\n%s", r, debug.Stack())
		}
	}()
	if err := fn(root); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}
