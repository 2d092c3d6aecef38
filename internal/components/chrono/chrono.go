package chrono

import (
	"context"
	"sync"
	"time"
)

// API abstracts the clock so that settle delays and timestamps can be
// controlled in tests.
type API interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type StandardImpl struct{}

func (StandardImpl) Now() time.Time {
	return time.Now()
}

func (StandardImpl) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Instant is a virtual clock, sleeping advances it immediately.
type Instant struct {
	mutex sync.Mutex
	now   time.Time
	slept []time.Duration
}

func NewInstant(start time.Time) *Instant {
	return &Instant{now: start}
}

func (i *Instant) Now() time.Time {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.now
}

func (i *Instant) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.now = i.now.Add(d)
	i.slept = append(i.slept, d)
	return nil
}

// Slept returns every duration passed to Sleep in call order.
func (i *Instant) Slept() []time.Duration {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	out := make([]time.Duration, len(i.slept))
	copy(out, i.slept)
	return out
}
