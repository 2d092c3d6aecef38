package pagination

import (
	"context"
	"errors"
	"testing"
	"time"

	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/nitter"
	"fetch404/internal/session/sessiontest"

	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, pages ...string) *sessiontest.Session {
	t.Helper()
	s := &sessiontest.Session{Pages: pages}
	if err := s.Navigate(context.Background(), "https://nitter.test/jack", time.Second); err != nil {
		t.Fatal(err)
	}
	return s
}

func newController(opts Options) (Controller[nitter.Post], *chrono.Instant, *telemetry.Recorder) {
	clock := chrono.NewInstant(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := &telemetry.Recorder{}
	return NewController[nitter.Post](nitter.PostAdapter{}, opts, clock, rec), clock, rec
}

func ids(posts []nitter.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestSeenSetIdempotent(t *testing.T) {
	seen := SeenSet{}
	require.True(t, seen.Admit("1"))
	require.False(t, seen.Admit("1"))
	require.True(t, seen.Admit("2"))
	require.Len(t, seen, 2)
}

func TestAccumulatesAcrossRounds(t *testing.T) {
	s := newSession(t,
		sessiontest.Timeline("1", "2"),
		// pages keep earlier items rendered, like an appended timeline
		sessiontest.Timeline("1", "2", "2", "3"),
		sessiontest.Timeline("1", "2", "3", "4", "5"),
	)
	ctrl, clock, _ := newController(Options{
		DesiredCount: 5,
		MaxRounds:    10,
		SettleDelay:  2 * time.Second,
		RoundDelay:   time.Second,
	})

	res, err := ctrl.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(res.Items))
	require.Equal(t, StopSatisfied, res.Stop)
	require.Equal(t, 2, res.Rounds)
	require.Equal(t, 5, res.RawCount)
	require.Equal(t, []time.Duration{2 * time.Second, time.Second, 2 * time.Second}, clock.Slept())
}

func TestSatisfiedBeforeFirstRound(t *testing.T) {
	s := newSession(t, sessiontest.Timeline("1", "2", "3", "4"))
	ctrl, _, _ := newController(Options{DesiredCount: 3, MaxRounds: 10})

	res, err := ctrl.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, StopSatisfied, res.Stop)
	require.Equal(t, 0, res.Rounds)
	require.Equal(t, 0, s.Calls.LoadMore)
	require.Len(t, res.Items, 4)
}

func TestExhaustedAfterThreshold(t *testing.T) {
	s := newSession(t, sessiontest.Timeline("1", "2"))
	ctrl, _, _ := newController(Options{DesiredCount: 20, MaxRounds: 10, FailureThreshold: 3})

	res, err := ctrl.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, StopExhausted, res.Stop)
	require.Equal(t, 3, res.Rounds)
	require.Equal(t, 3, s.Calls.LoadMore)
	require.Equal(t, []string{"1", "2"}, ids(res.Items))
}

func TestProgressResetsFailures(t *testing.T) {
	s := newSession(t,
		sessiontest.Timeline("1"),
		sessiontest.Timeline("1"),
		sessiontest.Timeline("1"),
		sessiontest.Timeline("1", "2"),
	)
	ctrl, _, _ := newController(Options{MaxRounds: 20, FailureThreshold: 3})

	res, err := ctrl.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, StopExhausted, res.Stop)
	// two empty rounds, one with progress, then three empty ones
	require.Equal(t, 6, res.Rounds)
	require.Equal(t, []string{"1", "2"}, ids(res.Items))
}

func TestBudgetBoundsRounds(t *testing.T) {
	pages := []string{sessiontest.Timeline("0")}
	rendered := []string{"0"}
	for i := 1; i <= 30; i++ {
		rendered = append(rendered, string(rune('a'+i)))
		pages = append(pages, sessiontest.Timeline(rendered...))
	}

	for _, maxRounds := range []int{1, 4, 7} {
		s := newSession(t, pages...)
		ctrl, _, _ := newController(Options{MaxRounds: maxRounds})

		res, err := ctrl.Run(context.Background(), s)
		require.NoError(t, err)
		require.Equal(t, StopBudget, res.Stop)
		require.Equal(t, maxRounds, res.Rounds)
		require.LessOrEqual(t, s.Calls.Evaluate, maxRounds+1)
		require.Len(t, res.Items, maxRounds+1)
	}
}

func TestZeroRoundBudget(t *testing.T) {
	s := newSession(t, sessiontest.Timeline("1"), sessiontest.Timeline("1", "2"))
	ctrl, _, _ := newController(Options{DesiredCount: 5})

	res, err := ctrl.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, StopBudget, res.Stop)
	require.Equal(t, 0, s.Calls.LoadMore)
	require.Equal(t, 1, s.Calls.Evaluate)
}

func TestLoadMoreErrorCountsAsFailure(t *testing.T) {
	s := newSession(t, sessiontest.Timeline("1"))
	s.LoadMoreErr = errors.New("affordance detached")
	ctrl, _, rec := newController(Options{MaxRounds: 10})

	res, err := ctrl.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, StopExhausted, res.Stop)
	require.Equal(t, 3, res.Rounds)
	require.Len(t, rec.Find(telemetry.LevelWarning, report_controller_load_more), 3)
}

func TestCancelled(t *testing.T) {
	s := newSession(t, sessiontest.Timeline("1"))
	ctrl, _, _ := newController(Options{MaxRounds: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ctrl.Run(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StopCancelled, res.Stop)
	require.Equal(t, []string{"1"}, ids(res.Items))
}
