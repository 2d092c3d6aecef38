package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/fault"
	"fetch404/internal/rotation"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{
	Item:     ".timeline-item:not(.show-more)",
	ItemKey:  ".tweet-link",
	Timeline: ".timeline",
	LoadMore: []string{".show-more:not(.timeline-item)", ".timeline > .show-more", ".more-results"},
}

func timelinePage(cursor string, ids ...int) string {
	var out strings.Builder
	out.WriteString(`<html><body><div class="profile-card">jack</div><div class="timeline">`)
	if cursor != "" {
		out.WriteString(`<div class="timeline-item show-more"><a href="/jack">Load newest</a></div>`)
	}
	for _, id := range ids {
		fmt.Fprintf(&out, `<div class="timeline-item"><a class="tweet-link" href="/jack/status/%d#m"></a></div>`, id)
	}
	if cursor != "" {
		fmt.Fprintf(&out, `<div class="show-more"><a href="?cursor=%s">Load more</a></div>`, cursor)
	} else {
		out.WriteString(`<div class="timeline-end">No more items</div>`)
	}
	out.WriteString(`</div></body></html>`)
	return out.String()
}

type mirror struct {
	*httptest.Server
	hits   atomic.Int64
	cookie atomic.Value
}

func newMirror(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *mirror {
	m := &mirror{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.hits.Add(1)
		if c, err := r.Cookie("nitter_prefs"); err == nil {
			m.cookie.Store(c.Value)
		}
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func acquire(t *testing.T, m *mirror) Session {
	t.Helper()
	factory := NewHTTPFactory(HTTPOptions{
		Layout:       testLayout,
		PollInterval: 10 * time.Millisecond,
		Cookies:      map[string]string{"nitter_prefs": "minimal=0&infinite=1"},
	}, chrono.StandardImpl{}, &telemetry.Recorder{})

	s, err := factory.Acquire(context.Background(), rotation.Endpoint(m.URL))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Release() })
	return s
}

func TestNavigateAndLoadMore(t *testing.T) {
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, timelinePage("b", 1, 2, 3))
		case "b":
			// 3 is repeated across pages
			fmt.Fprint(w, timelinePage("c", 3, 4, 5))
		default:
			fmt.Fprint(w, timelinePage(""))
		}
	})
	s := acquire(t, m)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, m.URL+"/jack", time.Second))
	require.Equal(t, "minimal=0&infinite=1", m.cookie.Load())
	require.Equal(t, 3, s.ItemCount())

	idx, err := s.WaitForAnyOf(ctx, []string{".profile-card", ".error-panel"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	changed, err := s.TriggerLoadMore(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 5, s.ItemCount())
	require.Equal(t, m.URL+"/jack?cursor=b", s.Address())

	ids, err := Extract(ctx, s, func(root *goquery.Selection) []string {
		var out []string
		root.Find(".tweet-link").Each(func(_ int, a *goquery.Selection) {
			out = append(out, a.AttrOr("href", ""))
		})
		return out
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"/jack/status/1#m", "/jack/status/2#m", "/jack/status/3#m",
		"/jack/status/4#m", "/jack/status/5#m",
	}, ids)

	// one affordance at a time, the old one was replaced
	count, err := Extract(ctx, s, func(root *goquery.Selection) int {
		return root.Find(".show-more:not(.timeline-item)").Length()
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	changed, err = s.TriggerLoadMore(ctx)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 5, s.ItemCount())
}

func TestLoadMoreFallsBackToScroll(t *testing.T) {
	var renders atomic.Int64
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		// the page grows every time it is rendered and has no affordance
		n := int(renders.Add(1))
		ids := make([]int, 0, n)
		for i := 1; i <= n; i++ {
			ids = append(ids, i)
		}
		fmt.Fprint(w, timelinePage("", ids...))
	})
	s := acquire(t, m)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, m.URL+"/jack", time.Second))
	require.Equal(t, 1, s.ItemCount())

	changed, err := s.TriggerLoadMore(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 2, s.ItemCount())
}

func TestWaitForErrorMarker(t *testing.T) {
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<html><body><div class="error-panel"><span>User "nobody" not found</span></div></body></html>`)
	})
	s := acquire(t, m)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, m.URL+"/nobody", time.Second))
	idx, err := s.WaitForAnyOf(ctx, []string{".profile-card", ".error-panel"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
}

func TestWaitForRerendersUntilTimeout(t *testing.T) {
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="challenge">checking your browser</div></body></html>`)
	})
	s := acquire(t, m)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, m.URL+"/jack", time.Second))
	_, err := s.WaitForAnyOf(ctx, []string{".profile-card"}, 100*time.Millisecond)
	require.Equal(t, fault.SelectorTimeout, fault.KindOf(err))
	require.Greater(t, m.hits.Load(), int64(1))
}

func TestNavigateTimeout(t *testing.T) {
	release := make(chan struct{})
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	s := acquire(t, m)

	err := s.Navigate(context.Background(), m.URL+"/jack", 50*time.Millisecond)
	require.Equal(t, fault.NavigationTimeout, fault.KindOf(err))
}

func TestNavigateEmptyErrorResponse(t *testing.T) {
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	s := acquire(t, m)

	err := s.Navigate(context.Background(), m.URL+"/jack", time.Second)
	require.Equal(t, fault.SourceError, fault.KindOf(err))
}

func TestEvaluateRecoversPanic(t *testing.T) {
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, timelinePage("", 1))
	})
	s := acquire(t, m)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, m.URL+"/jack", time.Second))
	err := s.Evaluate(ctx, func(root *goquery.Selection) error {
		var profile map[string]string
		profile["name"] = root.Find(".profile-card").Text()
		return nil
	})
	require.Equal(t, fault.ExtractionInternal, fault.KindOf(err))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newMirror(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, timelinePage("", 1))
	})
	s := acquire(t, m)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, m.URL+"/jack", time.Second))
	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	require.Equal(t, 0, s.ItemCount())
	require.Error(t, s.Navigate(ctx, m.URL+"/jack", time.Second))
}
