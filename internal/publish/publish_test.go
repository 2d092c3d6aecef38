package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fetch404/internal/components/telemetry"
	"fetch404/internal/fault"

	"github.com/stretchr/testify/require"
)

type collector struct {
	mutex  sync.Mutex
	bodies []map[string]any
	status int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var decoded map[string]any
	json.Unmarshal(body, &decoded)

	c.mutex.Lock()
	c.bodies = append(c.bodies, decoded)
	c.mutex.Unlock()

	if c.status != 0 {
		w.WriteHeader(c.status)
	}
}

func TestCallbackSuccessPayload(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	rec := &telemetry.Recorder{}
	cb := NewCallback(srv.URL, nil, time.Second, rec)
	cb.Publish(context.Background(), Success(
		"user_tweets",
		"req-1",
		"run-1",
		json.RawMessage(`{"username":"jack"}`),
		Result{
			Metadata: map[string]any{"nitterInstance": "https://nitter.net"},
			Profile:  map[string]any{"username": "jack"},
			Tweets:   []map[string]any{{"id": "1"}},
		},
	))

	require.Len(t, col.bodies, 1)
	body := col.bodies[0]
	require.Equal(t, true, body["success"])
	require.Equal(t, "user_tweets", body["type"])
	require.Equal(t, "req-1", body["indicator"])
	require.Equal(t, map[string]any{"username": "jack"}, body["params"])
	require.NotContains(t, body, "error")
	require.NotContains(t, body, "RunID")

	result := body["result"].(map[string]any)
	require.Len(t, result["tweets"], 1)
	require.NotContains(t, result, "users")
	require.Empty(t, rec.Find(telemetry.LevelWarning, report_callback_publish))
}

func TestCallbackFailurePayload(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	cause := fault.New(fault.SourceError, "mirror down")
	err := fault.Wrap(fault.SourceError, fmt.Errorf("failed after 2 attempts: %w", cause))
	NewCallback(srv.URL, nil, time.Second, &telemetry.Recorder{}).
		Publish(context.Background(), Failure("search_tweets", "", "run-2", nil, err))

	require.Len(t, col.bodies, 1)
	body := col.bodies[0]
	require.Equal(t, false, body["success"])
	require.NotContains(t, body, "result")
	require.NotContains(t, body, "indicator")

	errBody := body["error"].(map[string]any)
	require.Equal(t, "SourceError", errBody["kind"])
	require.Equal(t, "failed after 2 attempts: SourceError: mirror down", errBody["message"])
	require.Contains(t, errBody["stack"], "mirror down")
}

func TestCallbackSwallowsErrors(t *testing.T) {
	col := &collector{status: http.StatusInternalServerError}
	srv := httptest.NewServer(col)
	defer srv.Close()

	rec := &telemetry.Recorder{}
	NewCallback(srv.URL, nil, time.Second, rec).Publish(context.Background(), Envelope{Type: "user_tweets"})

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	NewCallback(deadURL, nil, time.Second, rec).Publish(context.Background(), Envelope{Type: "user_tweets"})

	warnings := rec.Find(telemetry.LevelWarning, report_callback_publish)
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		require.Equal(t, fault.DeliveryError, fault.KindOf(w.Params[0].(error)))
	}
}

func TestSafeClientBlocksLoopback(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	rec := &telemetry.Recorder{}
	NewCallback(srv.URL, SafeClient(time.Second), time.Second, rec).
		Publish(context.Background(), Envelope{Type: "user_tweets"})

	require.Empty(t, col.bodies)
	require.Len(t, rec.Find(telemetry.LevelWarning, report_callback_publish), 1)
}

func TestCallbackConcurrentPublish(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	shared := &http.Client{}
	rec := &telemetry.Recorder{}
	callbacks := NewCallbackClient(shared, time.Second, rec)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			callbacks.To(srv.URL).Publish(context.Background(), Envelope{Type: fmt.Sprint("job-", i)})
		}()
		go func() {
			defer wg.Done()
			NewCallback(srv.URL, shared, time.Second, rec).
				Publish(context.Background(), Envelope{Type: fmt.Sprint("own-", i)})
		}()
	}
	wg.Wait()

	col.mutex.Lock()
	defer col.mutex.Unlock()
	require.Len(t, col.bodies, 16)
	require.Zero(t, shared.Timeout)
	require.Empty(t, rec.Find(telemetry.LevelWarning, report_callback_publish))
}

type counting struct {
	calls []string
	name  string
}

func (c *counting) Publish(_ context.Context, e Envelope) {
	c.calls = append(c.calls, c.name+":"+e.Type)
}

func TestMulti(t *testing.T) {
	a := &counting{name: "a"}
	b := &counting{name: "b"}
	Multi{a, Discard{}, b}.Publish(context.Background(), Envelope{Type: "search_users"})
	require.Equal(t, []string{"a:search_users"}, a.calls)
	require.Equal(t, []string{"b:search_users"}, b.calls)
}

func TestErrorBodyPlainError(t *testing.T) {
	body := NewErrorBody(errors.New("boom"))
	require.Equal(t, fault.SourceError, body.Kind)
	require.Equal(t, "boom", body.Message)
}
