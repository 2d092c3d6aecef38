package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fetch404/internal/archive"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/fault"
	"fetch404/internal/publish"

	"github.com/stretchr/testify/require"
)

func TestHistoryListsRecentEnvelopes(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := filepath.Join(dir, "fetch404.json5")
	require.NoError(t, os.WriteFile(cfg, []byte(`{ mirrors: ["https://nitter.test"] }`), 0o644))

	path := filepath.Join(dir, "archive.db")
	db, err := archive.Config{File: path}.OpenDB()
	require.NoError(t, err)
	store, err := archive.Open(context.Background(), db, chrono.StandardImpl{}, &telemetry.Recorder{})
	require.NoError(t, err)
	store.Publish(context.Background(), publish.Success("user_tweets", "ind-ok", "run-ok", nil, publish.Result{}))
	store.Publish(context.Background(), publish.Failure("search_users", "ind-bad", "run-bad", nil,
		fault.New(fault.EmptyResult, "nothing")))
	require.NoError(t, store.Close())

	code, stdout := execute(t, "history", "--config", cfg, "--archive", path, "-n", "5")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "run-ok")
	require.Contains(t, stdout, "run-bad")
	require.Contains(t, stdout, "EmptyResultError")
	require.Contains(t, stdout, "2 envelopes")
}

func TestHistoryNeedsAnArchive(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := filepath.Join(dir, "fetch404.json5")
	require.NoError(t, os.WriteFile(cfg, []byte(`{ mirrors: ["https://nitter.test"] }`), 0o644))

	code, stdout := execute(t, "history", "--config", cfg, "--archive", "")
	require.Equal(t, 1, code)
	require.Empty(t, stdout)
}
