package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fetch404/internal/job"
	"fetch404/internal/rotation"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsWhenNoFileExists(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvPath, "")

	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatal(diff)
	}

	endpoints, err := cfg.Endpoints()
	require.NoError(t, err)
	require.Len(t, endpoints, 6)
	require.Equal(t, rotation.Endpoint("https://nitter.tiekoetter.com"), endpoints[0])

	budgets, err := cfg.JobBudgets()
	require.NoError(t, err)
	require.Equal(t, job.DefaultBudgets(), budgets)
	require.Equal(t, 30*time.Second, cfg.DeliveryTimeout())
	require.Equal(t, 10*time.Minute, cfg.DedupeTTL())
}

func TestLoadMergesLocalOverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "fetch404.json5", `{
		// comments are allowed
		mirrors: ["https://one.example/", "https://two.example"],
		budgets: { max_source_attempts: 4, settle_delay: "0s" },
	}`)
	write(t, dir, "fetch404.local.json5", `{
		budgets: { navigation_timeout: "5s" },
		archive: { file: "archive.db" },
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	endpoints, err := cfg.Endpoints()
	require.NoError(t, err)
	require.Equal(t, []rotation.Endpoint{"https://one.example", "https://two.example"}, endpoints)
	require.Equal(t, 4, cfg.Budgets.MaxSourceAttempts)
	require.Equal(t, "archive.db", cfg.Archive.File)

	budgets, err := cfg.JobBudgets()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, budgets.Navigation)
	require.Equal(t, 15*time.Second, budgets.Selector)
	require.Equal(t, 3, budgets.FailureThreshold)
}

func TestLoadKeepsZeroRateLimit(t *testing.T) {
	dir := t.TempDir()

	unlimited := write(t, dir, "unlimited.json5", `{ session: { requests_per_second: 0 } }`)
	cfg, err := Load(unlimited)
	require.NoError(t, err)
	require.NotNil(t, cfg.Session.RequestsPerSecond)
	require.Zero(t, cfg.Session.RateLimit())

	unset := write(t, dir, "unset.json5", `{ session: { user_agent: "test" } }`)
	cfg, err = Load(unset)
	require.NoError(t, err)
	require.Equal(t, 2.0, cfg.Session.RateLimit())
	require.Equal(t, "test", cfg.Session.UserAgent)

	negative := write(t, dir, "negative.json5", `{ session: { requests_per_second: -1 } }`)
	_, err = Load(negative)
	require.Error(t, err)
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "custom.json5", `{ server: { port: 9999 } }`)
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, Default().Mirrors, cfg.Mirrors)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad duration": `{ budgets: { round_delay: "soon" } }`,
		"negative":     `{ budgets: { selector_timeout: "-1s" } }`,
		"bad mirror":   `{ mirrors: ["ftp://nitter.example"] }`,
		"bad ttl":      `{ server: { dedupe_ttl: "forever" } }`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := write(t, dir, "fetch404.json5", content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
