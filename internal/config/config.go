package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"fetch404/internal/archive"
	"fetch404/internal/components/configutil"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/job"
	"fetch404/internal/rotation"
	"fetch404/internal/session"

	"dario.cat/mergo"
)

const (
	DefaultName = "fetch404.json5"
	// EnvPath overrides where the configuration is read from.
	EnvPath = "FETCH404_CONFIG"
)

// Budgets holds durations as Go duration strings ("30s", "1m30s").
type Budgets struct {
	MaxSourceAttempts           int    `json:"max_source_attempts"`
	MaxPaginationRounds         int    `json:"max_pagination_rounds"`
	ConsecutiveFailureThreshold int    `json:"consecutive_failure_threshold"`
	SettleDelay                 string `json:"settle_delay"`
	RoundDelay                  string `json:"round_delay"`
	NavigationTimeout           string `json:"navigation_timeout"`
	SelectorTimeout             string `json:"selector_timeout"`
	DeliveryTimeout             string `json:"delivery_timeout"`
	PollInterval                string `json:"poll_interval"`
}

type Session struct {
	UserAgent         string   `json:"user_agent"`
	// RequestsPerSecond of 0 disables rate limiting, unset uses the default.
	RequestsPerSecond *float64 `json:"requests_per_second"`
}

// RateLimit returns the per-session request rate, 0 meaning unlimited.
func (s Session) RateLimit() float64 {
	if s.RequestsPerSecond == nil {
		return 0
	}
	return *s.RequestsPerSecond
}

type Server struct {
	Port      int    `json:"port"`
	DedupeTTL string `json:"dedupe_ttl"`
}

type Config struct {
	Mirrors []string             `json:"mirrors"`
	Budgets Budgets              `json:"budgets"`
	Session Session              `json:"session"`
	Archive archive.Config       `json:"archive"`
	Otlp    telemetry.OtlpConfig `json:"otlp"`
	Server  Server               `json:"server"`
}

func Default() Config {
	requestsPerSecond := 2.0
	return Config{
		Mirrors: []string{
			"https://nitter.tiekoetter.com",
			"https://nitter.space",
			"https://lightbrd.com",
			"https://nitter.privacyredirect.com",
			"https://nitter.net",
			"https://xcancel.com",
		},
		Budgets: Budgets{
			ConsecutiveFailureThreshold: 3,
			SettleDelay:                 "2s",
			RoundDelay:                  "1s",
			NavigationTimeout:           "30s",
			SelectorTimeout:             "15s",
			DeliveryTimeout:             "30s",
			PollInterval:                "500ms",
		},
		Session: Session{
			UserAgent:         session.DefaultUserAgent,
			RequestsPerSecond: &requestsPerSecond,
		},
		Server: Server{
			Port:      8080,
			DedupeTTL: "10m",
		},
	}
}

// Load reads the configuration at path, or the one named by FETCH404_CONFIG,
// or fetch404.json5 in the working directory or one of its parents. Fields
// left unset take their default value, and a missing file means every field
// does.
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	switch {
	case path != "":
		cfg, err = configutil.ReadConfig[Config](path)
	case os.Getenv(EnvPath) != "":
		cfg, err = configutil.ReadConfig[Config](os.Getenv(EnvPath))
	default:
		cfg, err = configutil.ReadRecursively[Config](DefaultName)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	// a pointer set to its zero value is an explicit choice and is kept
	if err := mergo.Merge(&cfg, Default(), mergo.WithoutDereference); err != nil {
		return Config{}, fmt.Errorf("apply defaults: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if _, err := c.Endpoints(); err != nil {
		return err
	}
	if _, err := c.JobBudgets(); err != nil {
		return err
	}
	for name, value := range map[string]string{
		"delivery_timeout": c.Budgets.DeliveryTimeout,
		"poll_interval":    c.Budgets.PollInterval,
		"dedupe_ttl":       c.Server.DedupeTTL,
	} {
		if _, err := duration(name, value); err != nil {
			return err
		}
	}
	if c.Budgets.MaxSourceAttempts < 0 || c.Budgets.MaxPaginationRounds < 0 {
		return fmt.Errorf("budgets cannot be negative")
	}
	if c.Session.RateLimit() < 0 {
		return fmt.Errorf("requests_per_second cannot be negative")
	}
	return nil
}

func (c Config) Endpoints() ([]rotation.Endpoint, error) {
	return rotation.Parse(c.Mirrors)
}

func (c Config) JobBudgets() (job.Budgets, error) {
	out := job.Budgets{FailureThreshold: c.Budgets.ConsecutiveFailureThreshold}
	fields := []struct {
		name  string
		value string
		out   *time.Duration
	}{
		{"settle_delay", c.Budgets.SettleDelay, &out.SettleDelay},
		{"round_delay", c.Budgets.RoundDelay, &out.RoundDelay},
		{"navigation_timeout", c.Budgets.NavigationTimeout, &out.Navigation},
		{"selector_timeout", c.Budgets.SelectorTimeout, &out.Selector},
	}
	for _, f := range fields {
		d, err := duration(f.name, f.value)
		if err != nil {
			return job.Budgets{}, err
		}
		*f.out = d
	}
	return out, nil
}

func (c Config) DeliveryTimeout() time.Duration {
	d, _ := duration("delivery_timeout", c.Budgets.DeliveryTimeout)
	return d
}

func (c Config) PollInterval() time.Duration {
	d, _ := duration("poll_interval", c.Budgets.PollInterval)
	return d
}

func (c Config) DedupeTTL() time.Duration {
	d, _ := duration("dedupe_ttl", c.Server.DedupeTTL)
	return d
}

func duration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", name)
	}
	return d, nil
}
