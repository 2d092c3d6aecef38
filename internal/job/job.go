package job

import (
	"fmt"
	"strings"

	"fetch404/internal/fault"
)

type Kind string

const (
	KindUserTweets   Kind = "user_tweets"
	KindSearchTweets Kind = "search_tweets"
	KindSearchUsers  Kind = "search_users"
)

func (k Kind) Known() bool {
	switch k {
	case KindUserTweets, KindSearchTweets, KindSearchUsers:
		return true
	}
	return false
}

const DefaultLimit = 20

// Job is one extraction request. It is not modified once created.
type Job struct {
	Kind Kind
	// Target is the username for user_tweets and the query for searches.
	Target string
	// Limit of 0 or less returns everything that was found.
	Limit int
	// MaxSourceAttempts of 0 tries every mirror once.
	MaxSourceAttempts   int
	MaxPaginationRounds int
	RunID               string
}

// PaginationBudget is the default number of pagination rounds for a limit,
// one round for every 5 items, clamped to [5, 20].
func PaginationBudget(limit int) int {
	rounds := (limit + 4) / 5
	if rounds < 5 {
		return 5
	}
	if rounds > 20 {
		return 20
	}
	return rounds
}

type Options struct {
	Limit               *int
	MaxSourceAttempts   int
	MaxPaginationRounds int
	RunID               string
}

// New validates a request and fills in the defaults.
func New(kind Kind, target string, opts Options) (Job, error) {
	if !kind.Known() {
		return Job{}, fault.New(fault.UnknownJobType, "Unknown job type: %s", kind)
	}
	target = strings.TrimSpace(target)
	if kind == KindUserTweets {
		target = strings.TrimPrefix(target, "@")
	}
	if target == "" {
		what := "query"
		if kind == KindUserTweets {
			what = "username"
		}
		return Job{}, fault.New(fault.InvalidJob, "%s requires a %s", kind, what)
	}

	limit := DefaultLimit
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	if limit < 0 {
		return Job{}, fault.New(fault.InvalidJob, "limit must not be negative, got %d", limit)
	}

	rounds := opts.MaxPaginationRounds
	if rounds <= 0 {
		rounds = PaginationBudget(limit)
	}

	return Job{
		Kind:                kind,
		Target:              target,
		Limit:               limit,
		MaxSourceAttempts:   opts.MaxSourceAttempts,
		MaxPaginationRounds: rounds,
		RunID:               opts.RunID,
	}, nil
}

func (j Job) String() string {
	return fmt.Sprintf("%s(%s)", j.Kind, j.Target)
}
