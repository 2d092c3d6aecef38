package rotation

import (
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/purell"
)

// Endpoint is the base address of a mirror, it is always normalised and
// never ends with a slash.
type Endpoint string

func (e Endpoint) String() string {
	return string(e)
}

// Page builds the address of path on this mirror.
func (e Endpoint) Page(path string, query url.Values) string {
	address := string(e) + path
	if len(query) > 0 {
		address += "?" + query.Encode()
	}
	return address
}

const normalizeFlags = purell.FlagsSafe |
	purell.FlagRemoveTrailingSlash |
	purell.FlagRemoveFragment |
	purell.FlagRemoveDuplicateSlashes

// Parse normalises the configured addresses and drops duplicates while keeping
// the first occurrence's position.
func Parse(addresses []string) ([]Endpoint, error) {
	seen := make(map[string]struct{}, len(addresses))
	var out []Endpoint
	for _, raw := range addresses {
		normalized, err := purell.NormalizeURLString(raw, normalizeFlags)
		if err != nil {
			return nil, fmt.Errorf("mirror %q: %w", raw, err)
		}
		u, err := url.Parse(normalized)
		if err != nil {
			return nil, fmt.Errorf("mirror %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("mirror %q: unsupported scheme %q", raw, u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("mirror %q: missing host", raw)
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, Endpoint(normalized))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no mirrors configured")
	}
	return out, nil
}

// State is an ordered list of mirrors with a round-robin cursor. It is owned
// by a single job and is not safe for concurrent use.
type State struct {
	endpoints []Endpoint
	cursor    int
}

func New(endpoints []Endpoint) (*State, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("rotation needs at least one mirror")
	}
	owned := make([]Endpoint, len(endpoints))
	copy(owned, endpoints)
	return &State{endpoints: owned}, nil
}

func (s *State) Current() Endpoint {
	return s.endpoints[s.cursor]
}

// Advance moves to the next mirror, wrapping around, and returns it.
func (s *State) Advance() Endpoint {
	s.cursor = (s.cursor + 1) % len(s.endpoints)
	return s.endpoints[s.cursor]
}

func (s *State) Reset() {
	s.cursor = 0
}

func (s *State) All() []Endpoint {
	out := make([]Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}

func (s *State) Cursor() int {
	return s.cursor
}

func (s *State) Len() int {
	return len(s.endpoints)
}
