// Package ratelimit records the rate limit a server advertises in its reply
// headers (RateLimit-* and X-RateLimit-*). State is kept per host in Redis so
// that separate runs and processes see the same picture. It observes only;
// request admission stays with the dispatcher's limiter.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Thresholds for classifying the remaining budget.
const (
	// RemainingCritical marks a host as nearly exhausted.
	RemainingCritical = 5

	// RemainingWarning marks a host as running low.
	RemainingWarning = 20
)

// epochCutoff separates X-RateLimit-Reset values given as a Unix timestamp
// from those given as seconds until reset.
const epochCutoff = 1_000_000_000

// ErrMalformedHeader is returned when a rate limit header is present but
// cannot be parsed.
var ErrMalformedHeader = errors.New("malformed rate limit header")

// Level classifies the remaining budget.
type Level string

const (
	LevelHealthy  Level = "healthy"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// State is the last rate limit a host advertised.
type State struct {
	Host string `json:"host"`

	// Limit is the window quota, or 0 when the server did not send one.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets; zero when unknown.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge at now.
func (s *State) IsStale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Level classifies Remaining against the thresholds.
func (s *State) Level() Level {
	switch {
	case s.Remaining < RemainingCritical:
		return LevelCritical
	case s.Remaining < RemainingWarning:
		return LevelWarning
	default:
		return LevelHealthy
	}
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time is unknown or has passed.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseHeaders extracts rate limit state from header. ok is false when the
// reply carried no remaining-count header.
func ParseHeaders(host string, header http.Header, now time.Time) (state *State, ok bool, err error) {
	remainRaw := first(header, "RateLimit-Remaining", "X-RateLimit-Remaining")
	if remainRaw == "" {
		return nil, false, nil
	}

	remaining, err := leadingInt(remainRaw)
	if err != nil {
		return nil, false, errors.Wrapf(ErrMalformedHeader, "remaining %q", remainRaw)
	}

	state = &State{
		Host:       host,
		Remaining:  remaining,
		LastUpdate: now,
	}

	if raw := first(header, "RateLimit-Limit", "X-RateLimit-Limit"); raw != "" {
		limit, err := leadingInt(raw)
		if err != nil {
			return nil, false, errors.Wrapf(ErrMalformedHeader, "limit %q", raw)
		}
		state.Limit = limit
	}

	if raw := first(header, "RateLimit-Reset", "X-RateLimit-Reset"); raw != "" {
		reset, err := leadingInt(raw)
		if err != nil {
			return nil, false, errors.Wrapf(ErrMalformedHeader, "reset %q", raw)
		}
		if reset >= epochCutoff {
			state.ResetAt = time.Unix(int64(reset), 0)
		} else {
			state.ResetAt = now.Add(time.Duration(reset) * time.Second)
		}
	}

	return state, true, nil
}

func first(header http.Header, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// leadingInt parses the first element of values like "100" or
// "100, 100;w=60".
func leadingInt(raw string) (int, error) {
	if i := strings.IndexAny(raw, ",;"); i >= 0 {
		raw = raw[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Newf("negative value %d", n)
	}
	return n, nil
}
