package fetch

import (
	"context"
	"math"
	"time"
)

// Backoff computes the delay before a retry.
type Backoff struct {
	// Unit is the delay before the first retry.
	Unit time.Duration

	// Multiplier grows the delay between consecutive retries. Zero or
	// negative selects DefaultMultiplier; values between 0 and 1 give a
	// constant Unit delay.
	Multiplier float64

	// Max caps a single delay. Zero means unbounded.
	Max time.Duration
}

// DefaultMultiplier doubles the delay on every retry.
const DefaultMultiplier = 2.0

// DefaultBackoff returns 1s, 2s, 4s, ... without a cap.
func DefaultBackoff() Backoff {
	return Backoff{
		Unit:       1 * time.Second,
		Multiplier: DefaultMultiplier,
	}
}

// Delay returns the wait before attempt (0-indexed). Attempt 0 has none;
// attempt i > 0 waits Unit * Multiplier^(i-1).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 || b.Unit <= 0 {
		return 0
	}

	mult := b.Multiplier
	switch {
	case mult <= 0:
		mult = DefaultMultiplier
	case mult < 1:
		mult = 1
	}

	d := float64(b.Unit) * math.Pow(mult, float64(attempt-1))

	delay := time.Duration(math.MaxInt64)
	if d < math.MaxInt64 {
		delay = time.Duration(d)
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
