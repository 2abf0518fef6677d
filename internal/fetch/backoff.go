package fetch

import (
	"math"
	"time"
)

// Backoff is the retry delay policy between transfer attempts.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultBackoff waits 1s, 2s, 4s, ... capped at 30s.
var DefaultBackoff = Backoff{Base: time.Second, Factor: 2, Max: 30 * time.Second}

// Delay returns how long to wait after the given failed attempt (1-based)
// before the next one. It is a pure function of attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.Base <= 0 {
		return 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(b.Base) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 && (delay > float64(b.Max) || math.IsInf(delay, 0)) {
		return b.Max
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
