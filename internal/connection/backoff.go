package connection

import (
	"math"
	"time"
)

// Backoff computes reconnect delays: Base * Multiplier^attempt, capped at Max.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// Delay returns the wait before reconnect attempt number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Base) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && (math.IsInf(d, 1) || d > float64(b.Max)) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
