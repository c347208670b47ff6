package queue

import "time"

// Backoff computes the delay before a retry. The curve is exponential with a
// cap: base, 2*base, 4*base... up to max. Deterministic so the delay for a
// given attempt is never shorter than for the previous one.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before attempt n runs (n is 1-based; the delay
// applies before attempts 2 and up).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return b.Base
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}
