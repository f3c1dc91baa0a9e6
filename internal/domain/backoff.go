package domain

import (
	"math"
	"time"
)

// Backoff is a capped exponential retry policy: Base * 2^(retry-1), at most Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the attempt following the retry-th failure.
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	d := b.Base
	for i := 1; i < retry; i++ {
		if d > math.MaxInt64/2 {
			return d
		}
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
