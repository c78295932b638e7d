package wsrpc

import (
	"math"
	"math/rand"
	"time"
)

const (
	DefaultBackoffFloor = time.Second
	DefaultBackoffCap   = 30 * time.Second

	jitterLow  = 0.85
	jitterSpan = 0.30
)

// Backoff yields reconnect waits of min(current, cap) scaled by a jitter
// factor in [0.85, 1.15). current doubles after every wait; only the
// wait itself is capped.
type Backoff struct {
	floor   time.Duration
	cap     time.Duration
	current time.Duration
	jitter  func() float64
}

func NewBackoff(floor, cap time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}
	if cap < floor {
		cap = floor
	}
	return &Backoff{
		floor:   floor,
		cap:     cap,
		current: floor,
		jitter:  rand.Float64,
	}
}

// Next returns the wait before the next attempt and doubles the backoff.
func (b *Backoff) Next() time.Duration {
	wait := b.current
	if wait > b.cap {
		wait = b.cap
	}
	factor := jitterLow + jitterSpan*b.jitter()
	if b.current <= math.MaxInt64/2 {
		b.current *= 2
	}
	return time.Duration(float64(wait) * factor)
}

// Reset returns the backoff to its floor.
func (b *Backoff) Reset() {
	b.current = b.floor
}

// Current returns the un-jittered backoff the next wait is based on.
func (b *Backoff) Current() time.Duration {
	return b.current
}
