// Package backoff computes reconnect delays.
//
// The delay for attempt n is min(base*2^n, max) plus a random jitter of up to
// jitter*delay. Attempts are zero-based; negative attempts are treated as zero.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Defaults used when a Policy field is zero.
const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
	DefaultJitter    = 0.1
)

// Policy describes an exponential backoff with additive jitter.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64

	// Rand returns a value in [0,1). Nil uses math/rand/v2.
	Rand func() float64
}

// Default returns the policy used by the real-time client.
func Default() Policy {
	return Policy{
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		Jitter:    DefaultJitter,
	}
}

// Delay returns the wait before reconnect attempt n using the default policy.
func Delay(attempt int) time.Duration {
	return Default().Delay(attempt)
}

// Delay returns the wait before reconnect attempt n.
func (p Policy) Delay(attempt int) time.Duration {
	base, ceiling := p.BaseDelay, p.MaxDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxDelay
	}
	if ceiling < base {
		ceiling = base
	}
	if attempt < 0 {
		attempt = 0
	}

	// doubling stops at the ceiling so large attempts cannot overflow
	delay := base
	for i := 0; i < attempt && delay < ceiling; i++ {
		if delay > ceiling/2 {
			delay = ceiling
			break
		}
		delay *= 2
	}
	if delay > ceiling {
		delay = ceiling
	}

	jitter := p.Jitter
	if jitter <= 0 {
		return delay
	}
	if jitter > 1 {
		jitter = 1
	}
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	return delay + time.Duration(float64(delay)*jitter*r())
}
