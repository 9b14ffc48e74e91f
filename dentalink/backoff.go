package dentalink

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// reconnectPolicy produces the delay schedule between reconnect attempts:
// base, base*1.5, base*2.25, ... capped at 10x base, bounded by a total
// attempt budget. A successful open resets both the factor and the budget.
type reconnectPolicy struct {
	bo       *backoff.ExponentialBackOff
	maxTries int
	tried    int
}

func newReconnectPolicy(base time.Duration, maxTries int) *reconnectPolicy {
	if base <= 0 {
		base = time.Second
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 1.5
	bo.MaxInterval = 10 * base
	bo.RandomizationFactor = 0 // deterministic, monotonically non-decreasing
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &reconnectPolicy{bo: bo, maxTries: maxTries}
}

// next consumes one attempt and returns the delay before it, or false
// when the budget is exhausted.
func (p *reconnectPolicy) next() (time.Duration, bool) {
	if p.tried >= p.maxTries {
		return 0, false
	}
	p.tried++
	d := p.bo.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

// reset refills the attempt budget and resets the factor to 1.
func (p *reconnectPolicy) reset() {
	p.tried = 0
	p.bo.Reset()
}

// remaining returns the unconsumed attempt budget.
func (p *reconnectPolicy) remaining() int {
	if p.tried >= p.maxTries {
		return 0
	}
	return p.maxTries - p.tried
}
