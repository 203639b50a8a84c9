package backoff

import (
	"context"
	"time"

	cb "github.com/cenkalti/backoff/v5"
)

// Policy describes a capped exponential schedule. Jitter is the randomization
// factor applied to each interval (0.1 = ±10%).
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     float64
}

var (
	// Retry is used between forwarder submission attempts.
	Retry = Policy{Base: 100 * time.Millisecond, Multiplier: 2, Max: 2 * time.Second, Jitter: 0.1}
	// Reconnect is used by the stream client between dial attempts.
	Reconnect = Policy{Base: time.Second, Multiplier: 2, Max: 30 * time.Second}
)

func (p Policy) normalized() Policy {
	if p.Base <= 0 {
		p.Base = Retry.Base
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Backoff is a stateful schedule. It is not safe for concurrent use.
type Backoff struct {
	eb *cb.ExponentialBackOff
}

func (p Policy) New() *Backoff {
	p = p.normalized()
	eb := cb.NewExponentialBackOff()
	eb.InitialInterval = p.Base
	eb.Multiplier = p.Multiplier
	eb.MaxInterval = p.Max
	eb.RandomizationFactor = p.Jitter
	eb.Reset()
	return &Backoff{eb: eb}
}

// Next returns the next delay and advances the schedule.
func (b *Backoff) Next() time.Duration {
	return b.eb.NextBackOff()
}

func (b *Backoff) Reset() {
	b.eb.Reset()
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
