package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rainerleuschke/tcp-bridge/errors"
)

// Policy describes how often and how quickly an operation is retried.
type Policy struct {
	MaxAttempts  int           // 0 runs the operation once
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on any single delay
	Multiplier   float64       // growth factor between delays
	Jitter       float64       // fraction of the delay added at random, 0 to 1

	// OnRetry is called before each sleep with the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Startup is the policy used while bringing up connections at process start.
func Startup() Policy {
	return Policy{
		MaxAttempts:  10,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.25,
	}
}

func (p Policy) normalize() (Policy, error) {
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.Multiplier < 0 {
		return p, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "negative policy value")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return p, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "jitter out of range")
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		return p, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "max delay below initial delay")
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	return p, nil
}

// delay returns the backoff before attempt n+1, without jitter.
func (p Policy) delay(n int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// policy or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p, err := p.normalize()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.IsInvalid(lastErr) || errors.IsFatal(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		sleep := p.delay(attempt)
		if p.Jitter > 0 {
			sleep += time.Duration(rand.Float64() * p.Jitter * float64(sleep))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, sleep, lastErr)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.WrapTransient(ctx.Err(), "retry", "Do",
				fmt.Sprintf("cancelled after %d attempts (last: %v)", attempt, lastErr))
		case <-timer.C:
		}
	}

	return errors.WrapTransient(lastErr, "retry", "Do", fmt.Sprintf("gave up after %d attempts", p.MaxAttempts))
}
