// Package retry runs a single network operation under a fixed exponential
// backoff policy.
//
// Every failure is retried the same way. Transport errors, non-success
// statuses and undecodable bodies all consume the budget, including ones that
// can never succeed such as a revoked token. Only errors that report
// themselves as permanent, and context cancellation, end the loop early.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"Actionboard/internal/config"
)

const (
	DefaultMaxRetries  = 10
	DefaultInitialWait = 1 * time.Second
	DefaultMultiplier  = 1.5
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how often and how patiently an operation is retried
type Policy struct {
	MaxRetries  int
	InitialWait time.Duration
	Multiplier  float64

	// Sleep defaults to a timer that honours ctx
	Sleep SleepFunc

	// OnRetry is called after a failed attempt, before waiting
	OnRetry func(op string, attempt int, wait time.Duration, err error)

	// OnExhausted is called once the budget is spent
	OnExhausted func(op string, attempts int, err error)
}

// DefaultPolicy returns the documented defaults: ten retries starting at one
// second and growing by half each time
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  DefaultMaxRetries,
		InitialWait: DefaultInitialWait,
		Multiplier:  DefaultMultiplier,
	}
}

// FromConfig builds a policy from the retry section of the configuration
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxRetries:  cfg.MaxRetries,
		InitialWait: cfg.InitialWait,
		Multiplier:  cfg.Multiplier,
	}
}

// Backoff returns the wait before the given retry, counting from zero.
// There is no jitter and no configured upper bound; a wait too long to
// represent saturates at the largest time.Duration.
func (p Policy) Backoff(retry int) time.Duration {
	wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(retry))
	if wait >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(wait)
}

// Error is returned once every attempt has failed
type Error struct {
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether err, or anything it wraps, asks not to be retried
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

// Do calls fn until it succeeds, returns a permanent error, ctx is done, or
// MaxRetries+1 attempts have failed
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if IsPermanent(err) {
			return zero, err
		}
		if attempt >= p.MaxRetries {
			if p.OnExhausted != nil {
				p.OnExhausted(op, attempt+1, err)
			}
			return zero, &Error{Op: op, Attempts: attempt + 1, Err: err}
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(op, attempt+1, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
