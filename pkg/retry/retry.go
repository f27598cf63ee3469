package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type Operation = func() error

// Policy describes how an operation is retried. The zero value performs a
// single attempt.
type Policy struct {
	MaxRetries    int
	BackoffFactor float64
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Jitter        time.Duration

	// Retryable reports whether err deserves another attempt. When nil every
	// error except Permanent and context errors is retried.
	Retryable func(err error) bool
	// OnRetry is called before sleeping ahead of attempt number `attempt`.
	OnRetry func(attempt int, err error)
}

func NewDefaultPolicy() Policy {
	return Policy{
		MaxRetries:    5,
		BackoffFactor: 2.15,
		InitialDelay:  300 * time.Millisecond,
		MaxDelay:      20 * time.Second,
		Jitter:        50 * time.Millisecond,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Retrier struct {
	policy Policy
}

func NewRetrier(policy Policy) *Retrier {
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = 1
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = policy.InitialDelay
	}
	return &Retrier{
		policy: policy,
	}
}

func NewDefaultRetrier() *Retrier {
	return NewRetrier(NewDefaultPolicy())
}

func (r *Retrier) Policy() Policy {
	return r.policy
}

func (r *Retrier) retryable(err error) bool {
	if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.policy.Retryable != nil {
		return r.policy.Retryable(err)
	}
	return true
}

// Do runs op until it succeeds, returns a non-retryable error, the retry
// budget is spent or ctx is done. Permanent errors are returned unwrapped.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var err error
	delay := r.policy.InitialDelay
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}

		if !r.retryable(err) {
			var p *permanentError
			if errors.As(err, &p) {
				return p.err
			}
			return err
		}

		if attempt == r.policy.MaxRetries {
			return err
		}

		jitter := time.Duration(0)
		if r.policy.Jitter > 0 {
			jitter = time.Duration(rnd.Float64() * float64(r.policy.Jitter))
		}
		nextDelay := delay + jitter
		if nextDelay > r.policy.MaxDelay {
			nextDelay = r.policy.MaxDelay + jitter
		}

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(nextDelay):
		}

		delay = time.Duration(float64(delay) * r.policy.BackoffFactor)
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
	return err
}
