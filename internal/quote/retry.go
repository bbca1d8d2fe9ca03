package quote

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// RetryPolicy bounds how often an upstream call is attempted and how long to
// wait between attempts. Rate-limited attempts back off exponentially,
// other transient failures linearly.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitBase time.Duration
	TransientStep time.Duration
}

// DefaultRetryPolicy returns the production policy: 3 attempts, 250ms·2^n
// after a rate limit and 200ms·n after any other transient failure.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		RateLimitBase: 250 * time.Millisecond,
		TransientStep: 200 * time.Millisecond,
	}
}

// Next returns the delay to wait after the given 1-based attempt failed, or
// false when the attempt budget is exhausted.
func (p RetryPolicy) Next(attempt int, rateLimited bool) (time.Duration, bool) {
	if attempt < 1 || attempt >= p.MaxAttempts {
		return 0, false
	}
	if rateLimited {
		return p.RateLimitBase * time.Duration(1<<attempt), true
	}
	return p.TransientStep * time.Duration(attempt), true
}

// Retryable reports whether err belongs to a class worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrUpstream)
}

// RetryNotify is called before each wait with the failed attempt number.
type RetryNotify func(err error, attempt int, delay time.Duration)

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget runs out. The last error is returned unchanged so callers
// can still classify it with errors.Is.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, notify RetryNotify) error {
	b := &policyBackOff{policy: p}

	operation := func() error {
		b.attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		b.rateLimited = errors.Is(err, domain.ErrRateLimited)
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		retriesTotal.WithLabelValues(retryReason(err)).Inc()
		if notify != nil {
			notify(err, b.attempt, d)
		}
	})
}

// policyBackOff adapts RetryPolicy to backoff.BackOff. The operation records
// the class of its last failure before NextBackOff is consulted.
type policyBackOff struct {
	policy      RetryPolicy
	attempt     int
	rateLimited bool
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d, ok := b.policy.Next(b.attempt, b.rateLimited)
	if !ok {
		return backoff.Stop
	}
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
	b.rateLimited = false
}

func retryReason(err error) string {
	if errors.Is(err, domain.ErrRateLimited) {
		return "rate_limited"
	}
	return "transient"
}
