package provider

import (
    "context"
    "errors"
    "time"
)

const maxBackoff = 30 * time.Second

// RetryPolicy bounds how often a source is called for one pair.
type RetryPolicy struct {
    MaxAttempts int
    BaseBackoff time.Duration
}

// Attempts is MaxAttempts clamped to at least one.
func (p RetryPolicy) Attempts() int {
    if p.MaxAttempts < 1 {
        return 1
    }
    return p.MaxAttempts
}

// BackoffForAttempt is the pause after failed attempt n (1-based):
// BaseBackoff * 2^(n-1), capped at 30s.
func (p RetryPolicy) BackoffForAttempt(n int) time.Duration {
    if n < 1 || p.BaseBackoff <= 0 {
        return 0
    }
    d := p.BaseBackoff
    for i := 1; i < n; i++ {
        d *= 2
        if d >= maxBackoff {
            return maxBackoff
        }
    }
    return d
}

// ExecuteWithRetry calls op until it succeeds, fails with a non-retryable
// error, fails because its context ended, or the policy's attempts are used up. op receives the 1-based
// attempt number; sleep is called between attempts. The returned error is
// always a *ProviderError tagged with name.
func ExecuteWithRetry[T any](name string, policy RetryPolicy, op func(attempt int) (T, error), sleep func(time.Duration)) (T, error) {
    var zero T
    attempts := policy.Attempts()
    for attempt := 1; ; attempt++ {
        v, err := op(attempt)
        if err == nil {
            return v, nil
        }
        pe := AsProviderError(name, err)
        if !pe.Retryable() || attempt >= attempts || contextDone(err) {
            return zero, pe
        }
        if sleep != nil {
            sleep(policy.BackoffForAttempt(attempt))
        }
    }
}

func contextDone(err error) bool {
    return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
