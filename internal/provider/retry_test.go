package provider_test

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "quoteengine/internal/provider"
    "quoteengine/internal/provider/providertest"
)

func TestBackoffForAttempt_Exponential(t *testing.T) {
    t.Parallel()

    p := provider.RetryPolicy{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond}
    require.Equal(t, 100*time.Millisecond, p.BackoffForAttempt(1))
    require.Equal(t, 200*time.Millisecond, p.BackoffForAttempt(2))
    require.Equal(t, 400*time.Millisecond, p.BackoffForAttempt(3))
    require.Equal(t, time.Duration(0), p.BackoffForAttempt(0))
    require.Equal(t, 30*time.Second, p.BackoffForAttempt(20))
}

func TestAttempts_MinimumOne(t *testing.T) {
    t.Parallel()

    require.Equal(t, 1, provider.RetryPolicy{}.Attempts())
    require.Equal(t, 1, provider.RetryPolicy{MaxAttempts: -3}.Attempts())
    require.Equal(t, 4, provider.RetryPolicy{MaxAttempts: 4}.Attempts())
}

func TestExecuteWithRetry_SucceedsAfterRetryableFailures(t *testing.T) {
    t.Parallel()

    // Arrange: fail twice with retryable errors, then succeed.
    sleeper := &providertest.NoSleep{}
    var seen []int
    op := func(attempt int) (string, error) {
        seen = append(seen, attempt)
        if attempt < 3 {
            return "", provider.HTTPStatus(http.StatusServiceUnavailable, "")
        }
        return "ok", nil
    }

    // Act
    got, err := provider.ExecuteWithRetry("coinbase", provider.RetryPolicy{MaxAttempts: 3, BaseBackoff: 50 * time.Millisecond}, op, sleeper.Sleep)

    // Assert: three attempts, two backoffs, no real waiting.
    require.NoError(t, err)
    require.Equal(t, "ok", got)
    require.Equal(t, []int{1, 2, 3}, seen)
    require.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, sleeper.Delays)
}

func TestExecuteWithRetry_StopsOnNonRetryable(t *testing.T) {
    t.Parallel()

    sleeper := &providertest.NoSleep{}
    calls := 0
    op := func(int) (int, error) {
        calls++
        return 0, provider.UnsupportedPair("BTC", "XXX")
    }

    _, err := provider.ExecuteWithRetry("frankfurter", provider.RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Second}, op, sleeper.Sleep)

    require.Error(t, err)
    require.Equal(t, 1, calls)
    require.Empty(t, sleeper.Delays)

    var pe *provider.ProviderError
    require.True(t, errors.As(err, &pe))
    require.Equal(t, "frankfurter", pe.Provider)
    require.Equal(t, provider.ErrUnsupportedPair, pe.Kind)
    require.Equal(t, "frankfurter: unsupported pair: BTC/XXX", pe.TraceEntry())
}

func TestExecuteWithRetry_ExhaustsAttempts(t *testing.T) {
    t.Parallel()

    sleeper := &providertest.NoSleep{}
    calls := 0
    op := func(int) (int, error) {
        calls++
        return 0, errors.New("connection refused")
    }

    _, err := provider.ExecuteWithRetry("cryptocompare", provider.RetryPolicy{MaxAttempts: 3, BaseBackoff: 10 * time.Millisecond}, op, sleeper.Sleep)

    require.Equal(t, 3, calls)
    require.Len(t, sleeper.Delays, 2)

    var pe *provider.ProviderError
    require.True(t, errors.As(err, &pe))
    require.Equal(t, provider.ErrTransport, pe.Kind)
    require.Equal(t, "cryptocompare: transport error: connection refused", pe.TraceEntry())
}

func TestExecuteWithRetry_ZeroAttemptsStillRunsOnce(t *testing.T) {
    t.Parallel()

    calls := 0
    _, err := provider.ExecuteWithRetry("x", provider.RetryPolicy{}, func(int) (int, error) {
        calls++
        return 0, errors.New("boom")
    }, nil)

    require.Error(t, err)
    require.Equal(t, 1, calls)
}

func TestExecuteWithRetry_StopsWhenContextEnds(t *testing.T) {
    t.Parallel()

    for _, ctxErr := range []error{context.Canceled, context.DeadlineExceeded} {
        // Arrange: a transport failure caused by the request context.
        sleeper := &providertest.NoSleep{}
        calls := 0
        op := func(int) (int, error) {
            calls++
            return 0, provider.Transport(fmt.Errorf("Get \"https://api.coinbase.com\": %w", ctxErr))
        }

        // Act
        _, err := provider.ExecuteWithRetry("coinbase", provider.RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Second}, op, sleeper.Sleep)

        // Assert: one attempt, no backoff.
        require.ErrorIs(t, err, ctxErr)
        require.Equal(t, 1, calls)
        require.Empty(t, sleeper.Delays)
    }
}

func TestProviderError_Retryable(t *testing.T) {
    t.Parallel()

    cases := []struct {
        err  *provider.ProviderError
        want bool
    }{
        {provider.Transport(errors.New("eof")), true},
        {provider.HTTPStatus(429, ""), true},
        {provider.HTTPStatus(500, ""), true},
        {provider.HTTPStatus(503, ""), true},
        {provider.HTTPStatus(400, ""), false},
        {provider.HTTPStatus(404, ""), false},
        {provider.InvalidResponse("bad json"), false},
        {provider.UnsupportedPair("A", "B"), false},
        {&provider.ProviderError{Kind: provider.ErrCircuitOpen}, false},
    }
    for _, tc := range cases {
        require.Equalf(t, tc.want, tc.err.Retryable(), "%v", tc.err)
    }
}

func TestSet_Chain(t *testing.T) {
    t.Parallel()

    fx := providertest.NewStub("fx", nil)
    primary := providertest.NewStub("primary", nil)
    set := provider.Set{FX: fx, CryptoPrimary: primary}

    require.Equal(t, []provider.Source{fx}, set.Chain(provider.KindFX))
    require.Equal(t, []provider.Source{primary}, set.Chain(provider.KindCrypto))
}

func TestParseKind(t *testing.T) {
    t.Parallel()

    k, err := provider.ParseKind("Crypto")
    require.NoError(t, err)
    require.Equal(t, provider.KindCrypto, k)

    _, err = provider.ParseKind("stock")
    require.Error(t, err)
}
