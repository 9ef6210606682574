package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"quoteengine/internal/provider"
	"quoteengine/internal/provider/breaker"
	"quoteengine/internal/provider/providertest"
)

func TestNew_DisabledReturnsSource(t *testing.T) {
	t.Parallel()

	stub := providertest.NewStub("coinbase", nil)
	require.Same(t, stub, breaker.New(stub, breaker.Config{}))
}

func TestBreaker_OpensAfterConsecutiveRetryableFailures(t *testing.T) {
	t.Parallel()

	// Arrange: an upstream that always answers 503.
	stub := providertest.Failing("coinbase", provider.HTTPStatus(503, ""))
	src := breaker.New(stub, breaker.Config{ConsecutiveFailures: 2, OpenTimeout: time.Hour, Logger: zerolog.Nop()})

	// Act: two failures trip the breaker; the third call never reaches upstream.
	for i := 0; i < 2; i++ {
		_, err := src.Fetch(context.Background(), "BTC", "JPY")
		require.Error(t, err)
	}
	_, err := src.Fetch(context.Background(), "BTC", "JPY")

	// Assert
	var pe *provider.ProviderError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, provider.ErrCircuitOpen, pe.Kind)
	require.False(t, pe.Retryable())
	require.Equal(t, 2, stub.Calls())
	require.Equal(t, gobreaker.StateOpen, src.(*breaker.Source).State())
}

func TestBreaker_UnsupportedPairDoesNotTrip(t *testing.T) {
	t.Parallel()

	stub := providertest.NewStub("coinbase", map[string]string{"BTC/JPY": "1"})
	src := breaker.New(stub, breaker.Config{ConsecutiveFailures: 1, Logger: zerolog.Nop()})

	for i := 0; i < 3; i++ {
		_, err := src.Fetch(context.Background(), "FOO", "JPY")
		var pe *provider.ProviderError
		require.True(t, errors.As(err, &pe))
		require.Equal(t, provider.ErrUnsupportedPair, pe.Kind)
	}
	q, err := src.Fetch(context.Background(), "BTC", "JPY")
	require.NoError(t, err)
	require.Equal(t, "1", q.UnitPrice.String())
	require.Equal(t, 4, stub.Calls())
}

func TestStates_OnlyBreakerWrappedSources(t *testing.T) {
	t.Parallel()

	// Arrange
	fx := breaker.New(providertest.NewStub("frankfurter", nil), breaker.Config{ConsecutiveFailures: 1, OpenTimeout: time.Hour, Logger: zerolog.Nop()})
	_, _ = fx.Fetch(context.Background(), "USD", "JPY")
	down := providertest.Failing("coinbase", provider.HTTPStatus(502, ""))
	primary := breaker.New(down, breaker.Config{ConsecutiveFailures: 1, OpenTimeout: time.Hour, Logger: zerolog.Nop()})
	_, _ = primary.Fetch(context.Background(), "BTC", "JPY")
	set := provider.Set{FX: fx, CryptoPrimary: primary, CryptoSecondary: providertest.NewStub("cryptocompare", nil)}

	// Act
	states := breaker.States(set)

	// Assert: unsupported pairs keep frankfurter closed; plain stubs are omitted.
	require.Equal(t, map[string]string{"frankfurter": "closed", "coinbase": "open"}, states)
}
