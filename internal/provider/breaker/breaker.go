// Package breaker trips a source after repeated retryable failures so a dead
// upstream is skipped without paying for its timeouts and backoff.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"quoteengine/internal/provider"
)

// Config controls when the breaker opens.
type Config struct {
	// ConsecutiveFailures opens the breaker; 0 disables it.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration
	// Logger receives state changes.
	Logger zerolog.Logger
}

// Source wraps a provider.Source with a gobreaker.CircuitBreaker.
type Source struct {
	P  provider.Source
	cb *gobreaker.CircuitBreaker
}

// New wraps src, or returns it unchanged when cfg disables the breaker.
func New(src provider.Source, cfg Config) provider.Source {
	if cfg.ConsecutiveFailures == 0 {
		return src
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	threshold := cfg.ConsecutiveFailures
	logger := cfg.Logger
	settings := gobreaker.Settings{
		Name:        src.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only upstream health problems count against the breaker; an
		// unsupported pair says nothing about availability.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var pe *provider.ProviderError
			if errors.As(err, &pe) {
				return !pe.Retryable()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &Source{P: src, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (s *Source) Name() string { return s.P.Name() }

// State reports the breaker state; States collects it for /healthz.
func (s *Source) State() gobreaker.State { return s.cb.State() }

// States maps the name of every breaker-wrapped source in set to its state.
// Sources without a breaker are left out.
func States(set provider.Set) map[string]string {
	out := map[string]string{}
	for _, src := range append(set.Chain(provider.KindFX), set.Chain(provider.KindCrypto)...) {
		if b, ok := src.(*Source); ok {
			out[b.Name()] = b.State().String()
		}
	}
	return out
}

func (s *Source) Fetch(ctx context.Context, base, quote string) (provider.MarketQuote, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.P.Fetch(ctx, base, quote)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return provider.MarketQuote{}, &provider.ProviderError{Kind: provider.ErrCircuitOpen, Message: err.Error(), Err: err}
		}
		return provider.MarketQuote{}, err
	}
	return v.(provider.MarketQuote), nil
}
