package ratelimit

import (
    "context"
    "time"

    "golang.org/x/time/rate"

    "quoteengine/internal/provider"
)

// Source wraps a provider.Source and gates calls through a token bucket.
// A canceled context while waiting surfaces as a transport error.
type Source struct {
    P       provider.Source
    Limiter *rate.Limiter
}

// New limits src to rpm requests per minute with the given burst.
// rpm <= 0 with minInterval > 0 spaces calls by minInterval instead;
// both unset returns src unchanged.
func New(src provider.Source, rpm int, burst int, minInterval time.Duration) provider.Source {
    if burst <= 0 {
        burst = 1
    }
    switch {
    case rpm > 0:
        return &Source{P: src, Limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
    case minInterval > 0:
        return &Source{P: src, Limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
    }
    return src
}

func (s *Source) Name() string { return s.P.Name() }

func (s *Source) Fetch(ctx context.Context, base, quote string) (provider.MarketQuote, error) {
    if s.Limiter != nil {
        if err := s.Limiter.Wait(ctx); err != nil {
            return provider.MarketQuote{}, provider.Transport(err)
        }
    }
    return s.P.Fetch(ctx, base, quote)
}
