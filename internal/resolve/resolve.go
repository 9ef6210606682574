// Package resolve turns a MarketRequest into a MarketOutput: fresh cache
// first, then the provider chain for the request kind, then stale cache.
package resolve

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/rs/zerolog"
    "github.com/shopspring/decimal"

    "quoteengine/internal/money"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/cache"
)

// IdentityProvider is reported when base and quote are the same symbol.
const IdentityProvider = "identity"

// ResolveMarket resolves req at time now.
//
// A fresh cache record is returned without calling any source. Otherwise the
// sources for req.Kind are tried in order, each under cfg.Retry; the first
// success is written back to the cache. If all fail, an existing record of any
// age is returned as a stale fallback, and with no record the error carries
// every provider failure in attempt order.
func ResolveMarket(ctx context.Context, cfg Config, providers provider.Set, now time.Time, req MarketRequest) (MarketOutput, error) {
    log := zerolog.Ctx(ctx).With().Str("kind", string(req.Kind)).Str("base", req.Base).Str("quote", req.Quote).Logger()
    key := cache.Key(req.Kind, req.Base, req.Quote)
    ttlSecs := int64(cfg.TTL / time.Second)

    if req.Base == req.Quote {
        q := provider.MarketQuote{Provider: IdentityProvider, UnitPrice: decimal.NewFromInt(1), FetchedAt: now}
        return output(req, q, CacheMetadata{Status: StatusLive, Key: key, TTLSecs: ttlSecs}), nil
    }

    path := cache.Path(cfg.CacheDir, key)
    rec, err := cache.ReadCache(path)
    var corrupt *cache.CorruptError
    switch {
    case errors.As(err, &corrupt):
        log.Warn().Err(err).Msg("ignoring corrupt cache record")
        rec = nil
    case err != nil:
        return MarketOutput{}, &RuntimeError{Err: err}
    }

    var (
        cached    provider.MarketQuote
        freshness cache.Freshness
        hasCached bool
    )
    if rec != nil {
        q, err := rec.MarketQuote()
        if err != nil {
            log.Warn().Err(err).Str("key", key).Msg("ignoring unusable cache record")
        } else {
            cached, hasCached = q, true
            freshness = cache.EvaluateFreshness(*rec, now, cfg.TTL)
        }
    }

    if hasCached && freshness.IsFresh {
        log.Debug().Str("key", key).Int64("age_secs", freshness.AgeSecs).Msg("cache hit")
        cfg.Metrics.Resolution(string(req.Kind), string(StatusCacheFresh))
        return output(req, cached, CacheMetadata{Status: StatusCacheFresh, Key: key, TTLSecs: ttlSecs, AgeSecs: freshness.AgeSecs}), nil
    }

    live, trace := fetchLive(ctx, log, cfg, providers.Chain(req.Kind), req)
    if trace == nil {
        if live.FetchedAt.IsZero() {
            live.FetchedAt = now
        }
        if err := cache.WriteCache(path, cache.NewRecord(req.Base, req.Quote, live)); err != nil {
            return MarketOutput{}, &RuntimeError{Err: err}
        }
        cfg.Metrics.Resolution(string(req.Kind), string(StatusLive))
        return output(req, live, CacheMetadata{Status: StatusLive, Key: key, TTLSecs: ttlSecs}), nil
    }

    if hasCached {
        log.Warn().Strs("trace", trace).Int64("age_secs", freshness.AgeSecs).Msg("all providers failed, serving stale cache")
        cfg.Metrics.Resolution(string(req.Kind), string(StatusCacheStaleFallback))
        return output(req, cached, CacheMetadata{Status: StatusCacheStaleFallback, Key: key, TTLSecs: ttlSecs, AgeSecs: freshness.AgeSecs}), nil
    }
    cfg.Metrics.Resolution(string(req.Kind), "failed")
    return MarketOutput{}, &RuntimeError{Trace: trace}
}

// fetchLive walks chain and returns the first quote, or a nil quote and the
// accumulated trace when every source failed.
func fetchLive(ctx context.Context, log zerolog.Logger, cfg Config, chain []provider.Source, req MarketRequest) (provider.MarketQuote, []string) {
    if len(chain) == 0 {
        return provider.MarketQuote{}, []string{fmt.Sprintf("%s: no providers configured", req.Kind)}
    }
    var trace []string
    for _, src := range chain {
        name := src.Name()
        q, err := provider.ExecuteWithRetry(name, cfg.Retry, func(attempt int) (provider.MarketQuote, error) {
            q, err := src.Fetch(ctx, req.Base, req.Quote)
            if err != nil {
                pe := provider.AsProviderError(name, err)
                cfg.Metrics.ProviderAttempt(name, pe.Kind.String())
                log.Debug().Str("provider", name).Int("attempt", attempt).Bool("retryable", pe.Retryable()).Err(err).Msg("provider attempt failed")
                return q, err
            }
            cfg.Metrics.ProviderAttempt(name, "ok")
            return q, nil
        }, cfg.sleep())
        if err == nil {
            if q.Provider == "" {
                q.Provider = name
            }
            return q, nil
        }
        trace = append(trace, provider.AsProviderError(name, err).TraceEntry())
        if ctx.Err() != nil {
            break
        }
    }
    return provider.MarketQuote{}, trace
}

func output(req MarketRequest, q provider.MarketQuote, meta CacheMetadata) MarketOutput {
    fetchedAt := ""
    if !q.FetchedAt.IsZero() {
        fetchedAt = q.FetchedAt.UTC().Format(time.RFC3339)
    }
    return MarketOutput{
        Kind:      req.Kind,
        Base:      req.Base,
        Quote:     req.Quote,
        Amount:    req.Amount,
        UnitPrice: q.UnitPrice,
        Converted: money.RoundConverted(req.Amount.Mul(q.UnitPrice)),
        Provider:  q.Provider,
        FetchedAt: fetchedAt,
        Cache:     meta,
    }
}
