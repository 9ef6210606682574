// Package bootstrap turns a config.Config into the logger, sources and
// resolver settings shared by the quote CLI and the HTTP server.
package bootstrap

import (
    "io"
    "net/http"
    "os"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "golang.org/x/term"

    "quoteengine/internal/config"
    "quoteengine/internal/httpx"
    "quoteengine/internal/metrics"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/breaker"
    "quoteengine/internal/provider/coinbase"
    "quoteengine/internal/provider/cryptocompare"
    "quoteengine/internal/provider/frankfurter"
    "quoteengine/internal/provider/ratelimit"
    "quoteengine/internal/resolve"
)

// NewLogger writes human-readable output when w is a terminal and JSON
// lines otherwise. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
    lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
    if err != nil || lvl == zerolog.NoLevel {
        lvl = zerolog.InfoLevel
    }
    if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
        w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
    }
    return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Sources builds the FX and crypto sources enabled in cfg, each wrapped in
// its rate limiter and circuit breaker.
func Sources(cfg config.Config, log zerolog.Logger) provider.Set {
    client := httpx.New(cfg.RequestTimeout())

    var set provider.Set
    if s := cfg.Frankfurter; s.Enabled {
        src := frankfurter.New(
            frankfurter.WithBaseURL(s.Endpoint),
            frankfurter.WithHTTPClient(client),
            frankfurter.WithHeader(http.Header{"Accept": []string{"application/json"}}),
        )
        set.FX = decorate(src, s, log)
    }
    if s := cfg.Coinbase; s.Enabled {
        src := coinbase.New(
            coinbase.WithBaseURL(s.Endpoint),
            coinbase.WithHTTPClient(client),
        )
        set.CryptoPrimary = decorate(src, s, log)
    }
    if s := cfg.CryptoCompare; s.Enabled {
        opts := []cryptocompare.Option{
            cryptocompare.WithBaseURL(s.Endpoint),
            cryptocompare.WithHTTPClient(client),
        }
        if s.APIKey != "" {
            opts = append(opts, cryptocompare.WithAPIKey(s.APIKey))
        } else {
            log.Debug().Msg("cryptocompare api key not set; using anonymous quota")
        }
        set.CryptoSecondary = decorate(cryptocompare.New(opts...), s, log)
    }
    return set
}

// decorate applies rate limiting inside the breaker, so calls rejected by an
// open breaker never consume a token.
func decorate(src provider.Source, s config.Source, log zerolog.Logger) provider.Source {
    limited := ratelimit.New(src, s.MaxRequestsPerMinute, s.Burst, time.Duration(s.MinRequestIntervalSec)*time.Second)
    failures := s.BreakerFailures
    if failures < 0 {
        failures = 0
    }
    return breaker.New(limited, breaker.Config{
        ConsecutiveFailures: uint32(failures),
        OpenTimeout:         time.Duration(s.BreakerOpenSec) * time.Second,
        Logger:              log.With().Str("provider", src.Name()).Logger(),
    })
}

// ResolveConfig maps cfg onto the resolver's settings.
func ResolveConfig(cfg config.Config, rec *metrics.Recorder) resolve.Config {
    return resolve.Config{
        CacheDir: cfg.CacheDir,
        TTL:      cfg.CacheTTL(),
        Retry:    cfg.RetryPolicy(),
        Metrics:  rec,
    }
}
