package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"

    "quoteengine/internal/bootstrap"
    "quoteengine/internal/config"
    "quoteengine/internal/metrics"
    "quoteengine/internal/provider/breaker"
    "quoteengine/internal/resolve"
)

func main() {
    // Config
    cfgPath := os.Getenv("CONFIG_FILE")
    cfg, err := config.Load(cfgPath)
    log := bootstrap.NewLogger(os.Stderr, cfg.LogLevel)
    if err != nil {
        log.Fatal().Err(err).Msg("config")
    }

    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    rec := metrics.New(reg)

    providers := bootstrap.Sources(cfg, log)
    svc := resolve.NewService(bootstrap.ResolveConfig(cfg, rec), providers, time.Now)
    svc.Timeout = requestTimeout(cfg)

    s := &server{
        resolver:    svc,
        defaultFiat: cfg.DefaultFiat,
        timeout:     svc.Timeout,
        breakers:    func() map[string]string { return breaker.States(providers) },
        log:         log,
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           s.routes(reg),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      s.timeout + 5*time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        log.Info().Str("addr", srv.Addr).Str("cache_dir", cfg.CacheDir).Msg("server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("server")
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}

// requestTimeout bounds a whole request: every retry of every source in the
// worst-case FX-then-crypto chain.
func requestTimeout(cfg config.Config) time.Duration {
    attempts := cfg.RetryPolicy().Attempts()
    per := cfg.RequestTimeout() + cfg.RetryPolicy().BackoffForAttempt(attempts)
    return time.Duration(3*attempts) * per
}
