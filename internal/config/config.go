package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "gopkg.in/yaml.v3"

    "quoteengine/internal/money"
    "quoteengine/internal/provider"
)

type Server struct {
    Port string `json:"port" yaml:"port"`
}

type Retry struct {
    MaxAttempts   int `json:"max_attempts" yaml:"max_attempts"`
    BaseBackoffMs int `json:"base_backoff_ms" yaml:"base_backoff_ms"`
}

// Source configures one upstream: where it lives, how fast it may be called,
// and when its circuit breaker opens.
type Source struct {
    Enabled               bool   `json:"enabled" yaml:"enabled"`
    Endpoint              string `json:"endpoint" yaml:"endpoint"`
    APIKey                string `json:"api_key" yaml:"api_key"`
    MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
    MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
    Burst                 int    `json:"burst" yaml:"burst"`
    BreakerFailures       int    `json:"breaker_failures" yaml:"breaker_failures"`
    BreakerOpenSec        int    `json:"breaker_open_sec" yaml:"breaker_open_sec"`
}

type Config struct {
    Server            Server `json:"server" yaml:"server"`
    LogLevel          string `json:"log_level" yaml:"log_level"`
    CacheDir          string `json:"cache_dir" yaml:"cache_dir"`
    CacheTTLSec       int    `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
    DefaultFiat       string `json:"default_fiat" yaml:"default_fiat"`
    RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
    Retry             Retry  `json:"retry" yaml:"retry"`
    Frankfurter       Source `json:"frankfurter" yaml:"frankfurter"`
    Coinbase          Source `json:"coinbase" yaml:"coinbase"`
    CryptoCompare     Source `json:"cryptocompare" yaml:"cryptocompare"`
}

func Default() Config {
    return Config{
        Server:            Server{Port: "8080"},
        LogLevel:          "info",
        CacheDir:          defaultCacheDir(),
        CacheTTLSec:       60,
        DefaultFiat:       "JPY",
        RequestTimeoutSec: 10,
        Retry:             Retry{MaxAttempts: 3, BaseBackoffMs: 250},
        Frankfurter: Source{
            Enabled:              true,
            Endpoint:             "https://api.frankfurter.app",
            MaxRequestsPerMinute: 60,
            Burst:                5,
            BreakerFailures:      5,
            BreakerOpenSec:       30,
        },
        Coinbase: Source{
            Enabled:              true,
            Endpoint:             "https://api.coinbase.com",
            MaxRequestsPerMinute: 300,
            Burst:                10,
            BreakerFailures:      5,
            BreakerOpenSec:       30,
        },
        CryptoCompare: Source{
            Enabled:              true,
            Endpoint:             "https://min-api.cryptocompare.com",
            MaxRequestsPerMinute: 50,
            Burst:                5,
            BreakerFailures:      5,
            BreakerOpenSec:       60,
        },
    }
}

func defaultCacheDir() string {
    if dir, err := os.UserCacheDir(); err == nil {
        return filepath.Join(dir, "quoteengine")
    }
    return ".quote-cache"
}

// Load reads config from path. JSON is assumed unless the extension is
// .yaml or .yml. With an empty path, config.json, config.yaml and config.yml
// in the working directory are tried in turn; a missing file yields defaults.
// Environment variables are applied last.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
            if _, err := os.Stat(candidate); err == nil {
                path = candidate
                break
            }
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := decode(path, b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    if err := cfg.Validate(); err != nil {
        return cfg, err
    }
    return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
    switch strings.ToLower(filepath.Ext(path)) {
    case ".yaml", ".yml":
        return yaml.Unmarshal(b, cfg)
    default:
        return json.Unmarshal(b, cfg)
    }
}

// Validate rejects settings the resolver cannot work with.
func (c Config) Validate() error {
    if err := money.ValidateFiatSymbol(money.NormalizeSymbol(c.DefaultFiat)); err != nil {
        return fmt.Errorf("config: default_fiat: %w", err)
    }
    if c.CacheDir == "" {
        return errors.New("config: cache_dir is empty")
    }
    if c.CacheTTLSec < 0 {
        return fmt.Errorf("config: cache_ttl_sec must be >= 0, got %d", c.CacheTTLSec)
    }
    if c.Retry.BaseBackoffMs < 0 {
        return fmt.Errorf("config: retry.base_backoff_ms must be >= 0, got %d", c.Retry.BaseBackoffMs)
    }
    return nil
}

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }

func (c Config) RequestTimeout() time.Duration {
    return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c Config) RetryPolicy() provider.RetryPolicy {
    return provider.RetryPolicy{
        MaxAttempts: c.Retry.MaxAttempts,
        BaseBackoff: time.Duration(c.Retry.BaseBackoffMs) * time.Millisecond,
    }
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.LogLevel = v }
    if v := os.Getenv("QUOTE_CACHE_DIR"); v != "" { cfg.CacheDir = v }
    if v := os.Getenv("QUOTE_CACHE_TTL_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { cfg.CacheTTLSec = x }
    }
    if v := os.Getenv("QUOTE_DEFAULT_FIAT"); v != "" { cfg.DefaultFiat = strings.ToUpper(v) }
    if v := os.Getenv("QUOTE_REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { cfg.RequestTimeoutSec = x }
    }
    if v := os.Getenv("QUOTE_RETRY_MAX_ATTEMPTS"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { cfg.Retry.MaxAttempts = x }
    }
    if v := os.Getenv("QUOTE_RETRY_BASE_BACKOFF_MS"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { cfg.Retry.BaseBackoffMs = x }
    }
    applySourceEnv("FRANKFURTER", &cfg.Frankfurter)
    applySourceEnv("COINBASE", &cfg.Coinbase)
    applySourceEnv("CRYPTOCOMPARE", &cfg.CryptoCompare)
}

// applySourceEnv reads <PREFIX>_ENABLED, _ENDPOINT, _API_KEY, _MAX_RPM,
// _MIN_INTERVAL_SEC, _BURST, _BREAKER_FAILURES and _BREAKER_OPEN_SEC.
func applySourceEnv(prefix string, s *Source) {
    if v := os.Getenv(prefix + "_ENABLED"); v != "" {
        switch strings.ToLower(v) {
        case "1", "true", "yes", "y": s.Enabled = true
        case "0", "false", "no", "n": s.Enabled = false
        }
    }
    if v := os.Getenv(prefix + "_ENDPOINT"); v != "" { s.Endpoint = v }
    if v := os.Getenv(prefix + "_API_KEY"); v != "" { s.APIKey = v }
    if v := os.Getenv(prefix + "_MAX_RPM"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { s.MaxRequestsPerMinute = x }
    }
    if v := os.Getenv(prefix + "_MIN_INTERVAL_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { s.MinRequestIntervalSec = x }
    }
    if v := os.Getenv(prefix + "_BURST"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { s.Burst = x }
    }
    if v := os.Getenv(prefix + "_BREAKER_FAILURES"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { s.BreakerFailures = x }
    }
    if v := os.Getenv(prefix + "_BREAKER_OPEN_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { s.BreakerOpenSec = x }
    }
}
