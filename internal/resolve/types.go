package resolve

import (
    "strings"
    "time"

    "github.com/shopspring/decimal"

    "quoteengine/internal/expr"
    "quoteengine/internal/metrics"
    "quoteengine/internal/money"
    "quoteengine/internal/provider"
)

// Config is everything ResolveMarket needs besides the sources and the clock.
type Config struct {
    CacheDir string
    TTL      time.Duration
    Retry    provider.RetryPolicy
    // Sleep is called between retry attempts; nil means time.Sleep.
    Sleep   func(time.Duration)
    Metrics *metrics.Recorder
}

func (c Config) sleep() func(time.Duration) {
    if c.Sleep != nil {
        return c.Sleep
    }
    return time.Sleep
}

// MarketRequest asks for amount units of base priced in quote.
type MarketRequest struct {
    Kind   provider.Kind
    Base   string
    Quote  string
    Amount decimal.Decimal
}

// NewMarketRequest normalizes and validates a request. FX symbols must be
// three letters, crypto symbols 2-10 alphanumerics; amount must be positive.
func NewMarketRequest(kind provider.Kind, base, quote string, amount decimal.Decimal) (MarketRequest, error) {
    base, quote = money.NormalizeSymbol(base), money.NormalizeSymbol(quote)
    validate := money.ValidateCryptoSymbol
    if kind == provider.KindFX {
        validate = money.ValidateFiatSymbol
    }
    for _, s := range []string{base, quote} {
        if err := validate(s); err != nil {
            return MarketRequest{}, &expr.UserError{Msg: err.Error()}
        }
    }
    if !amount.IsPositive() {
        return MarketRequest{}, &expr.UserError{Msg: "amount must be positive, got " + money.FormatPlain(amount)}
    }
    return MarketRequest{Kind: kind, Base: base, Quote: quote, Amount: amount}, nil
}

// CacheStatus is the provenance of a MarketOutput.
type CacheStatus string

const (
    StatusLive               CacheStatus = "live"
    StatusCacheFresh         CacheStatus = "cache_fresh"
    StatusCacheStaleFallback CacheStatus = "cache_stale_fallback"
)

// CacheMetadata describes where a MarketOutput came from. Never persisted.
type CacheMetadata struct {
    Status  CacheStatus `json:"status"`
    Key     string      `json:"key"`
    TTLSecs int64       `json:"ttl_secs"`
    AgeSecs int64       `json:"age_secs"`
}

// MarketOutput is the fully resolved answer for a MarketRequest.
type MarketOutput struct {
    Kind      provider.Kind   `json:"kind"`
    Base      string          `json:"base"`
    Quote     string          `json:"quote"`
    Amount    decimal.Decimal `json:"amount"`
    UnitPrice decimal.Decimal `json:"unit_price"`
    Converted decimal.Decimal `json:"converted"`
    Provider  string          `json:"provider"`
    FetchedAt string          `json:"fetched_at"`
    Cache     CacheMetadata   `json:"cache"`
}

// RuntimeError is returned when no usable quote exists: every provider
// failed and nothing is cached, or the cache itself could not be used.
type RuntimeError struct {
    Trace []string
    Err   error
}

func (e *RuntimeError) Error() string {
    if len(e.Trace) > 0 {
        return "provider trace: " + strings.Join(e.Trace, "; ")
    }
    if e.Err != nil {
        return e.Err.Error()
    }
    return "resolution failed"
}

func (e *RuntimeError) Unwrap() error { return e.Err }
