// Package cache persists the last live quote per (kind, base, quote) as one
// JSON file and classifies it as fresh or stale against a TTL.
package cache

import (
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "math"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/shopspring/decimal"

    "quoteengine/internal/provider"
)

// Record is the on-disk representation of a cached quote.
type Record struct {
    Base      string `json:"base"`
    Quote     string `json:"quote"`
    Provider  string `json:"provider"`
    UnitPrice string `json:"unit_price"`
    FetchedAt string `json:"fetched_at"`
}

// NewRecord builds the record persisted after a live fetch.
func NewRecord(base, quote string, q provider.MarketQuote) Record {
    return Record{
        Base:      base,
        Quote:     quote,
        Provider:  q.Provider,
        UnitPrice: q.UnitPrice.String(),
        FetchedAt: q.FetchedAt.UTC().Format(time.RFC3339),
    }
}

// MarketQuote rebuilds the quote stored in r.
func (r Record) MarketQuote() (provider.MarketQuote, error) {
    price, err := decimal.NewFromString(r.UnitPrice)
    if err != nil {
        return provider.MarketQuote{}, fmt.Errorf("cached unit price %q: %w", r.UnitPrice, err)
    }
    at, _ := time.Parse(time.RFC3339, r.FetchedAt)
    return provider.MarketQuote{Provider: r.Provider, UnitPrice: price, FetchedAt: at}, nil
}

// Key is the deterministic cache key for a pair, e.g. "crypto_btc_jpy".
func Key(kind provider.Kind, base, quote string) string {
    return strings.ToLower(fmt.Sprintf("%s_%s_%s", kind, base, quote))
}

// Path places key under dir.
func Path(dir, key string) string {
    return filepath.Join(dir, key+".json")
}

// ReadCache loads the record at path. A missing file is (nil, nil).
func ReadCache(path string) (*Record, error) {
    b, err := os.ReadFile(path)
    if errors.Is(err, fs.ErrNotExist) {
        return nil, nil
    }
    if err != nil {
        return nil, fmt.Errorf("read cache %s: %w", path, err)
    }
    var rec Record
    if err := json.Unmarshal(b, &rec); err != nil {
        return nil, &CorruptError{Path: path, Err: err}
    }
    return &rec, nil
}

// CorruptError reports a cache file that exists but does not decode.
type CorruptError struct {
    Path string
    Err  error
}

func (e *CorruptError) Error() string { return fmt.Sprintf("corrupt cache %s: %v", e.Path, e.Err) }
func (e *CorruptError) Unwrap() error { return e.Err }

// WriteCache replaces the record at path atomically: the JSON goes to a
// temp file in the same directory which is then renamed over path.
func WriteCache(path string, rec Record) error {
    dir := filepath.Dir(path)
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("create cache dir: %w", err)
    }
    data, err := json.MarshalIndent(rec, "", "  ")
    if err != nil {
        return fmt.Errorf("encode cache record: %w", err)
    }

    tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
    if err != nil {
        return fmt.Errorf("create temp cache file: %w", err)
    }
    tmpPath := tmp.Name()
    if _, err := tmp.Write(data); err != nil {
        tmp.Close()
        os.Remove(tmpPath)
        return fmt.Errorf("write temp cache file: %w", err)
    }
    if err := tmp.Sync(); err != nil {
        tmp.Close()
        os.Remove(tmpPath)
        return fmt.Errorf("sync temp cache file: %w", err)
    }
    if err := tmp.Close(); err != nil {
        os.Remove(tmpPath)
        return fmt.Errorf("close temp cache file: %w", err)
    }
    if err := os.Rename(tmpPath, path); err != nil {
        os.Remove(tmpPath)
        return fmt.Errorf("rename cache file: %w", err)
    }
    return nil
}

// Freshness is the age of a record relative to now.
type Freshness struct {
    AgeSecs int64
    IsFresh bool
}

// EvaluateFreshness computes age = max(0, now - fetched_at) in whole seconds
// and fresh = age <= ttl. An unparseable timestamp is maximally stale.
func EvaluateFreshness(rec Record, now time.Time, ttl time.Duration) Freshness {
    at, err := time.Parse(time.RFC3339, rec.FetchedAt)
    if err != nil {
        return Freshness{AgeSecs: math.MaxInt64, IsFresh: false}
    }
    age := int64(now.Sub(at) / time.Second)
    if age < 0 {
        age = 0
    }
    return Freshness{AgeSecs: age, IsFresh: age <= int64(ttl/time.Second)}
}
