// Package providertest provides test doubles for provider.Source.
package providertest

import (
    "context"
    "sync"
    "time"

    "github.com/shopspring/decimal"

    "quoteengine/internal/provider"
)

// Stub answers from a fixed price table and records every call.
// Err, when set, is returned from every call; Errs is consumed first, one
// error per call, which lets tests script a fail-then-succeed sequence.
type Stub struct {
    SourceName string
    Prices     map[string]decimal.Decimal // key: "BASE/QUOTE"
    Err        error
    Errs       []error
    FetchedAt  time.Time

    mu    sync.Mutex
    calls []string
}

// NewStub builds a stub that prices pairs given as "BASE/QUOTE" -> price.
func NewStub(name string, prices map[string]string) *Stub {
    s := &Stub{SourceName: name, Prices: make(map[string]decimal.Decimal, len(prices))}
    for k, v := range prices {
        s.Prices[k] = decimal.RequireFromString(v)
    }
    return s
}

// Failing builds a stub whose every call fails with err.
func Failing(name string, err error) *Stub {
    return &Stub{SourceName: name, Err: err}
}

func (s *Stub) Name() string { return s.SourceName }

func (s *Stub) Fetch(_ context.Context, base, quote string) (provider.MarketQuote, error) {
    s.mu.Lock()
    s.calls = append(s.calls, base+"/"+quote)
    var scripted error
    if len(s.Errs) > 0 {
        scripted = s.Errs[0]
        s.Errs = s.Errs[1:]
    }
    s.mu.Unlock()

    if scripted != nil {
        return provider.MarketQuote{}, scripted
    }
    if s.Err != nil {
        return provider.MarketQuote{}, s.Err
    }
    price, ok := s.Prices[base+"/"+quote]
    if !ok {
        return provider.MarketQuote{}, provider.UnsupportedPair(base, quote)
    }
    at := s.FetchedAt
    if at.IsZero() {
        at = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
    }
    return provider.MarketQuote{Provider: s.SourceName, UnitPrice: price, FetchedAt: at}, nil
}

// Calls returns how many times Fetch was invoked.
func (s *Stub) Calls() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.calls)
}

// Pairs returns the requested pairs in call order.
func (s *Stub) Pairs() []string {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]string(nil), s.calls...)
}

// NoSleep is a sleep function that records requested delays without waiting.
type NoSleep struct {
    mu     sync.Mutex
    Delays []time.Duration
}

func (n *NoSleep) Sleep(d time.Duration) {
    n.mu.Lock()
    n.Delays = append(n.Delays, d)
    n.mu.Unlock()
}
