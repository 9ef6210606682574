package provider

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/shopspring/decimal"
)

// Kind selects the provider chain used to price a pair.
type Kind string

const (
    KindFX     Kind = "fx"
    KindCrypto Kind = "crypto"
)

// ParseKind accepts "fx" or "crypto" in any case.
func ParseKind(s string) (Kind, error) {
    switch Kind(strings.ToLower(strings.TrimSpace(s))) {
    case KindFX:
        return KindFX, nil
    case KindCrypto:
        return KindCrypto, nil
    }
    return "", fmt.Errorf("unknown market kind %q: want fx or crypto", s)
}

// MarketQuote is one source's answer for base priced in quote.
type MarketQuote struct {
    Provider  string
    UnitPrice decimal.Decimal
    FetchedAt time.Time
}

// Source is a named rate source.
//
//go:generate mockgen -package=providertest -destination=providertest/mock_source.go -source=provider.go Source
type Source interface {
    Name() string
    Fetch(ctx context.Context, base, quote string) (MarketQuote, error)
}

// Set groups the three sources the resolver chains together.
type Set struct {
    FX              Source
    CryptoPrimary   Source
    CryptoSecondary Source
}

// Chain returns the sources to try, in order, for kind.
func (s Set) Chain(kind Kind) []Source {
    var out []Source
    switch kind {
    case KindFX:
        out = []Source{s.FX}
    case KindCrypto:
        out = []Source{s.CryptoPrimary, s.CryptoSecondary}
    }
    filtered := out[:0]
    for _, src := range out {
        if src != nil {
            filtered = append(filtered, src)
        }
    }
    return filtered
}
