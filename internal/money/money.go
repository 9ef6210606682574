// Package money holds the decimal helpers shared by the parser, the resolver
// and the evaluator: symbol validation, amount parsing and the two rounding
// rules used for displayed values.
package money

import (
    "fmt"
    "strings"

    "github.com/shopspring/decimal"
)

// ConvertedPlaces is the fixed precision of MarketOutput.Converted.
const ConvertedPlaces = 8

// NormalizeSymbol upper-cases and trims a user supplied symbol.
func NormalizeSymbol(s string) string {
    return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateFiatSymbol accepts exactly three ASCII letters.
func ValidateFiatSymbol(s string) error {
    if len(s) != 3 {
        return fmt.Errorf("invalid currency code %q: want 3 letters", s)
    }
    for i := 0; i < len(s); i++ {
        if !isLetter(s[i]) {
            return fmt.Errorf("invalid currency code %q: want 3 letters", s)
        }
    }
    return nil
}

// ValidateCryptoSymbol accepts 2 to 10 upper-case alphanumerics.
func ValidateCryptoSymbol(s string) error {
    if len(s) < 2 || len(s) > 10 {
        return fmt.Errorf("invalid asset symbol %q: want 2-10 alphanumerics", s)
    }
    for i := 0; i < len(s); i++ {
        c := s[i]
        if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
            return fmt.Errorf("invalid asset symbol %q: want 2-10 alphanumerics", s)
        }
    }
    return nil
}

// ParseAmount parses a plain decimal literal and requires it to be positive.
func ParseAmount(s string) (decimal.Decimal, error) {
    d, err := decimal.NewFromString(strings.TrimSpace(s))
    if err != nil {
        return decimal.Zero, fmt.Errorf("invalid amount %q", s)
    }
    if !d.IsPositive() {
        return decimal.Zero, fmt.Errorf("amount must be positive, got %s", d.String())
    }
    return d, nil
}

// RoundConverted rounds to ConvertedPlaces fractional digits.
func RoundConverted(d decimal.Decimal) decimal.Decimal {
    return d.Round(ConvertedPlaces)
}

// MarketPlaces returns the display precision for a market value:
// 2 digits below 100, 1 digit below 1000, none above.
func MarketPlaces(d decimal.Decimal) int32 {
    abs := d.Abs()
    switch {
    case abs.LessThan(decimal.NewFromInt(100)):
        return 2
    case abs.LessThan(decimal.NewFromInt(1000)):
        return 1
    default:
        return 0
    }
}

// RoundMarket rounds half away from zero with MarketPlaces precision.
func RoundMarket(d decimal.Decimal) decimal.Decimal {
    return d.Round(MarketPlaces(d))
}

// FormatMarket renders RoundMarket(d) without trailing zeros.
func FormatMarket(d decimal.Decimal) string {
    return FormatPlain(RoundMarket(d))
}

// FormatPlain renders d in positional notation without trailing zeros.
func FormatPlain(d decimal.Decimal) string {
    s := d.String()
    if s == "-0" {
        return "0"
    }
    return s
}

func isLetter(c byte) bool {
    return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
