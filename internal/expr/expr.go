// Package expr parses free-form pricing expressions such as "8/2*3" or
// "1 btc + 3 eth to jpy" into a flat list of terms and operators.
package expr

import (
    "fmt"
    "strings"

    "github.com/shopspring/decimal"

    "quoteengine/internal/money"
)

// Mode tells whether an expression is plain arithmetic or prices assets.
type Mode int

const (
    ModeNumeric Mode = iota
    ModeAsset
)

func (m Mode) String() string {
    if m == ModeAsset {
        return "asset"
    }
    return "numeric"
}

// Term is either a bare number (Symbol == "") or an amount of an asset.
type Term struct {
    Amount decimal.Decimal
    Symbol string
}

// IsAsset reports whether the term carries an asset symbol.
func (t Term) IsAsset() bool { return t.Symbol != "" }

// ParsedExpression is the result of Parse.
// len(Terms) == len(Operators)+1 always holds.
type ParsedExpression struct {
    Terms      []Term
    Operators  []byte
    TargetFiat string
    Mode       Mode
}

// Symbols returns the distinct asset symbols in first-occurrence order.
func (p ParsedExpression) Symbols() []string {
    seen := make(map[string]struct{}, len(p.Terms))
    out := make([]string, 0, len(p.Terms))
    for _, t := range p.Terms {
        if !t.IsAsset() {
            continue
        }
        if _, dup := seen[t.Symbol]; dup {
            continue
        }
        seen[t.Symbol] = struct{}{}
        out = append(out, t.Symbol)
    }
    return out
}

// String renders the expression in a normalized form, e.g. "8 / 2 * 3".
func (p ParsedExpression) String() string {
    var b strings.Builder
    for i, t := range p.Terms {
        if i > 0 {
            b.WriteByte(' ')
            b.WriteByte(p.Operators[i-1])
            b.WriteByte(' ')
        }
        b.WriteString(money.FormatPlain(t.Amount))
        if t.IsAsset() {
            b.WriteByte(' ')
            b.WriteString(t.Symbol)
        }
    }
    return b.String()
}

// UserError reports a problem with the query itself. It is always detected
// before any provider is contacted.
type UserError struct {
    Msg string
}

func (e *UserError) Error() string { return e.Msg }

func userErrorf(format string, args ...any) error {
    return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// Parse parses query. A trailing "to <symbol>" clause overrides defaultTarget.
func Parse(query, defaultTarget string) (ParsedExpression, error) {
    body, target, err := splitTarget(query, defaultTarget)
    if err != nil {
        return ParsedExpression{}, err
    }
    target = money.NormalizeSymbol(target)
    if err := money.ValidateFiatSymbol(target); err != nil {
        return ParsedExpression{}, &UserError{Msg: "target " + err.Error()}
    }

    p := &parser{buf: []byte(body)}
    out, err := p.parseExpr()
    if err != nil {
        return ParsedExpression{}, err
    }
    out.TargetFiat = target

    if err := classify(&out); err != nil {
        return ParsedExpression{}, err
    }
    return out, nil
}

// splitTarget peels off a trailing "to <symbol>" clause.
func splitTarget(query, defaultTarget string) (body, target string, err error) {
    fields := strings.Fields(query)
    if len(fields) == 0 {
        return "", "", userErrorf("empty expression")
    }
    n := len(fields)
    if strings.EqualFold(fields[n-1], "to") {
        return "", "", userErrorf("incomplete 'to' clause: missing target currency")
    }
    if n >= 2 && strings.EqualFold(fields[n-2], "to") {
        if n == 2 {
            return "", "", userErrorf("incomplete 'to' clause: missing expression before 'to'")
        }
        return strings.Join(fields[:n-2], " "), fields[n-1], nil
    }
    return strings.Join(fields, " "), defaultTarget, nil
}

// classify enforces a single mode across all terms and the asset-mode
// operator restriction.
func classify(p *ParsedExpression) error {
    assets := 0
    for _, t := range p.Terms {
        if t.IsAsset() {
            assets++
        }
    }
    switch assets {
    case 0:
        p.Mode = ModeNumeric
        return nil
    case len(p.Terms):
        p.Mode = ModeAsset
    default:
        return userErrorf("mixed numeric and asset terms are not allowed")
    }
    for _, op := range p.Operators {
        if op != '+' && op != '-' {
            return userErrorf("unsupported operator '%c' in asset expression: only + and - are allowed", op)
        }
    }
    for _, t := range p.Terms {
        if !t.Amount.IsPositive() {
            return userErrorf("asset amount must be positive: %s %s", money.FormatPlain(t.Amount), t.Symbol)
        }
    }
    return nil
}
