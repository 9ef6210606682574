// Package evaluate runs a parsed query to completion: a numeric left fold, or
// an asset sum priced through the resolution service.
package evaluate

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/shopspring/decimal"
    "golang.org/x/text/currency"

    "quoteengine/internal/expr"
    "quoteengine/internal/money"
    "quoteengine/internal/provider"
    "quoteengine/internal/resolve"
)

// Row is one line of output: a title, a subtitle or formula, and the value
// a caller would copy.
type Row struct {
    Title    string `json:"title"`
    Subtitle string `json:"subtitle"`
    Value    string `json:"value"`
}

// Resolver prices a single market request. *resolve.Service implements it.
//
//go:generate mockgen -package=evaluate_test -destination=mock_resolver_test.go -source=evaluate.go Resolver
type Resolver interface {
    Resolve(ctx context.Context, req resolve.MarketRequest) (resolve.MarketOutput, error)
}

// Evaluator evaluates queries against a Resolver.
type Evaluator struct {
    Resolver Resolver
}

// EvaluateQuery parses and evaluates query with a one-off resolve.Service.
func EvaluateQuery(ctx context.Context, cfg resolve.Config, providers provider.Set, nowFn func() time.Time, query, defaultFiat string) ([]Row, error) {
    e := Evaluator{Resolver: resolve.NewService(cfg, providers, nowFn)}
    return e.Evaluate(ctx, query, defaultFiat)
}

// Evaluate parses query and returns its rows. Parse and arithmetic problems
// are *expr.UserError; resolution failures are *resolve.RuntimeError.
func (e Evaluator) Evaluate(ctx context.Context, query, defaultFiat string) ([]Row, error) {
    parsed, err := expr.Parse(query, defaultFiat)
    if err != nil {
        return nil, err
    }
    if parsed.Mode == expr.ModeNumeric {
        return evaluateNumeric(parsed)
    }
    return e.evaluateAsset(ctx, parsed)
}

func evaluateNumeric(p expr.ParsedExpression) ([]Row, error) {
    acc := p.Terms[0].Amount
    for i, op := range p.Operators {
        rhs := p.Terms[i+1].Amount
        switch op {
        case '+':
            acc = acc.Add(rhs)
        case '-':
            acc = acc.Sub(rhs)
        case '*':
            acc = acc.Mul(rhs)
        case '/':
            if rhs.IsZero() {
                return nil, &expr.UserError{Msg: "division by zero"}
            }
            acc = acc.Div(rhs)
        }
    }
    result := money.FormatPlain(acc)
    return []Row{{Title: result, Subtitle: p.String(), Value: result}}, nil
}

// assetQuote is the resolved unit price of one distinct symbol.
type assetQuote struct {
    UnitPrice decimal.Decimal
    Provider  string
    Cache     resolve.CacheMetadata
}

func (e Evaluator) evaluateAsset(ctx context.Context, p expr.ParsedExpression) ([]Row, error) {
    symbols := p.Symbols()
    quotes := make(map[string]assetQuote, len(symbols))
    rows := make([]Row, 0, len(symbols)+1)
    for _, sym := range symbols {
        q, err := e.resolveSymbol(ctx, sym, p.TargetFiat)
        if err != nil {
            return nil, err
        }
        quotes[sym] = q
        unit := money.FormatMarket(q.UnitPrice)
        rows = append(rows, Row{
            Title:    fmt.Sprintf("1 %s = %s %s", sym, unit, p.TargetFiat),
            Subtitle: describeSource(q),
            Value:    unit,
        })
    }

    var (
        total   decimal.Decimal
        formula strings.Builder
    )
    for i, t := range p.Terms {
        q := quotes[t.Symbol]
        value := t.Amount.Mul(q.UnitPrice)
        if i == 0 {
            total = value
        } else {
            op := p.Operators[i-1]
            if op == '-' {
                total = total.Sub(value)
            } else {
                total = total.Add(value)
            }
            fmt.Fprintf(&formula, " %c ", op)
        }
        fmt.Fprintf(&formula, "%s*%s(%s)", money.FormatPlain(t.Amount), money.FormatPlain(q.UnitPrice), t.Symbol)
    }
    sum := money.FormatMarket(total)
    rows = append(rows, Row{
        Title:    fmt.Sprintf("Total = %s %s", sum, p.TargetFiat),
        Subtitle: formula.String(),
        Value:    sum,
    })
    return rows, nil
}

// resolveSymbol prices one unit of sym in target. Recognized ISO 4217 codes
// go to the FX chain first; on FX failure, and for every other symbol, the
// crypto chain is used. Traces from both attempts are combined.
func (e Evaluator) resolveSymbol(ctx context.Context, sym, target string) (assetQuote, error) {
    log := zerolog.Ctx(ctx)
    var trace []string

    if isCurrencyCode(sym) {
        out, err := e.resolveKind(ctx, provider.KindFX, sym, target)
        if err == nil {
            return out, nil
        }
        var rt *resolve.RuntimeError
        if !errors.As(err, &rt) || len(rt.Trace) == 0 || ctx.Err() != nil {
            return assetQuote{}, err
        }
        log.Debug().Str("symbol", sym).Strs("trace", rt.Trace).Msg("fx resolution failed, trying crypto")
        trace = append(trace, rt.Trace...)
    }

    out, err := e.resolveKind(ctx, provider.KindCrypto, sym, target)
    if err == nil {
        return out, nil
    }
    var rt *resolve.RuntimeError
    if errors.As(err, &rt) && len(rt.Trace) > 0 && len(trace) > 0 {
        return assetQuote{}, &resolve.RuntimeError{Trace: append(trace, rt.Trace...)}
    }
    return assetQuote{}, err
}

func (e Evaluator) resolveKind(ctx context.Context, kind provider.Kind, sym, target string) (assetQuote, error) {
    req, err := resolve.NewMarketRequest(kind, sym, target, decimal.NewFromInt(1))
    if err != nil {
        return assetQuote{}, err
    }
    out, err := e.Resolver.Resolve(ctx, req)
    if err != nil {
        return assetQuote{}, err
    }
    return assetQuote{UnitPrice: out.UnitPrice, Provider: out.Provider, Cache: out.Cache}, nil
}

func isCurrencyCode(sym string) bool {
    if len(sym) != 3 {
        return false
    }
    _, err := currency.ParseISO(sym)
    return err == nil
}

func describeSource(q assetQuote) string {
    if q.Cache.Status == resolve.StatusLive {
        return fmt.Sprintf("%s (%s)", q.Provider, q.Cache.Status)
    }
    return fmt.Sprintf("%s (%s, %ds old)", q.Provider, q.Cache.Status, q.Cache.AgeSecs)
}
