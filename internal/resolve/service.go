package resolve

import (
    "context"
    "time"

    "github.com/shopspring/decimal"
    "golang.org/x/sync/singleflight"

    "quoteengine/internal/money"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/cache"
)

// DefaultSharedTimeout bounds a coalesced ResolveMarket run when
// Service.Timeout is unset.
const DefaultSharedTimeout = 30 * time.Second

// Service binds a Config, the sources and a clock. Concurrent Resolve calls
// for the same pair share one ResolveMarket run.
type Service struct {
    Config    Config
    Providers provider.Set
    Now       func() time.Time
    // Timeout bounds the shared run, which does not inherit any single
    // caller's cancellation.
    Timeout time.Duration

    sf singleflight.Group
}

// NewService returns a Service; now defaults to time.Now.
func NewService(cfg Config, providers provider.Set, now func() time.Time) *Service {
    if now == nil {
        now = time.Now
    }
    return &Service{Config: cfg, Providers: providers, Now: now}
}

// Resolve resolves req, coalescing with in-flight calls for the same pair.
// A caller whose ctx ends stops waiting with ctx.Err(); the shared run keeps
// going for the others.
func (s *Service) Resolve(ctx context.Context, req MarketRequest) (MarketOutput, error) {
    key := cache.Key(req.Kind, req.Base, req.Quote)
    ch := s.sf.DoChan(key, func() (any, error) {
        timeout := s.Timeout
        if timeout <= 0 {
            timeout = DefaultSharedTimeout
        }
        shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
        defer cancel()
        unit := req
        unit.Amount = unitAmount
        return ResolveMarket(shared, s.Config, s.Providers, s.Now(), unit)
    })

    var res singleflight.Result
    select {
    case <-ctx.Done():
        return MarketOutput{}, ctx.Err()
    case res = <-ch:
    }
    if res.Err != nil {
        return MarketOutput{}, res.Err
    }
    out := res.Val.(MarketOutput)
    out.Amount = req.Amount
    out.Converted = money.RoundConverted(req.Amount.Mul(out.UnitPrice))
    return out, nil
}

var unitAmount = decimal.NewFromInt(1)
