package main

import (
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/shopspring/decimal"
    "github.com/spf13/cobra"

    "quoteengine/internal/bootstrap"
    "quoteengine/internal/config"
    "quoteengine/internal/evaluate"
    "quoteengine/internal/expr"
    "quoteengine/internal/money"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/cache"
    "quoteengine/internal/resolve"
)

// app holds the process-level dependencies so tests can swap the sources
// and the clock.
type app struct {
    out     io.Writer
    errOut  io.Writer
    sources func(config.Config, zerolog.Logger) provider.Set
    now     func() time.Time

    configPath string
    logLevel   string
    asJSON     bool
}

func (a *app) rootCmd() *cobra.Command {
    root := &cobra.Command{
        Use:           "quote",
        Short:         "Evaluate price expressions and resolve market quotes",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    root.SetOut(a.out)
    root.SetErr(a.errOut)
    root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (.json, .yaml or .yml)")
    root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
    root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print JSON instead of text")

    cacheCmd := &cobra.Command{Use: "cache", Short: "Inspect the quote cache"}
    cacheCmd.AddCommand(a.cacheShowCmd())

    root.AddCommand(a.evalCmd(), a.marketCmd(), cacheCmd)
    return root
}

func (a *app) evalCmd() *cobra.Command {
    var fiat string
    cmd := &cobra.Command{
        Use:   "eval <expression>",
        Short: "Evaluate an arithmetic or asset expression, e.g. \"1 btc + 3 eth to jpy\"",
        Args:  cobra.MinimumNArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, log, err := a.load()
            if err != nil {
                return err
            }
            if fiat == "" {
                fiat = cfg.DefaultFiat
            }
            ctx := log.WithContext(cmd.Context())
            rows, err := evaluate.EvaluateQuery(ctx, bootstrap.ResolveConfig(cfg, nil), a.sources(cfg, log), a.now, strings.Join(args, " "), fiat)
            if err != nil {
                return err
            }
            if a.asJSON {
                return a.printJSON(rows)
            }
            for _, r := range rows {
                fmt.Fprintln(a.out, r.Title)
                fmt.Fprintf(a.out, "    %s\n", r.Subtitle)
            }
            return nil
        },
    }
    cmd.Flags().StringVar(&fiat, "fiat", "", "target currency when the expression has no 'to' clause")
    return cmd
}

func (a *app) marketCmd() *cobra.Command {
    var (
        kind   string
        amount string
    )
    cmd := &cobra.Command{
        Use:   "market <base> <quote>",
        Short: "Resolve one market pair, printing the full result as JSON",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, log, err := a.load()
            if err != nil {
                return err
            }
            k, err := provider.ParseKind(kind)
            if err != nil {
                return &expr.UserError{Msg: err.Error()}
            }
            amt, err := money.ParseAmount(amount)
            if err != nil {
                return &expr.UserError{Msg: err.Error()}
            }
            req, err := resolve.NewMarketRequest(k, args[0], args[1], amt)
            if err != nil {
                return err
            }
            ctx := log.WithContext(cmd.Context())
            out, err := resolve.ResolveMarket(ctx, bootstrap.ResolveConfig(cfg, nil), a.sources(cfg, log), a.now(), req)
            if err != nil {
                return err
            }
            return a.printJSON(out)
        },
    }
    cmd.Flags().StringVar(&kind, "kind", "crypto", "market kind: fx or crypto")
    cmd.Flags().StringVar(&amount, "amount", "1", "amount of the base asset")
    return cmd
}

type cacheShowOutput struct {
    Key     string        `json:"key"`
    Path    string        `json:"path"`
    Record  *cache.Record `json:"record"`
    AgeSecs int64         `json:"age_secs"`
    TTLSecs int64         `json:"ttl_secs"`
    IsFresh bool          `json:"is_fresh"`
}

func (a *app) cacheShowCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "show <kind> <base> <quote>",
        Short: "Print a cached record and its freshness",
        Args:  cobra.ExactArgs(3),
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, _, err := a.load()
            if err != nil {
                return err
            }
            k, err := provider.ParseKind(args[0])
            if err != nil {
                return &expr.UserError{Msg: err.Error()}
            }
            req, err := resolve.NewMarketRequest(k, args[1], args[2], decimal.NewFromInt(1))
            if err != nil {
                return err
            }
            key := cache.Key(req.Kind, req.Base, req.Quote)
            path := cache.Path(cfg.CacheDir, key)
            rec, err := cache.ReadCache(path)
            if err != nil {
                return err
            }
            if rec == nil {
                return &expr.UserError{Msg: fmt.Sprintf("no cache record for %s at %s", key, path)}
            }
            fresh := cache.EvaluateFreshness(*rec, a.now(), cfg.CacheTTL())
            show := cacheShowOutput{
                Key:     key,
                Path:    path,
                Record:  rec,
                AgeSecs: fresh.AgeSecs,
                TTLSecs: int64(cfg.CacheTTLSec),
                IsFresh: fresh.IsFresh,
            }
            if a.asJSON {
                return a.printJSON(show)
            }
            state := "stale"
            if fresh.IsFresh {
                state = "fresh"
            }
            fmt.Fprintf(a.out, "%s: 1 %s = %s %s via %s\n", key, rec.Base, rec.UnitPrice, rec.Quote, rec.Provider)
            fmt.Fprintf(a.out, "fetched %s, %ds old, %s (ttl %ds)\n", rec.FetchedAt, fresh.AgeSecs, state, cfg.CacheTTLSec)
            return nil
        },
    }
}

func (a *app) load() (config.Config, zerolog.Logger, error) {
    cfg, err := config.Load(a.configPath)
    if err != nil {
        return cfg, zerolog.Nop(), err
    }
    level := cfg.LogLevel
    if a.logLevel != "" {
        level = a.logLevel
    }
    return cfg, bootstrap.NewLogger(a.errOut, level), nil
}

func (a *app) printJSON(v any) error {
    enc := json.NewEncoder(a.out)
    enc.SetIndent("", "  ")
    enc.SetEscapeHTML(false)
    return enc.Encode(v)
}

// reportError writes err to w and returns the exit code: 2 for user errors,
// 1 for everything else.
func reportError(w io.Writer, err error) int {
    fmt.Fprintln(w, "error:", err)
    var ue *expr.UserError
    if errors.As(err, &ue) {
        return 2
    }
    return 1
}
