package main

import (
    "bytes"
    "encoding/json"
    "path/filepath"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/require"

    "quoteengine/internal/config"
    "quoteengine/internal/expr"
    "quoteengine/internal/provider"
    "quoteengine/internal/provider/cache"
    "quoteengine/internal/provider/providertest"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
    app     *app
    cfgPath string
    out     *bytes.Buffer
    errOut  *bytes.Buffer
    crypto  *providertest.Stub
}

// newHarness points the CLI at a temp cache dir via the environment, so it
// must not run in parallel with other tests.
func newHarness(t *testing.T) harness {
    t.Helper()
    t.Setenv("QUOTE_CACHE_DIR", t.TempDir())
    t.Setenv("QUOTE_CACHE_TTL_SEC", "60")
    t.Setenv("QUOTE_DEFAULT_FIAT", "JPY")
    t.Setenv("QUOTE_RETRY_MAX_ATTEMPTS", "1")
    t.Setenv("LOG_LEVEL", "error")

    crypto := providertest.NewStub("coinbase", map[string]string{"BTC/JPY": "10000000", "ETH/JPY": "350000"})
    crypto.FetchedAt = fixedNow
    out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
    a := &app{
        out:    out,
        errOut: errOut,
        sources: func(config.Config, zerolog.Logger) provider.Set {
            return provider.Set{CryptoPrimary: crypto}
        },
        now: func() time.Time { return fixedNow },
    }
    return harness{app: a, cfgPath: filepath.Join(t.TempDir(), "none.json"), out: out, errOut: errOut, crypto: crypto}
}

func (h harness) run(args ...string) error {
    cmd := h.app.rootCmd()
    cmd.SetArgs(append([]string{"--config", h.cfgPath}, args...))
    return cmd.Execute()
}

func TestEval_TextOutput(t *testing.T) {
    h := newHarness(t)

    err := h.run("eval", "1", "btc", "+", "3", "eth")

    require.NoError(t, err)
    require.Equal(t, "1 BTC = 10000000 JPY\n    coinbase (live)\n"+
        "1 ETH = 350000 JPY\n    coinbase (live)\n"+
        "Total = 11050000 JPY\n    1*10000000(BTC) + 3*350000(ETH)\n", h.out.String())
}

func TestEval_JSONOutputAndUserError(t *testing.T) {
    h := newHarness(t)

    require.NoError(t, h.run("--json", "eval", "8/2*3"))
    var rows []map[string]string
    require.NoError(t, json.Unmarshal(h.out.Bytes(), &rows))
    require.Equal(t, "12", rows[0]["value"])

    err := h.run("eval", "1 btc * 2 eth")
    var ue *expr.UserError
    require.ErrorAs(t, err, &ue)
    require.Equal(t, 2, reportError(h.errOut, err))
    require.Contains(t, h.errOut.String(), "unsupported operator")
    require.Zero(t, h.crypto.Calls())
}

func TestMarket_ThenCacheShow(t *testing.T) {
    h := newHarness(t)

    // live resolution fills the cache
    require.NoError(t, h.run("market", "btc", "jpy", "--amount", "0.5"))
    var out map[string]any
    require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
    require.Equal(t, "5000000", out["converted"])
    require.Equal(t, "live", out["cache"].(map[string]any)["status"])

    // second call is served from cache
    h.out.Reset()
    require.NoError(t, h.run("market", "btc", "jpy"))
    require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
    require.Equal(t, "cache_fresh", out["cache"].(map[string]any)["status"])
    require.Equal(t, 1, h.crypto.Calls())

    h.out.Reset()
    require.NoError(t, h.run("--json", "cache", "show", "crypto", "btc", "jpy"))
    var show cacheShowOutput
    require.NoError(t, json.Unmarshal(h.out.Bytes(), &show))
    require.Equal(t, "crypto_btc_jpy", show.Key)
    require.True(t, show.IsFresh)
    require.Equal(t, int64(0), show.AgeSecs)
    require.Equal(t, &cache.Record{
        Base: "BTC", Quote: "JPY", Provider: "coinbase", UnitPrice: "10000000",
        FetchedAt: fixedNow.Format(time.RFC3339),
    }, show.Record)
}

func TestMarket_ProviderFailureExitCode(t *testing.T) {
    h := newHarness(t)

    err := h.run("market", "--kind", "crypto", "doge", "jpy")

    require.EqualError(t, err, "provider trace: coinbase: unsupported pair: DOGE/JPY")
    require.Equal(t, 1, reportError(h.errOut, err))
}

func TestCacheShow_Missing(t *testing.T) {
    h := newHarness(t)

    err := h.run("cache", "show", "fx", "usd", "jpy")

    var ue *expr.UserError
    require.ErrorAs(t, err, &ue)
    require.Contains(t, err.Error(), "no cache record for fx_usd_jpy")
}
