package main

import (
    "compress/gzip"
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/gorilla/mux"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"
    "github.com/shopspring/decimal"

    "quoteengine/internal/evaluate"
    "quoteengine/internal/expr"
    "quoteengine/internal/money"
    "quoteengine/internal/provider"
    "quoteengine/internal/resolve"
)

type server struct {
    resolver    evaluate.Resolver
    defaultFiat string
    timeout     time.Duration
    log         zerolog.Logger
    // breakers reports circuit breaker states by provider; may be nil.
    breakers func() map[string]string
}

type healthResponse struct {
    Status   string            `json:"status"`
    Breakers map[string]string `json:"breakers,omitempty"`
}

type evalResponse struct {
    Rows []evaluate.Row `json:"rows"`
}

type errorResponse struct {
    Error string `json:"error"`
}

// routes mounts /metrics outside the JSON/gzip chain; promhttp negotiates
// its own encoding.
func (s *server) routes(gatherer prometheus.Gatherer) http.Handler {
    root := mux.NewRouter()
    root.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

    api := root.PathPrefix("/").Subrouter()
    api.Use(withJSONHeaders, withGzip, recoverPanic, limitBody)
    api.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
    api.HandleFunc("/api/eval", s.handleEval).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
    api.HandleFunc("/api/market", s.handleMarket).Methods(http.MethodGet, http.MethodOptions)
    return root
}

// handleHealth always answers 200 and lists breaker states.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
    resp := healthResponse{Status: "ok"}
    if s.breakers != nil {
        resp.Breakers = s.breakers()
    }
    writeJSON(w, http.StatusOK, resp)
}

type evalBody struct {
    Query string `json:"query"`
    Fiat  string `json:"fiat"`
}

func (s *server) handleEval(w http.ResponseWriter, r *http.Request) {
    var b evalBody
    switch r.Method {
    case http.MethodGet:
        b.Query = r.URL.Query().Get("q")
        b.Fiat = r.URL.Query().Get("fiat")
    case http.MethodPost:
        dec := json.NewDecoder(r.Body)
        dec.DisallowUnknownFields()
        if err := dec.Decode(&b); err != nil {
            writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
            return
        }
    }
    if strings.TrimSpace(b.Query) == "" {
        writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query"})
        return
    }
    fiat := s.defaultFiat
    if b.Fiat != "" {
        fiat = b.Fiat
    }

    ctx, cancel := s.requestContext(r)
    defer cancel()
    rows, err := evaluate.Evaluator{Resolver: s.resolver}.Evaluate(ctx, b.Query, fiat)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, evalResponse{Rows: rows})
}

func (s *server) handleMarket(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    kind, err := provider.ParseKind(q.Get("kind"))
    if err != nil {
        writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
        return
    }
    amount := decimal.NewFromInt(1)
    if v := q.Get("amount"); v != "" {
        amount, err = money.ParseAmount(v)
        if err != nil {
            writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
            return
        }
    }
    quote := q.Get("quote")
    if quote == "" {
        quote = s.defaultFiat
    }
    req, err := resolve.NewMarketRequest(kind, q.Get("base"), quote, amount)
    if err != nil {
        s.writeError(w, r, err)
        return
    }

    ctx, cancel := s.requestContext(r)
    defer cancel()
    out, err := s.resolver.Resolve(ctx, req)
    if err != nil {
        s.writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, out)
}

func (s *server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
    log := s.log.With().Str("path", r.URL.Path).Logger()
    ctx := log.WithContext(r.Context())
    if s.timeout <= 0 {
        return context.WithCancel(ctx)
    }
    return context.WithTimeout(ctx, s.timeout)
}

// writeError maps user errors to 400 and resolution failures to 502.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
    var (
        ue *expr.UserError
        rt *resolve.RuntimeError
    )
    switch {
    case errors.As(err, &ue):
        writeJSON(w, http.StatusBadRequest, errorResponse{Error: ue.Error()})
    case errors.As(err, &rt):
        s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("resolution failed")
        writeJSON(w, http.StatusBadGateway, errorResponse{Error: rt.Error()})
    default:
        s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
        writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
    }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json; charset=utf-8")
        w.Header().Set("Access-Control-Allow-Origin", "*")
        w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
        w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
    var gzPool = sync.Pool{New: func() any {
        w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
        return w
    }}
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
        next.ServeHTTP(gw, r)
    })
}

type gzipResponseWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
    return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
    const maxBody = 64 << 10
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodPost && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                zerolog.Ctx(r.Context()).Error().Interface("panic", rec).Msg("handler panic")
                http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
            }
        }()
        next.ServeHTTP(w, r)
    })
}
