// Package cryptocompare is the secondary crypto spot source.
package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quoteengine/internal/httpx"
	"quoteengine/internal/provider"
)

const (
	// Name is the provider name used in quotes and traces.
	Name = "cryptocompare"

	defaultBaseURL = "https://min-api.cryptocompare.com"
)

// Client fetches single-pair prices from the CryptoCompare price endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpx.HTTPClient
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.HTTPClient) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithAPIKey authenticates requests; the free tier works without one.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithClock overrides the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a CryptoCompare client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// Fetch returns the price of one unit of base in quote.
func (c *Client) Fetch(ctx context.Context, base, quote string) (provider.MarketQuote, error) {
	query := url.Values{}
	query.Set("fsym", base)
	query.Set("tsyms", quote)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/data/price?%s", c.baseURL, query.Encode()), http.NoBody)
	if err != nil {
		return provider.MarketQuote{}, provider.Transport(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.MarketQuote{}, provider.Transport(fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return provider.MarketQuote{}, provider.HTTPStatus(res.StatusCode, strings.TrimSpace(string(b)))
	}

	// Success: {"JPY": 10000000}. Failure still answers 200:
	// {"Response":"Error","Message":"..."}.
	var body map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return provider.MarketQuote{}, provider.InvalidResponse("decoding price response: %v", err)
	}
	if raw, ok := body["Response"]; ok && strings.Contains(string(raw), "Error") {
		var msg string
		_ = json.Unmarshal(body["Message"], &msg)
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return provider.MarketQuote{}, provider.HTTPStatus(http.StatusTooManyRequests, msg)
		}
		pe := provider.UnsupportedPair(base, quote)
		if msg != "" {
			pe.Message += " (" + msg + ")"
		}
		return provider.MarketQuote{}, pe
	}

	raw, ok := body[quote]
	if !ok {
		return provider.MarketQuote{}, provider.UnsupportedPair(base, quote)
	}
	var price decimal.Decimal
	if err := json.Unmarshal(raw, &price); err != nil {
		return provider.MarketQuote{}, provider.InvalidResponse("decoding %s price: %v", quote, err)
	}
	if !price.IsPositive() {
		return provider.MarketQuote{}, provider.InvalidResponse("non-positive price %s for %s/%s", price, base, quote)
	}

	return provider.MarketQuote{Provider: Name, UnitPrice: price, FetchedAt: c.now().UTC()}, nil
}
