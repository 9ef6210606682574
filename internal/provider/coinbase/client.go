// Package coinbase is the primary crypto spot source.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quoteengine/internal/httpx"
	"quoteengine/internal/provider"
)

const (
	// Name is the provider name used in quotes and traces.
	Name = "coinbase"

	defaultBaseURL = "https://api.coinbase.com"
)

// Client fetches spot prices from the Coinbase public prices endpoint.
type Client struct {
	baseURL    string
	httpClient httpx.HTTPClient
	header     http.Header
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

// WithClock overrides the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Coinbase client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		now:        time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

type spotResponse struct {
	Data struct {
		Amount   decimal.Decimal `json:"amount"`
		Base     string          `json:"base"`
		Currency string          `json:"currency"`
	} `json:"data"`
	Errors []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch returns the spot price of one unit of base in quote.
func (c *Client) Fetch(ctx context.Context, base, quote string) (provider.MarketQuote, error) {
	url := fmt.Sprintf("%s/v2/prices/%s-%s/spot", c.baseURL, base, quote)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return provider.MarketQuote{}, provider.Transport(fmt.Errorf("creating request: %w", err))
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.MarketQuote{}, provider.Transport(fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	// Coinbase answers unknown currencies with 400 or 404.
	case http.StatusBadRequest, http.StatusNotFound:
		return provider.MarketQuote{}, provider.UnsupportedPair(base, quote)

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return provider.MarketQuote{}, provider.HTTPStatus(res.StatusCode, strings.TrimSpace(string(b)))
	}

	var body spotResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return provider.MarketQuote{}, provider.InvalidResponse("decoding spot response: %v", err)
	}
	if len(body.Errors) > 0 {
		return provider.MarketQuote{}, provider.InvalidResponse("%s: %s", body.Errors[0].ID, body.Errors[0].Message)
	}
	if body.Data.Currency != "" && !strings.EqualFold(body.Data.Currency, quote) {
		return provider.MarketQuote{}, provider.InvalidResponse("asked for %s, got %s", quote, body.Data.Currency)
	}
	if !body.Data.Amount.IsPositive() {
		return provider.MarketQuote{}, provider.InvalidResponse("non-positive amount %s for %s/%s", body.Data.Amount, base, quote)
	}

	return provider.MarketQuote{Provider: Name, UnitPrice: body.Data.Amount, FetchedAt: c.now().UTC()}, nil
}
