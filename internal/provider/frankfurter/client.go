// Package frankfurter is the foreign-exchange source, backed by the
// Frankfurter API (ECB reference rates).
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"quoteengine/internal/httpx"
	"quoteengine/internal/provider"
)

const (
	// Name is the provider name used in quotes and traces.
	Name = "frankfurter"

	defaultBaseURL = "https://api.frankfurter.app"
)

// Client fetches FX rates.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient sends the requests.
	httpClient httpx.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// now stamps FetchedAt.
	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithClock overrides the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Frankfurter client.
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

type latestResponse struct {
	Amount decimal.Decimal            `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// Fetch returns the price of one unit of base in quote.
func (c *Client) Fetch(ctx context.Context, base, quote string) (provider.MarketQuote, error) {
	query := url.Values{}
	query.Set("from", base)
	query.Set("to", quote)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/latest?%s", c.baseURL, query.Encode()), http.NoBody)
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

	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return provider.MarketQuote{}, provider.UnsupportedPair(base, quote)

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return provider.MarketQuote{}, provider.HTTPStatus(res.StatusCode, string(b))
	}

	var body latestResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return provider.MarketQuote{}, provider.InvalidResponse("decoding latest response: %v", err)
	}

	rate, ok := body.Rates[quote]
	if !ok {
		return provider.MarketQuote{}, provider.UnsupportedPair(base, quote)
	}
	if !rate.IsPositive() {
		return provider.MarketQuote{}, provider.InvalidResponse("non-positive rate %s for %s/%s", rate, base, quote)
	}
	// Rates are quoted for body.Amount units of base.
	if body.Amount.IsPositive() && !body.Amount.Equal(decimal.NewFromInt(1)) {
		rate = rate.Div(body.Amount)
	}

	return provider.MarketQuote{Provider: Name, UnitPrice: rate, FetchedAt: c.now().UTC()}, nil
}
