package coinbase_test

import (
	"context"
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quoteengine/internal/httpx/httpxmock"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/coinbase"
)

func body(status int, s string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(s))}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock HTTP client
	ctrl := gomock.NewController(t)
	httpClient := httpxmock.NewMockHTTPClient(ctrl)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	// Assert: the spot endpoint is called for the requested pair
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/v2/prices/BTC-JPY/spot", req.URL.Path)
			return body(http.StatusOK, `{"data":{"amount":"10000000.00","base":"BTC","currency":"JPY"}}`), nil
		}).
		Times(1)

	client := coinbase.New(coinbase.WithHTTPClient(httpClient), coinbase.WithBaseURL("http://cb.local"), coinbase.WithClock(func() time.Time { return now }))

	// Act
	q, err := client.Fetch(context.Background(), "BTC", "JPY")

	// Assert
	require.NoError(t, err)
	require.Equal(t, "coinbase", q.Provider)
	require.Equal(t, "10000000", q.UnitPrice.String())
	require.Equal(t, now, q.FetchedAt)
}

func TestFetch_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  *http.Response
		err  error
		kind provider.ErrorKind
	}{
		{"transport", nil, errors.New("timeout"), provider.ErrTransport},
		{"unknown currency", body(http.StatusNotFound, `{"errors":[{"id":"not_found","message":"Invalid currency"}]}`), nil, provider.ErrUnsupportedPair},
		{"bad request", body(http.StatusBadRequest, `{}`), nil, provider.ErrUnsupportedPair},
		{"unavailable", body(http.StatusServiceUnavailable, `down`), nil, provider.ErrHTTP},
		{"error payload", body(http.StatusOK, `{"errors":[{"id":"internal","message":"oops"}]}`), nil, provider.ErrInvalidResponse},
		{"wrong currency", body(http.StatusOK, `{"data":{"amount":"1","currency":"USD"}}`), nil, provider.ErrInvalidResponse},
		{"not json", body(http.StatusOK, `<html>`), nil, provider.ErrInvalidResponse},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := httpxmock.NewMockHTTPClient(ctrl)
			httpClient.EXPECT().Do(gomock.Any()).Return(tc.res, tc.err).Times(1)

			_, err := coinbase.New(coinbase.WithHTTPClient(httpClient)).Fetch(context.Background(), "BTC", "JPY")

			var pe *provider.ProviderError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tc.kind, pe.Kind)
		})
	}
}
