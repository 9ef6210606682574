package cryptocompare_test

import (
	"context"
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quoteengine/internal/httpx/httpxmock"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/cryptocompare"
)

func okBody(s string) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString(s))}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := httpxmock.NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/data/price", req.URL.Path)
			require.Equal(t, "ETH", req.URL.Query().Get("fsym"))
			require.Equal(t, "JPY", req.URL.Query().Get("tsyms"))
			require.Equal(t, "Apikey secret", req.Header.Get("Authorization"))
			return okBody(`{"JPY":350000.5}`), nil
		}).
		Times(1)

	client := cryptocompare.New(cryptocompare.WithHTTPClient(httpClient), cryptocompare.WithAPIKey("secret"))
	q, err := client.Fetch(context.Background(), "ETH", "JPY")

	require.NoError(t, err)
	require.Equal(t, "cryptocompare", q.Provider)
	require.Equal(t, "350000.5", q.UnitPrice.String())
}

func TestFetch_ErrorPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		res       *http.Response
		kind      provider.ErrorKind
		retryable bool
	}{
		{"missing market", okBody(`{"Response":"Error","Message":"cccagg_or_exchange market does not exist for this coin pair (FOO-JPY)"}`), provider.ErrUnsupportedPair, false},
		{"rate limit", okBody(`{"Response":"Error","Message":"You are over your rate limit please upgrade your account!"}`), provider.ErrHTTP, true},
		{"quote absent", okBody(`{"USD":1}`), provider.ErrUnsupportedPair, false},
		{"non numeric", okBody(`{"JPY":"abc"}`), provider.ErrInvalidResponse, false},
		{"server error", &http.Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(bytes.NewBufferString("oops"))}, provider.ErrHTTP, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := httpxmock.NewMockHTTPClient(ctrl)
			httpClient.EXPECT().Do(gomock.Any()).Return(tc.res, nil).Times(1)

			_, err := cryptocompare.New(cryptocompare.WithHTTPClient(httpClient)).Fetch(context.Background(), "FOO", "JPY")

			var pe *provider.ProviderError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tc.kind, pe.Kind)
			require.Equal(t, tc.retryable, pe.Retryable())
		})
	}
}
