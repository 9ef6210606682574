package httpx

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func TestClient_Do_SetsDefaultHeaders(t *testing.T) {
    t.Parallel()

    var gotUA, gotAccept, gotCustom string
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotUA = r.Header.Get("User-Agent")
        gotAccept = r.Header.Get("Accept")
        gotCustom = r.Header.Get("X-Custom")
        w.WriteHeader(http.StatusNoContent)
    }))
    defer srv.Close()

    c := New(2 * time.Second)
    c.Headers = map[string]string{"Accept": "application/json", "X-Custom": "default"}

    req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
    require.NoError(t, err)
    req.Header.Set("X-Custom", "explicit")

    res, err := c.Do(req)
    require.NoError(t, err)
    defer res.Body.Close()

    require.Equal(t, http.StatusNoContent, res.StatusCode)
    require.Equal(t, "quoteengine/1.0", gotUA)
    require.Equal(t, "application/json", gotAccept)
    require.Equal(t, "explicit", gotCustom)
}
