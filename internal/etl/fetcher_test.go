package etl

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func serveJSON(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_WritesCanonicalRawArtifact(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"total":2,"products":[{"title":"A&B","price":12.50,"id":1}]}`)
	store := newMemStore()
	f := NewFetcher(map[string]string{"products": srv.URL}, store, time.Second)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.Now = func() time.Time { return fixed }

	doc, err := f.Fetch(context.Background(), "products")
	require.NoError(t, err)
	require.Equal(t, "products", doc.Source)
	require.Equal(t, "raw/products_raw.json", doc.Path)
	require.Equal(t, fixed, doc.FetchedAt)

	require.Equal(t, 1, store.puts)
	require.Equal(t, "application/json", store.types["raw/products_raw.json"])
	want := `{
    "products": [
        {
            "id": 1,
            "price": 12.50,
            "title": "A&B"
        }
    ],
    "total": 2
}
`
	require.Equal(t, want, string(store.objects["raw/products_raw.json"]))
}

func TestFetch_UnknownNameIsConfigurationError(t *testing.T) {
	store := newMemStore()
	f := NewFetcher(map[string]string{"users": "http://127.0.0.1:1"}, store, time.Second)

	_, err := f.Fetch(context.Background(), "orders")
	require.ErrorIs(t, err, ErrConfiguration)
	require.Zero(t, store.puts)
}

func TestFetch_HTTPStatusError(t *testing.T) {
	srv := serveJSON(t, http.StatusInternalServerError, `{"message":"down"}`)
	store := newMemStore()
	f := NewFetcher(map[string]string{"users": srv.URL}, store, time.Second)

	_, err := f.Fetch(context.Background(), "users")
	require.ErrorIs(t, err, ErrHTTPStatus)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusInternalServerError, se.Code)
	require.Zero(t, store.puts)
	require.True(t, Retryable(err))
}

func TestFetch_MalformedJSONIsDecodeError(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `<html>oops</html>`,
		"trailing data": `{"a":1} {"b":2}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := serveJSON(t, http.StatusOK, body)
			store := newMemStore()
			f := NewFetcher(map[string]string{"carts": srv.URL}, store, time.Second)

			_, err := f.Fetch(context.Background(), "carts")
			require.ErrorIs(t, err, ErrDecode)
			require.Zero(t, store.puts)
		})
	}
}

func TestFetch_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	store := newMemStore()
	f := NewFetcher(map[string]string{"users": srv.URL}, store, 50*time.Millisecond)

	_, err := f.Fetch(context.Background(), "users")
	require.ErrorIs(t, err, ErrNetwork)
	require.Zero(t, store.puts)
}

func TestFetch_StoreFailureIsStorageError(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `[]`)
	store := newMemStore()
	store.putErr = errors.New("bucket not writable")
	f := NewFetcher(map[string]string{"users": srv.URL}, store, time.Second)

	_, err := f.Fetch(context.Background(), "users")
	require.ErrorIs(t, err, ErrStorage)
}

func TestFetchAll_OneFailureDoesNotStopOthers(t *testing.T) {
	ok := serveJSON(t, http.StatusOK, `{"users":[]}`)
	bad := serveJSON(t, http.StatusNotFound, `{}`)
	store := newMemStore()
	f := NewFetcher(map[string]string{"users": ok.URL, "carts": bad.URL, "products": ok.URL}, store, time.Second)

	failed := f.FetchAll(context.Background())
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed["carts"], ErrHTTPStatus)
	require.Equal(t, 2, store.puts)
}
