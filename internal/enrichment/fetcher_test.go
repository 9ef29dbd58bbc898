package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skirmish/pkg/esigateway"
)

func TestHTTPFetcher_SuccessReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"killmail_id":1}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	payload, err := f.Fetch(context.Background(), 1, srv.URL)

	require.NoError(t, err)
	assert.JSONEq(t, `{"killmail_id":1}`, string(payload))
}

func TestHTTPFetcher_NotFoundIsTypedPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), 1, srv.URL)

	require.Error(t, err)
	assert.IsType(t, &esigateway.UpstreamNotFound{}, err)
}

func TestHTTPFetcher_UnauthorizedIsTypedPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), 1, srv.URL)

	require.Error(t, err)
	assert.IsType(t, &esigateway.UpstreamUnauthorized{}, err)
}

func TestHTTPFetcher_ServerErrorRetriesThenFails(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), 1, srv.URL)

	require.Error(t, err)
	assert.IsType(t, &esigateway.UpstreamHttpError{}, err)
	assert.Equal(t, maxFetchAttempts+1, attempts)
}

func TestHTTPFetcher_ServerErrorThenSuccessRecovers(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	payload, err := f.Fetch(context.Background(), 1, srv.URL)

	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(payload))
}

func TestHTTPFetcher_EmptySourceURLIsNotFound(t *testing.T) {
	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), 1, "")

	require.Error(t, err)
	assert.IsType(t, &esigateway.UpstreamNotFound{}, err)
}
