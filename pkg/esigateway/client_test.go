package esigateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(Config{BaseURL: srv.URL, UserAgent: "skirmish-test"}, nil)
	return c, srv
}

func TestResolveNames_DedupsAndFiltersNonPositive(t *testing.T) {
	var calls int32
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var ids []int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		assert.ElementsMatch(t, []int64{100, 200}, ids)

		entries := []NameEntry{
			{ID: 100, Name: "Alice", Category: "character"},
			{ID: 200, Name: "Bob Corp", Category: "corporation"},
		}
		json.NewEncoder(w).Encode(entries)
	})
	defer srv.Close()

	result, err := c.ResolveNames(context.Background(), []int64{100, 100, 200, 0, -5})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "Alice", result[100].Name)
	assert.Equal(t, "Bob Corp", result[200].Name)
}

func TestResolveNames_SecondCallHitsCache(t *testing.T) {
	var calls int32
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		entries := []NameEntry{{ID: 1, Name: "Someone", Category: "character"}}
		json.NewEncoder(w).Encode(entries)
	})
	defer srv.Close()

	ctx := context.Background()
	_, err := c.ResolveNames(ctx, []int64{1})
	require.NoError(t, err)
	_, err = c.ResolveNames(ctx, []int64{1})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCharacter_CachesAfterFirstFetch(t *testing.T) {
	var calls int32
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(Character{Name: "Pilot One", CorporationID: 98000001})
	})
	defer srv.Close()

	ctx := context.Background()
	got, err := c.Character(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), got.ID)
	assert.Equal(t, "Pilot One", got.Name)

	_, err = c.Character(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchEntity_NotFoundSurfacesTypedError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	_, err := c.Character(context.Background(), 1)
	require.Error(t, err)
	var notFound *UpstreamNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestFetchEntity_UnauthorizedSurfacesTypedError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer srv.Close()

	_, err := c.Alliance(context.Background(), 1)
	require.Error(t, err)
	var unauthorized *UpstreamUnauthorized
	assert.ErrorAs(t, err, &unauthorized)
}

func TestDoWithRetry_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(SolarSystem{Name: "Jita", SecurityStatus: 0.9})
	})
	defer srv.Close()

	got, err := c.System(context.Background(), 30000142)
	require.NoError(t, err)
	assert.Equal(t, "Jita", got.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, defaultBudgetCap, c.budget.Remaining())
}

func TestErrorBudget_SuspendsAfterRepeatedRateLimits(t *testing.T) {
	b := NewErrorBudget()
	for i := 0; i < defaultBudgetCap; i++ {
		b.RecordRateLimited()
	}
	assert.True(t, b.Suspended())

	b.RecordSuccess()
	assert.False(t, b.Suspended())
}

func TestDedupPositive_SortsAndFilters(t *testing.T) {
	got := dedupPositive([]int64{5, -1, 0, 5, 3, 3, 2})
	assert.Equal(t, []int64{2, 3, 5}, got)
}
