package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	killmodels "skirmish/internal/killmail/models"
	"skirmish/pkg/esigateway"
)

type fakeRow struct {
	status    string
	sourceURL string
	payload   []byte
	errMsg    *string
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[int64]*fakeRow

	staleIDs []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[int64]*fakeRow{}}
}

func (f *fakeStore) seed(eventID int64, status, sourceURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[eventID] = &fakeRow{status: status, sourceURL: sourceURL}
}

func (f *fakeStore) StatusAndSourceURL(ctx context.Context, eventID int64) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[eventID]
	if !ok {
		return "", "", errors.New("no such row")
	}
	return row.status, row.sourceURL, nil
}

func (f *fakeStore) MarkSucceeded(ctx context.Context, eventID int64, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[eventID]
	if row.status == killmodels.EnrichmentSucceeded || row.status == killmodels.EnrichmentFailedPermanent {
		return nil
	}
	row.status = killmodels.EnrichmentSucceeded
	row.payload = payload
	row.errMsg = nil
	return nil
}

func (f *fakeStore) MarkFailedTransient(ctx context.Context, eventID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[eventID]
	if row.status == killmodels.EnrichmentSucceeded || row.status == killmodels.EnrichmentFailedPermanent {
		return nil
	}
	row.status = killmodels.EnrichmentFailedTransient
	row.errMsg = &reason
	return nil
}

func (f *fakeStore) MarkFailedPermanent(ctx context.Context, eventID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[eventID]
	if row.status == killmodels.EnrichmentSucceeded {
		return nil
	}
	row.status = killmodels.EnrichmentFailedPermanent
	row.errMsg = &reason
	return nil
}

func (f *fakeStore) StaleTransientEventIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.staleIDs, nil
}

type fakeFetcher struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, eventID int64, sourceURL string) (json.RawMessage, error) {
	f.calls++
	return f.payload, f.err
}

type fakeEmitter struct {
	mu   sync.Mutex
	seen []int64
}

func (e *fakeEmitter) Emit(ctx context.Context, eventID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, eventID)
}

func TestProcess_SuccessMarksSucceededAndStoresPayload(t *testing.T) {
	store := newFakeStore()
	store.seed(1, killmodels.EnrichmentPending, "https://example.test/kill/1")
	fetcher := &fakeFetcher{payload: json.RawMessage(`{"ok":true}`)}
	w := NewWorker(store, fetcher, &fakeEmitter{}, DefaultConfig())

	w.Process(context.Background(), 1)

	assert.Equal(t, killmodels.EnrichmentSucceeded, store.rows[1].status)
	assert.Equal(t, json.RawMessage(`{"ok":true}`), json.RawMessage(store.rows[1].payload))
}

func TestProcess_NotFoundMarksFailedPermanent(t *testing.T) {
	store := newFakeStore()
	store.seed(2, killmodels.EnrichmentPending, "https://example.test/kill/2")
	fetcher := &fakeFetcher{err: &esigateway.UpstreamNotFound{}}
	w := NewWorker(store, fetcher, &fakeEmitter{}, DefaultConfig())

	w.Process(context.Background(), 2)

	assert.Equal(t, killmodels.EnrichmentFailedPermanent, store.rows[2].status)
}

func TestProcess_ServerErrorMarksFailedTransient(t *testing.T) {
	store := newFakeStore()
	store.seed(3, killmodels.EnrichmentPending, "https://example.test/kill/3")
	fetcher := &fakeFetcher{err: &esigateway.UpstreamHttpError{Status: 503}}
	w := NewWorker(store, fetcher, &fakeEmitter{}, DefaultConfig())

	w.Process(context.Background(), 3)

	assert.Equal(t, killmodels.EnrichmentFailedTransient, store.rows[3].status)
}

func TestProcess_AlreadySucceededIsNoOpAndDoesNotRefetch(t *testing.T) {
	store := newFakeStore()
	store.seed(4, killmodels.EnrichmentSucceeded, "https://example.test/kill/4")
	fetcher := &fakeFetcher{err: &esigateway.UpstreamNotFound{}}
	w := NewWorker(store, fetcher, &fakeEmitter{}, DefaultConfig())

	w.Process(context.Background(), 4)

	assert.Equal(t, killmodels.EnrichmentSucceeded, store.rows[4].status)
	assert.Equal(t, 0, fetcher.calls)
}

func TestProcess_AlreadyFailedPermanentIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.seed(5, killmodels.EnrichmentFailedPermanent, "https://example.test/kill/5")
	fetcher := &fakeFetcher{payload: json.RawMessage(`{}`)}
	w := NewWorker(store, fetcher, &fakeEmitter{}, DefaultConfig())

	w.Process(context.Background(), 5)

	assert.Equal(t, killmodels.EnrichmentFailedPermanent, store.rows[5].status)
	assert.Equal(t, 0, fetcher.calls)
}

func TestProcess_DuplicateWorkItemAfterSuccessNeverRegresses(t *testing.T) {
	store := newFakeStore()
	store.seed(6, killmodels.EnrichmentPending, "https://example.test/kill/6")
	fetcher := &fakeFetcher{payload: json.RawMessage(`{"first":true}`)}
	w := NewWorker(store, fetcher, &fakeEmitter{}, DefaultConfig())

	w.Process(context.Background(), 6)
	fetcher.payload = json.RawMessage(`{"second":true}`)
	w.Process(context.Background(), 6)

	require.Equal(t, killmodels.EnrichmentSucceeded, store.rows[6].status)
	assert.Equal(t, json.RawMessage(`{"first":true}`), json.RawMessage(store.rows[6].payload))
}

func TestResweep_RequeuesStaleTransientRows(t *testing.T) {
	store := newFakeStore()
	store.staleIDs = []int64{7, 8}
	emitter := &fakeEmitter{}
	w := NewWorker(store, &fakeFetcher{}, emitter, DefaultConfig())

	w.resweep(context.Background())

	assert.ElementsMatch(t, []int64{7, 8}, emitter.seen)
}

func TestClassify_MapsKnownErrorsToOutcomes(t *testing.T) {
	assert.Equal(t, outcomeSuccess, classify(nil))
	assert.Equal(t, outcomePermanent, classify(&esigateway.UpstreamNotFound{}))
	assert.Equal(t, outcomePermanent, classify(&esigateway.UpstreamUnauthorized{}))
	assert.Equal(t, outcomeTransient, classify(&esigateway.UpstreamHttpError{Status: 500}))
	assert.Equal(t, outcomeTransient, classify(&esigateway.BudgetExhausted{}))
	assert.Equal(t, outcomeTransient, classify(errors.New("network blip")))
}
