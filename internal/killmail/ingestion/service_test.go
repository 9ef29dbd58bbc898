package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	killmodels "skirmish/internal/killmail/models"
	"skirmish/internal/ruleset"
)

type fakeStore struct {
	mu         sync.Mutex
	events     map[int64]killmodels.Event
	enrichment map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: map[int64]killmodels.Event{}, enrichment: map[int64]bool{}}
}

func (f *fakeStore) InsertEvent(ctx context.Context, e killmodels.Event) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.events[e.EventID]; exists {
		return false, nil
	}
	f.events[e.EventID] = e
	return true, nil
}

func (f *fakeStore) InsertPendingEnrichment(ctx context.Context, eventID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrichment[eventID] = true
	return nil
}

func (f *fakeStore) StalePendingEventIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error) {
	return nil, nil
}

type fakeRulesetView struct{ r ruleset.Ruleset }

func (f fakeRulesetView) Current() ruleset.Ruleset { return f.r }

type fakeEmitter struct {
	mu   sync.Mutex
	seen []int64
}

func (e *fakeEmitter) Emit(ctx context.Context, eventID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, eventID)
}

func testEvent(id, systemID int64) killmodels.Event {
	return killmodels.Event{EventID: id, SystemID: systemID, OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestIngest_FirstCallStoresAndEmits(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	svc := NewService(nil, store, fakeRulesetView{}, killmodels.NewDefaultClassifier(), emitter, DefaultConfig())

	svc.Ingest(context.Background(), testEvent(9001, 30000142))

	assert.Len(t, store.events, 1)
	assert.True(t, store.enrichment[9001])
	assert.Equal(t, []int64{9001}, emitter.seen)
}

func TestIngest_DuplicateIsNotReEmitted(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	svc := NewService(nil, store, fakeRulesetView{}, killmodels.NewDefaultClassifier(), emitter, DefaultConfig())

	svc.Ingest(context.Background(), testEvent(9001, 30000142))
	svc.Ingest(context.Background(), testEvent(9001, 30000142))

	assert.Len(t, store.events, 1)
	assert.Equal(t, []int64{9001}, emitter.seen)
}

func TestIngest_RejectedByIgnoreUnlistedNeverStored(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	alliance := int64(99000001)
	r := ruleset.Ruleset{IgnoreUnlisted: true, TrackedAllianceIDs: []int64{alliance + 1}}
	svc := NewService(nil, store, fakeRulesetView{r: r}, killmodels.NewDefaultClassifier(), emitter, DefaultConfig())

	e := testEvent(9001, 30000142)
	e.VictimAllianceID = &alliance
	svc.Ingest(context.Background(), e)

	assert.Empty(t, store.events)
	assert.Empty(t, emitter.seen)
}

func TestIngest_PassesWhenTrackedAllianceMatches(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	alliance := int64(99000001)
	r := ruleset.Ruleset{IgnoreUnlisted: true, TrackedAllianceIDs: []int64{alliance}}
	svc := NewService(nil, store, fakeRulesetView{r: r}, killmodels.NewDefaultClassifier(), emitter, DefaultConfig())

	e := testEvent(9001, 30000142)
	e.VictimAllianceID = &alliance
	svc.Ingest(context.Background(), e)

	require.Len(t, store.events, 1)
	assert.Equal(t, []int64{9001}, emitter.seen)
}

func TestIngest_ClassifiesEventBeforeStoring(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	svc := NewService(nil, store, fakeRulesetView{}, killmodels.NewDefaultClassifier(), emitter, DefaultConfig())

	svc.Ingest(context.Background(), testEvent(9001, 30000142))

	assert.NotEmpty(t, store.events[9001].SpaceClass)
	assert.NotEmpty(t, store.events[9001].SecurityClass)
}

func TestChannelEmitter_EmitsOntoChannel(t *testing.T) {
	ch := make(chan int64, 1)
	e := NewChannelEmitter(ch)
	e.Emit(context.Background(), 42)

	select {
	case id := <-ch:
		assert.Equal(t, int64(42), id)
	default:
		t.Fatal("expected emitted value on channel")
	}
}
