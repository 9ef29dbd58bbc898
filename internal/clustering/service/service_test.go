package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skirmish/internal/clustering/engine"
	killmodels "skirmish/internal/killmail/models"
	"skirmish/internal/ruleset"
)

type fakeStore struct {
	mu sync.Mutex

	batch       []killmodels.Event
	plans       []engine.Plan
	ignored     []int64
	reclustered bool

	persistErr error
}

func (f *fakeStore) FetchBatch(ctx context.Context, delay time.Duration, limit int) ([]killmodels.Event, error) {
	return f.batch, nil
}

func (f *fakeStore) PersistPlan(ctx context.Context, plan engine.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return f.persistErr
	}
	f.plans = append(f.plans, plan)
	return nil
}

func (f *fakeStore) MarkIgnored(ctx context.Context, eventIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignored = append(f.ignored, eventIDs...)
	return nil
}

func (f *fakeStore) Recluster(ctx context.Context, from, to time.Time) error {
	f.reclustered = true
	return nil
}

type fixedClassifier struct{}

func (fixedClassifier) Classify(systemID int64) (string, string) { return "lowsec", "low" }

type fakeRulesetView struct{ r ruleset.Ruleset }

func (f fakeRulesetView) Current() ruleset.Ruleset { return f.r }

func testEvent(id, systemID int64, occurredAt time.Time) killmodels.Event {
	return killmodels.Event{EventID: id, SystemID: systemID, OccurredAt: occurredAt}
}

func TestTick_FormsBattleFromClusterableBatch(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{batch: []killmodels.Event{
		testEvent(1, 30000142, base),
		testEvent(2, 30000142, base.Add(time.Minute)),
	}}
	svc := NewService(store, fixedClassifier{}, fakeRulesetView{r: ruleset.Ruleset{MinPilots: 1}}, DefaultConfig())

	svc.Tick(context.Background())

	require.Len(t, store.plans, 1)
	assert.Equal(t, 2, store.plans[0].Battle.TotalKills)
	assert.Empty(t, store.ignored)
}

func TestTick_MarksBelowThresholdClusterIgnored(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{batch: []killmodels.Event{testEvent(1, 30000142, base)}}
	svc := NewService(store, fixedClassifier{}, fakeRulesetView{r: ruleset.Ruleset{MinPilots: 5}}, DefaultConfig())

	svc.Tick(context.Background())

	assert.Empty(t, store.plans)
	assert.Equal(t, []int64{1}, store.ignored)
}

func TestTick_EmptyBatchIsNoOp(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, fixedClassifier{}, fakeRulesetView{}, DefaultConfig())

	svc.Tick(context.Background())

	assert.Empty(t, store.plans)
	assert.Empty(t, store.ignored)
}

func TestTick_PersistFailureDoesNotRecordAnyPlan(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		batch: []killmodels.Event{
			testEvent(1, 30000142, base),
			testEvent(2, 30000777, base),
		},
		persistErr: assertErr,
	}
	svc := NewService(store, fixedClassifier{}, fakeRulesetView{r: ruleset.Ruleset{MinPilots: 1}}, DefaultConfig())

	svc.Tick(context.Background())

	assert.Empty(t, store.plans)
}

func TestRecluster_DelegatesToStore(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, fixedClassifier{}, fakeRulesetView{}, DefaultConfig())

	err := svc.Recluster(context.Background(), time.Now(), time.Now())

	require.NoError(t, err)
	assert.True(t, store.reclustered)
}

var assertErr = &fixedError{"persist failed"}

type fixedError struct{ msg string }

func (e *fixedError) Error() string { return e.msg }
