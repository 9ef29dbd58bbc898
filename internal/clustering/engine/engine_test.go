package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	killmodels "skirmish/internal/killmail/models"
)

func ev(id, systemID int64, minute int) killmodels.Event {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute)
	charID := id * 100
	return killmodels.Event{
		EventID:             id,
		SystemID:            systemID,
		OccurredAt:          t,
		VictimCharacterID:   &charID,
		AttackerCharacterIDs: nil,
	}
}

func TestCluster_EmitsExactlyMinKills(t *testing.T) {
	events := []killmodels.Event{ev(1, 30000142, 0), ev(2, 30000142, 1), ev(3, 30000142, 2)}
	result := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 2, MinKills: 3}, killmodels.NewDefaultClassifier())

	require.Len(t, result.Battles, 1)
	assert.Empty(t, result.Ignored)
	assert.Equal(t, 3, result.Battles[0].Battle.TotalKills)
}

func TestCluster_BelowMinKillsIsIgnored(t *testing.T) {
	events := []killmodels.Event{ev(1, 30000142, 0), ev(2, 30000142, 1)}
	result := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 2, MinKills: 3}, killmodels.NewDefaultClassifier())

	assert.Empty(t, result.Battles)
	assert.ElementsMatch(t, []int64{1, 2}, result.Ignored)
}

func TestCluster_FiveEventsWithinGapFormOneBattle(t *testing.T) {
	events := []killmodels.Event{
		ev(1, 30000142, 0),
		ev(2, 30000142, 1),
		ev(3, 30000142, 2),
		ev(4, 30000142, 3),
		ev(5, 30000142, 4),
	}
	result := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 2, MinKills: 3}, killmodels.NewDefaultClassifier())

	require.Len(t, result.Battles, 1)
	b := result.Battles[0].Battle
	assert.Equal(t, 5, b.TotalKills)
	assert.Equal(t, events[0].OccurredAt, b.StartTime)
	assert.Equal(t, events[4].OccurredAt, b.EndTime)
}

func TestCluster_GapExactlyAtBoundaryStaysInCluster(t *testing.T) {
	// gap_max_minutes is a closed interval: exactly gap_max_minutes apart
	// still belongs to the same cluster.
	events := []killmodels.Event{ev(1, 30000142, 0), ev(2, 30000142, 2)}
	result := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 2, MinKills: 1}, killmodels.NewDefaultClassifier())

	require.Len(t, result.Battles, 1)
	assert.Equal(t, 2, result.Battles[0].Battle.TotalKills)
}

func TestCluster_GapJustOverBoundarySplitsCluster(t *testing.T) {
	events := []killmodels.Event{ev(1, 30000142, 0), ev(2, 30000142, 3)}
	result := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 2, MinKills: 1}, killmodels.NewDefaultClassifier())

	assert.Len(t, result.Battles, 2)
}

func TestCluster_PartitionsBySystem(t *testing.T) {
	events := []killmodels.Event{ev(1, 30000142, 0), ev(2, 30000144, 0), ev(3, 30000142, 1)}
	result := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 20, MinKills: 1}, killmodels.NewDefaultClassifier())

	assert.Len(t, result.Battles, 2)
}

func TestCluster_EmptyAttackerListYieldsOneParticipant(t *testing.T) {
	events := []killmodels.Event{ev(1, 30000142, 0)}
	result := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 20, MinKills: 1}, killmodels.NewDefaultClassifier())

	require.Len(t, result.Battles, 1)
	assert.Len(t, result.Battles[0].Participants, 1)
	assert.True(t, result.Battles[0].Participants[0].IsVictim)
}

func TestCluster_ISKDestroyedSumsNullsAsZero(t *testing.T) {
	isk := int64(750_000_000)
	e1 := ev(1, 30000142, 0)
	e1.ISKValue = &isk
	e2 := ev(2, 30000142, 1) // nil ISK value

	result := Cluster([]killmodels.Event{e1, e2}, Params{WindowMinutes: 60, GapMaxMinutes: 20, MinKills: 1}, killmodels.NewDefaultClassifier())

	require.Len(t, result.Battles, 1)
	assert.Equal(t, isk, result.Battles[0].Battle.TotalISKDestroyed)
}

func TestCluster_WindowBoundsOverridesGap(t *testing.T) {
	// A chain of 1-minute gaps can still exceed window_minutes; the battle
	// must close once a member falls outside the window of the first event.
	events := []killmodels.Event{
		ev(1, 30000142, 0),
		ev(2, 30000142, 1),
		ev(3, 30000142, 2),
		ev(4, 30000142, 4), // minute 4, > window of 3 relative to event 1 at minute 0
	}
	result := Cluster(events, Params{WindowMinutes: 3, GapMaxMinutes: 20, MinKills: 1}, killmodels.NewDefaultClassifier())

	require.Len(t, result.Battles, 2)
	assert.Equal(t, 3, result.Battles[0].Battle.TotalKills)
	assert.Equal(t, 1, result.Battles[1].Battle.TotalKills)
}

func TestCluster_Deterministic_OrderIndependentOfInput(t *testing.T) {
	events := []killmodels.Event{ev(3, 30000142, 2), ev(1, 30000142, 0), ev(2, 30000142, 1)}
	reversed := []killmodels.Event{ev(2, 30000142, 1), ev(3, 30000142, 2), ev(1, 30000142, 0)}

	a := Cluster(events, Params{WindowMinutes: 60, GapMaxMinutes: 20, MinKills: 1}, killmodels.NewDefaultClassifier())
	b := Cluster(reversed, Params{WindowMinutes: 60, GapMaxMinutes: 20, MinKills: 1}, killmodels.NewDefaultClassifier())

	require.Len(t, a.Battles, 1)
	require.Len(t, b.Battles, 1)
	assert.Equal(t, a.Battles[0].Battle.TotalKills, b.Battles[0].Battle.TotalKills)
	assert.Equal(t, a.Battles[0].Battle.StartTime, b.Battles[0].Battle.StartTime)
	assert.Equal(t, a.Battles[0].Battle.EndTime, b.Battles[0].Battle.EndTime)
}
