package nameenricher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	killmodels "skirmish/internal/killmail/models"
	"skirmish/pkg/esigateway"
)

type fakeResolver struct {
	names map[int64]esigateway.NameEntry
	calls int
	lastIDs []int64
}

func (f *fakeResolver) ResolveNames(ctx context.Context, ids []int64) (map[int64]esigateway.NameEntry, error) {
	f.calls++
	f.lastIDs = ids
	out := make(map[int64]esigateway.NameEntry, len(ids))
	for _, id := range ids {
		if e, ok := f.names[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func ptr(v int64) *int64 { return &v }

func TestEnrich_ResolvesOneEntityPerEvent(t *testing.T) {
	resolver := &fakeResolver{names: map[int64]esigateway.NameEntry{
		30000142: {ID: 30000142, Name: "Jita"},
		100:      {ID: 100, Name: "Victim Pilot"},
		200:      {ID: 200, Name: "Attacker Pilot"},
	}}
	enricher := New(resolver)

	events := []killmodels.Event{
		{
			EventID:              1,
			SystemID:             30000142,
			VictimCharacterID:    ptr(100),
			AttackerCharacterIDs: []int64{200},
		},
	}

	result, err := enricher.Enrich(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, result, 1)

	ent := result[1]
	assert.Equal(t, "Jita", ent.System.Name)
	require.NotNil(t, ent.VictimCharacter)
	assert.Equal(t, "Victim Pilot", ent.VictimCharacter.Name)
	require.Len(t, ent.AttackerCharacters, 1)
	assert.Equal(t, "Attacker Pilot", ent.AttackerCharacters[0].Name)
}

func TestEnrich_CollectsIDsOnceAcrossBatch(t *testing.T) {
	resolver := &fakeResolver{names: map[int64]esigateway.NameEntry{}}
	enricher := New(resolver)

	events := []killmodels.Event{
		{EventID: 1, SystemID: 30000142, VictimCharacterID: ptr(100)},
		{EventID: 2, SystemID: 30000142, AttackerCharacterIDs: []int64{100, 200}},
	}

	_, err := enricher.Enrich(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
	assert.ElementsMatch(t, []int64{30000142, 100, 200}, resolver.lastIDs)
}

func TestEnrich_UnrecognizedIDGetsEmptyName(t *testing.T) {
	resolver := &fakeResolver{names: map[int64]esigateway.NameEntry{}}
	enricher := New(resolver)

	events := []killmodels.Event{
		{EventID: 1, SystemID: 30000142, VictimCharacterID: ptr(999)},
	}

	result, err := enricher.Enrich(context.Background(), events)
	require.NoError(t, err)
	require.NotNil(t, result[1].VictimCharacter)
	assert.Equal(t, int64(999), result[1].VictimCharacter.ID)
	assert.Empty(t, result[1].VictimCharacter.Name)
}

func TestEnrich_NilIDsAreOmittedFromEntity(t *testing.T) {
	resolver := &fakeResolver{names: map[int64]esigateway.NameEntry{}}
	enricher := New(resolver)

	events := []killmodels.Event{
		{EventID: 1, SystemID: 30000142},
	}

	result, err := enricher.Enrich(context.Background(), events)
	require.NoError(t, err)
	assert.Nil(t, result[1].VictimCharacter)
	assert.Nil(t, result[1].VictimCorporation)
	assert.Nil(t, result[1].VictimAlliance)
	assert.Nil(t, result[1].AttackerCharacters)
}

func TestEnrich_EmptyBatchResolvesNoIDs(t *testing.T) {
	resolver := &fakeResolver{names: map[int64]esigateway.NameEntry{}}
	enricher := New(resolver)

	result, err := enricher.Enrich(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, 1, resolver.calls)
	assert.Empty(t, resolver.lastIDs)
}
