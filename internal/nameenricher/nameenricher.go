// Package nameenricher attaches human-readable names to the entity ids
// carried by a batch of events. It is the single point where id->name
// projection happens; callers never do this themselves (spec's C9).
//
// Grounded on the teacher's convertVictimToMap/convertAttackersToMap
// backward-compatibility conversion helpers in pkg/evegateway/client.go:
// the same idea of one conversion seam that walks a killmail's entity
// ids, repointed here at name resolution instead of map-shape
// compatibility.
package nameenricher

import (
	"context"

	"skirmish/pkg/esigateway"

	killmodels "skirmish/internal/killmail/models"
)

// Named is a resolved {id, name} pair attached to an outgoing DTO.
type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Entity bundles the named system, victim and attacker identities for one
// event. Fields are omitted when the underlying id was nil.
type Entity struct {
	System            Named
	VictimCharacter   *Named
	VictimCorporation *Named
	VictimAlliance    *Named
	AttackerCharacters   []Named
	AttackerCorporations []Named
	AttackerAlliances    []Named
}

// Enricher collects every entity id referenced by a batch of events,
// resolves them in one call to the name resolver, and hands back a
// lookup keyed by event id.
type Enricher struct {
	resolver esigateway.NameResolver
}

// New builds an Enricher backed by resolver (normally an esigateway.Client).
func New(resolver esigateway.NameResolver) *Enricher {
	return &Enricher{resolver: resolver}
}

// Enrich resolves names for every id referenced across events and returns
// one Entity per event, keyed by event_id. Ids that the resolver doesn't
// recognize are attached with an empty Name rather than omitted, so
// callers always get one Entity per input event.
func (n *Enricher) Enrich(ctx context.Context, events []killmodels.Event) (map[int64]Entity, error) {
	ids := collectIDs(events)
	names, err := n.resolver.ResolveNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make(map[int64]Entity, len(events))
	for _, e := range events {
		ent := Entity{System: named(e.SystemID, names)}

		if e.VictimCharacterID != nil {
			v := named(*e.VictimCharacterID, names)
			ent.VictimCharacter = &v
		}
		if e.VictimCorporationID != nil {
			v := named(*e.VictimCorporationID, names)
			ent.VictimCorporation = &v
		}
		if e.VictimAllianceID != nil {
			v := named(*e.VictimAllianceID, names)
			ent.VictimAlliance = &v
		}

		ent.AttackerCharacters = namedList(e.AttackerCharacterIDs, names)
		ent.AttackerCorporations = namedList(e.AttackerCorporationIDs, names)
		ent.AttackerAlliances = namedList(e.AttackerAllianceIDs, names)

		result[e.EventID] = ent
	}
	return result, nil
}

// collectIDs walks every field of every event carrying an entity id
// (system, alliances, corps, characters) and returns the deduplicated
// set, in first-seen order.
func collectIDs(events []killmodels.Event) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, e := range events {
		add(e.SystemID)
		if e.VictimCharacterID != nil {
			add(*e.VictimCharacterID)
		}
		if e.VictimCorporationID != nil {
			add(*e.VictimCorporationID)
		}
		if e.VictimAllianceID != nil {
			add(*e.VictimAllianceID)
		}
		for _, id := range e.AttackerCharacterIDs {
			add(id)
		}
		for _, id := range e.AttackerCorporationIDs {
			add(id)
		}
		for _, id := range e.AttackerAllianceIDs {
			add(id)
		}
	}
	return ids
}

func named(id int64, names map[int64]esigateway.NameEntry) Named {
	if entry, ok := names[id]; ok {
		return Named{ID: id, Name: entry.Name}
	}
	return Named{ID: id}
}

func namedList(ids []int64, names map[int64]esigateway.NameEntry) []Named {
	if len(ids) == 0 {
		return nil
	}
	out := make([]Named, len(ids))
	for i, id := range ids {
		out[i] = named(id, names)
	}
	return out
}
