// Package engine implements the pure battle-clustering function: grouping
// a time-sorted batch of events into candidate battles by system, time
// window and gap. It performs no I/O and is safe to call from property
// tests with hand-built event slices.
package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"

	battlemodels "skirmish/internal/battle/models"
	killmodels "skirmish/internal/killmail/models"
)

// Params are the clustering knobs, sourced from the active ruleset or
// package defaults.
type Params struct {
	WindowMinutes  int // default 60 - max span of a single battle
	GapMaxMinutes  int // default 20 - max silence between consecutive events in one battle
	MinKills       int // default 1  - minimum events per battle to emit
}

// DefaultParams mirrors spec defaults.
func DefaultParams() Params {
	return Params{WindowMinutes: 60, GapMaxMinutes: 20, MinKills: 1}
}

// Plan is one emitted battle candidate: the battle row plus its derived
// attachment and participant rows, ready for a single transactional commit.
type Plan struct {
	Battle       battlemodels.Battle
	Events       []battlemodels.Event
	Participants []battlemodels.Participant
}

// Result is the output of Cluster: the plans to persist, and the event IDs
// that fell below min_kills and must be marked processed with no battle.
type Result struct {
	Battles []Plan
	Ignored []int64
}

// Classifier derives a battle's space_class from its system ID.
type Classifier interface {
	Classify(systemID int64) (spaceClass, securityClass string)
}

// Cluster groups events into candidate battles. Events need not be
// pre-sorted by the caller — Cluster sorts internally by (system_id,
// occurred_at, event_id) to guarantee deterministic, stable output
// regardless of input order, per spec's "deterministic and stable"
// requirement.
func Cluster(events []killmodels.Event, params Params, classifier Classifier) Result {
	if params.MinKills < 1 {
		params.MinKills = 1
	}

	byID := make(map[int64]killmodels.Event, len(events))
	for _, e := range events {
		byID[e.EventID] = e
	}

	sorted := make([]killmodels.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SystemID != sorted[j].SystemID {
			return sorted[i].SystemID < sorted[j].SystemID
		}
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	result := Result{}

	window := time.Duration(params.WindowMinutes) * time.Minute
	gapMax := time.Duration(params.GapMaxMinutes) * time.Minute

	var cluster []killmodels.Event

	flush := func() {
		if len(cluster) == 0 {
			return
		}
		if len(cluster) < params.MinKills {
			for _, e := range cluster {
				result.Ignored = append(result.Ignored, e.EventID)
			}
		} else {
			result.Battles = append(result.Battles, buildPlan(cluster, classifier))
		}
		cluster = nil
	}

	var lastSystemID int64
	haveSystem := false

	for _, e := range sorted {
		if !haveSystem || e.SystemID != lastSystemID {
			flush()
			lastSystemID = e.SystemID
			haveSystem = true
			cluster = append(cluster, e)
			continue
		}

		first := cluster[0]
		last := cluster[len(cluster)-1]

		withinGap := !e.OccurredAt.After(last.OccurredAt.Add(gapMax))
		withinWindow := !e.OccurredAt.After(first.OccurredAt.Add(window))

		if withinGap && withinWindow {
			cluster = append(cluster, e)
		} else {
			flush()
			cluster = append(cluster, e)
		}
	}
	flush()

	return result
}

func buildPlan(events []killmodels.Event, classifier Classifier) Plan {
	first := events[0]
	last := events[0]
	var totalISK int64

	battleID := uuid.New().String()
	spaceClass, _ := classifier.Classify(first.SystemID)

	battleEvents := make([]battlemodels.Event, 0, len(events))
	participants := make(map[int64]battlemodels.Participant)
	participantOrder := make([]int64, 0, len(events)*2)

	upsertParticipant := func(characterID int64, allianceID, corpID, shipTypeID *int64, isVictim bool, occurredAt time.Time, eventID int64) {
		existing, ok := participants[characterID]
		if ok {
			// Latest-seen wins; tie-break on equal occurred_at by higher event_id.
			// We rely on events being processed in ascending (occurred_at, event_id)
			// order, so a later upsert always supersedes an earlier one.
			_ = existing
		}
		participants[characterID] = battlemodels.Participant{
			BattleID:    battleID,
			CharacterID: characterID,
			AllianceID:  allianceID,
			CorpID:      corpID,
			ShipTypeID:  shipTypeID,
			IsVictim:    isVictim,
		}
		if !ok {
			participantOrder = append(participantOrder, characterID)
		}
	}

	for _, e := range events {
		if e.OccurredAt.Before(first.OccurredAt) {
			first = e
		}
		if e.OccurredAt.After(last.OccurredAt) {
			last = e
		}
		if e.ISKValue != nil {
			totalISK += *e.ISKValue
		}

		battleEvents = append(battleEvents, battlemodels.Event{
			BattleID:            battleID,
			EventID:             e.EventID,
			VictimAllianceID:    e.VictimAllianceID,
			AttackerAllianceIDs: e.AttackerAllianceIDs,
			ISKValue:            e.ISKValue,
			OccurredAt:          e.OccurredAt,
		})

		if e.VictimCharacterID != nil {
			upsertParticipant(*e.VictimCharacterID, e.VictimAllianceID, e.VictimCorporationID, e.VictimShipTypeID, true, e.OccurredAt, e.EventID)
		}
		for i, charID := range e.AttackerCharacterIDs {
			var allianceID, corpID, shipTypeID *int64
			if i < len(e.AttackerAllianceIDs) {
				allianceID = &e.AttackerAllianceIDs[i]
			}
			if i < len(e.AttackerCorporationIDs) {
				corpID = &e.AttackerCorporationIDs[i]
			}
			if i < len(e.AttackerShipTypeIDs) {
				shipTypeID = &e.AttackerShipTypeIDs[i]
			}
			upsertParticipant(charID, allianceID, corpID, shipTypeID, false, e.OccurredAt, e.EventID)
		}
	}

	participantList := make([]battlemodels.Participant, 0, len(participantOrder))
	for _, id := range participantOrder {
		participantList = append(participantList, participants[id])
	}

	return Plan{
		Battle: battlemodels.Battle{
			ID:                battleID,
			SystemID:          first.SystemID,
			SpaceClass:        spaceClass,
			StartTime:         first.OccurredAt,
			EndTime:           last.OccurredAt,
			TotalKills:        len(events),
			TotalISKDestroyed: totalISK,
		},
		Events:       battleEvents,
		Participants: participantList,
	}
}
