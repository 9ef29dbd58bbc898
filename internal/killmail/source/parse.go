package source

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	killmodels "skirmish/internal/killmail/models"
)

// parseEvent converts one RedisQ package into a killmail.Event. Parsing
// rules, per the spec's source ambiguity notes:
//   - event_id prefers the inner killmail's killmail_id over the envelope's
//     killID (the envelope ID is a RedisQ routing artifact, not identity).
//   - killmail_time is parsed as RFC3339 (ISO-8601); failure is terminal
//     for this event, never persisted.
//   - attacker ID arrays are deduplicated by character ID, preserving
//     first-seen order, dropping entries with no character (NPC/unknown
//     attackers contribute to counts elsewhere but not to identity arrays).
//   - isk_value rounds the upstream float to the nearest integer using
//     round-half-to-even, an explicit choice where the source's own
//     rounding mode is unspecified.
func parseEvent(pkg *redisQPackage) (killmodels.Event, error) {
	if len(pkg.Killmail) == 0 {
		return killmodels.Event{}, &MissingPayload{}
	}

	var km esiKillmail
	if err := json.Unmarshal(pkg.Killmail, &km); err != nil {
		return killmodels.Event{}, &DecodeError{Err: err}
	}

	eventID := km.KillmailID
	if eventID == 0 {
		eventID = pkg.KillID
	}

	occurredAt, err := time.Parse(time.RFC3339, km.KillmailTime)
	if err != nil {
		return killmodels.Event{}, &InvalidTimestamp{Raw: km.KillmailTime}
	}

	var charIDs, corpIDs, allianceIDs, shipTypeIDs []int64
	seen := make(map[int64]struct{}, len(km.Attackers))
	for _, a := range km.Attackers {
		if a.CharacterID == nil {
			continue
		}
		id := *a.CharacterID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		charIDs = append(charIDs, id)
		corpIDs = append(corpIDs, deref(a.CorporationID))
		allianceIDs = append(allianceIDs, deref(a.AllianceID))
		shipTypeIDs = append(shipTypeIDs, deref(a.ShipTypeID))
	}

	event := killmodels.Event{
		EventID:                 eventID,
		SystemID:                km.SolarSystemID,
		OccurredAt:              occurredAt,
		VictimCharacterID:       km.Victim.CharacterID,
		VictimCorporationID:     km.Victim.CorporationID,
		VictimAllianceID:        km.Victim.AllianceID,
		VictimShipTypeID:        km.Victim.ShipTypeID,
		AttackerCharacterIDs:    charIDs,
		AttackerCorporationIDs:  corpIDs,
		AttackerAllianceIDs:     allianceIDs,
		AttackerShipTypeIDs:     shipTypeIDs,
		ISKValue:                iskValue(pkg.ZKB.TotalValue),
		SourceURL:               sourceURL(pkg),
		FetchedAt:               time.Now().UTC(),
	}

	return event, nil
}

func deref(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func iskValue(totalValue float64) *int64 {
	if totalValue == 0 {
		return nil
	}
	rounded := int64(math.RoundToEven(totalValue))
	return &rounded
}

func sourceURL(pkg *redisQPackage) string {
	if pkg.ZKB.Href != "" {
		return pkg.ZKB.Href
	}
	return fmt.Sprintf("https://zkillboard.com/kill/%d/", pkg.KillID)
}
