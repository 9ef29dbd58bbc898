// Package models holds the Event and Enrichment data types shared by
// ingestion, enrichment and clustering.
package models

import "time"

// Enrichment states. A row is created pending on event insert and only
// ever advances forward except for failed_transient -> pending retries.
const (
	EnrichmentPending         = "pending"
	EnrichmentSucceeded       = "succeeded"
	EnrichmentFailedTransient = "failed_transient"
	EnrichmentFailedPermanent = "failed_permanent"
)

// Event is a single combat-kill record ingested from the upstream feed.
// Immutable once ingested except for processed_at/battle_id, which the
// clusterer owns.
type Event struct {
	EventID       int64
	SystemID      int64
	OccurredAt    time.Time
	SpaceClass    string
	SecurityClass string

	VictimCharacterID   *int64
	VictimCorporationID *int64
	VictimAllianceID    *int64
	VictimShipTypeID    *int64

	AttackerCharacterIDs   []int64
	AttackerCorporationIDs []int64
	AttackerAllianceIDs    []int64
	AttackerShipTypeIDs    []int64

	ISKValue   *int64
	SourceURL  string
	FetchedAt  time.Time
	ProcessedAt *time.Time
	BattleID    *string // UUID string; nil until attached or marked ignored
}

// ParticipantCount is the count used by the ruleset's min_pilots predicate:
// 1 if there is a victim character, plus the number of attacker characters,
// floored at 1 (an empty attacker list still counts the victim).
func (e Event) ParticipantCount() int {
	count := 0
	if e.VictimCharacterID != nil {
		count++
	}
	count += len(e.AttackerCharacterIDs)
	if count < 1 {
		count = 1
	}
	return count
}

// Enrichment is one-to-one with an Event and tracks the upstream full-detail
// fetch state machine (see internal/enrichment).
type Enrichment struct {
	EventID   int64
	Status    string
	Payload   []byte // opaque structured payload, stored as JSON
	Error     *string
	FetchedAt time.Time
	UpdatedAt time.Time
}
