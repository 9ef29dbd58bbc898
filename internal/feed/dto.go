package feed

import (
	"strconv"
	"time"

	killmodels "skirmish/internal/killmail/models"
	"skirmish/internal/nameenricher"
)

// Query carries the feed's shared request parameters for both recent and
// stream, matching spec §4.8's `recent(query)`/`stream(query)` inputs.
type Query struct {
	Limit           int
	SpaceClasses    []string
	SecurityClasses []string
	TrackedOnly     bool
}

// DefaultLimit mirrors the teacher's GetRecentKillmailsInput default.
const DefaultLimit = 25

// ID is a numeric entity identifier that marshals as a decimal string per
// spec §6 ("they exceed the safe integer range of some clients"). Every
// id-shaped field the feed exposes over the wire uses this type rather
// than a bare int64.
type ID int64

func (id ID) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatInt(int64(id), 10)), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*id = ID(v)
	return nil
}

// KillItem is one feed entry. Shaped like the teacher's dto.KillmailSummary
// (victim-level names attached, attacker list kept as bare ids plus a
// count) rather than fully naming every attacker, which keeps one
// resolve_names call per batch cheap regardless of attacker fan-out.
type KillItem struct {
	EventID       ID        `json:"event_id"`
	SystemID      ID        `json:"system_id"`
	SystemName    string    `json:"system_name,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	SpaceClass    string    `json:"space_class"`
	SecurityClass string    `json:"security_class"`

	VictimCharacterID   *ID    `json:"victim_character_id,omitempty"`
	VictimCharacterName string `json:"victim_character_name,omitempty"`
	VictimCorporationID *ID    `json:"victim_corporation_id,omitempty"`
	VictimAllianceID    *ID    `json:"victim_alliance_id,omitempty"`
	VictimAllianceName  string `json:"victim_alliance_name,omitempty"`

	AttackerCount       int    `json:"attacker_count"`
	AttackerAllianceIDs []ID   `json:"attacker_alliance_ids,omitempty"`

	ISKValue *int64  `json:"isk_value,omitempty"`
	BattleID *string `json:"battle_id,omitempty"`
}

// RecentResponse is the body of GET /killmails/recent.
type RecentResponse struct {
	Items []KillItem `json:"items"`
	Count int        `json:"count"`
}

func idPtr(v *int64) *ID {
	if v == nil {
		return nil
	}
	id := ID(*v)
	return &id
}

func idSlice(vs []int64) []ID {
	if len(vs) == 0 {
		return nil
	}
	out := make([]ID, len(vs))
	for i, v := range vs {
		out[i] = ID(v)
	}
	return out
}

// buildItem projects one event plus its resolved names into the outgoing
// shape. names may be nil (e.g. the resolver failed open) — fields that
// depend on it are simply left blank rather than failing the request.
func buildItem(e killmodels.Event, names map[int64]nameenricher.Entity) KillItem {
	item := KillItem{
		EventID:             ID(e.EventID),
		SystemID:            ID(e.SystemID),
		OccurredAt:          e.OccurredAt,
		SpaceClass:          e.SpaceClass,
		SecurityClass:       e.SecurityClass,
		VictimCharacterID:   idPtr(e.VictimCharacterID),
		VictimCorporationID: idPtr(e.VictimCorporationID),
		VictimAllianceID:    idPtr(e.VictimAllianceID),
		AttackerCount:       len(e.AttackerCharacterIDs),
		AttackerAllianceIDs: idSlice(e.AttackerAllianceIDs),
		ISKValue:            e.ISKValue,
		BattleID:            e.BattleID,
	}

	ent, ok := names[e.EventID]
	if !ok {
		return item
	}
	item.SystemName = ent.System.Name
	if ent.VictimCharacter != nil {
		item.VictimCharacterName = ent.VictimCharacter.Name
	}
	if ent.VictimAlliance != nil {
		item.VictimAllianceName = ent.VictimAlliance.Name
	}
	return item
}
