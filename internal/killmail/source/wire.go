package source

import "encoding/json"

// redisQResponse is the top-level RedisQ long-poll response. A nil Package
// means no killmail was waiting and the caller should poll again.
// Grounded on the teacher's internal/zkillboard/dto/redisq.go.
type redisQResponse struct {
	Package *redisQPackage `json:"package"`
}

type redisQPackage struct {
	KillID   int64           `json:"killID"`
	Killmail json.RawMessage `json:"killmail"`
	ZKB      zkbData         `json:"zkb"`
}

type zkbData struct {
	LocationID     int64   `json:"locationID"`
	Hash           string  `json:"hash"`
	TotalValue     float64 `json:"totalValue"`
	NPC            bool    `json:"npc"`
	Solo           bool    `json:"solo"`
	Href           string  `json:"href"`
}

type esiKillmail struct {
	KillmailID    int64         `json:"killmail_id"`
	KillmailTime  string        `json:"killmail_time"`
	SolarSystemID int64         `json:"solar_system_id"`
	Victim        esiVictim     `json:"victim"`
	Attackers     []esiAttacker `json:"attackers"`
}

type esiVictim struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID *int64 `json:"corporation_id,omitempty"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	ShipTypeID    *int64 `json:"ship_type_id,omitempty"`
}

type esiAttacker struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID *int64 `json:"corporation_id,omitempty"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	ShipTypeID    *int64 `json:"ship_type_id,omitempty"`
	FinalBlow     bool   `json:"final_blow"`
}
