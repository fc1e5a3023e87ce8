// Package feed implements the inbound killmail feed consumer: a
// long-poll against a RedisQ-shaped endpoint, conversion of each package
// into a killmail store event, and hand-off to a Sink (deduplication and
// publication happen in the Sink, internal/killmail/ingest).
// Grounded on internal/zkillboard/services/redisq_consumer.go and
// internal/zkillboard/dto/redisq.go.
package feed

import (
	"encoding/json"
	"time"
)

// Envelope is the `{package: null | {...}}` wire shape a RedisQ-style
// endpoint returns on every poll.
type Envelope struct {
	Package *Package `json:"package"`
}

// Package is one killmail delivery: the raw ESI-shaped killmail plus
// zkillboard metadata.
type Package struct {
	KillID   int64           `json:"killID"`
	Killmail json.RawMessage `json:"killmail"`
	ZKB      Metadata        `json:"zkb"`
}

// Metadata is the zkb-specific sidecar data accompanying a killmail.
type Metadata struct {
	LocationID     int64   `json:"locationID"`
	Hash           string  `json:"hash"`
	DestroyedValue float64 `json:"destroyedValue"`
	DroppedValue   float64 `json:"droppedValue"`
	TotalValue     float64 `json:"totalValue"`
	Points         int     `json:"points"`
	NPC            bool    `json:"npc"`
	Solo           bool    `json:"solo"`
	Href           string  `json:"href"`
}

// Killmail is the ESI-shaped payload embedded in Package.Killmail.
type Killmail struct {
	KillmailID    int64      `json:"killmail_id"`
	KillmailTime  time.Time  `json:"killmail_time"`
	SolarSystemID int64      `json:"solar_system_id"`
	Victim        Victim     `json:"victim"`
	Attackers     []Attacker `json:"attackers"`
}

type Victim struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID *int64 `json:"corporation_id,omitempty"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	ShipTypeID    *int64 `json:"ship_type_id,omitempty"`
}

type Attacker struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID *int64 `json:"corporation_id,omitempty"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	ShipTypeID    *int64 `json:"ship_type_id,omitempty"`
	FinalBlow     bool   `json:"final_blow"`
}
