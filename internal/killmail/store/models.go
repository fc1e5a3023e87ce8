// Package store is the killmail event log: durable append, dedup on
// killmailId, and the unprocessed/backfill queries the clusterer drives
// off of. Grounded on internal/killmails/services/repository.go's Mongo
// repository style.
package store

import (
	"time"
)

const (
	EventsCollection = "killmail_events"
)

// Event is the persisted KillmailEvent, per spec.md §3. ISK is stored both
// as a decimal string (arbitrary precision, round-trips through bson
// untouched) and left for callers to parse into *big.Int — mirroring the
// teacher's pattern of keeping a display string alongside a typed field
// for sort/query support (see ZKBMetadata.TotalValue).
type Event struct {
	KillmailID   int64     `bson:"killmail_id"`
	SystemID     int64     `bson:"system_id"`
	SecurityType string    `bson:"security_type"`
	OccurredAt   time.Time `bson:"occurred_at"`
	FetchedAt    time.Time `bson:"fetched_at"`

	VictimAllianceID  *int64 `bson:"victim_alliance_id,omitempty"`
	VictimCorpID      *int64 `bson:"victim_corp_id,omitempty"`
	VictimCharacterID *int64 `bson:"victim_character_id,omitempty"`
	VictimShipTypeID  *int64 `bson:"victim_ship_type_id,omitempty"`

	// Parallel, index-aligned, nil-tolerant arrays — the document-store
	// equivalent of the per-actor attacker tuple spec.md §4.3 step 6
	// draws victimShipTypeId/attackerShipTypeIds from.
	AttackerAllianceIDs  []*int64 `bson:"attacker_alliance_ids,omitempty"`
	AttackerCorpIDs      []*int64 `bson:"attacker_corp_ids,omitempty"`
	AttackerCharacterIDs []*int64 `bson:"attacker_character_ids,omitempty"`
	AttackerShipTypeIDs  []*int64 `bson:"attacker_ship_type_ids,omitempty"`

	IskValueStr string `bson:"isk_value_str"`
	ZkbURL      string `bson:"zkb_url"`
	Hash        string `bson:"hash"`

	ProcessedAt *time.Time `bson:"processed_at,omitempty"`
	BattleID    *string    `bson:"battle_id,omitempty"`
}
