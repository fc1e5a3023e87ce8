// Package store persists Battle, BattleKillmail, and BattleParticipant
// rows (C5's write side), exclusively owned by the clusterer service.
// Grounded on internal/zkillboard/services/repository.go's Mongo
// repository style and SaveZKBMetadata's filter+$set+upsert idiom,
// generalized here into an optimistic updatedAt compare-and-swap guard.
package store

import "time"

const (
	BattlesCollection      = "battles"
	KillmailsCollection    = "battle_killmails"
	ParticipantsCollection = "battle_participants"
)

// Battle is the persisted aggregate, per spec.md §3.
type Battle struct {
	ID                string     `bson:"_id"`
	SystemID          int64      `bson:"system_id"`
	SpaceType         string     `bson:"space_type"`
	SecurityType      string     `bson:"security_type"`
	StartTime         time.Time  `bson:"start_time"`
	EndTime           time.Time  `bson:"end_time"`
	TotalKills        int        `bson:"total_kills"`
	TotalIskDestroyed string     `bson:"total_isk_destroyed"`
	ZkillRelatedURL   string     `bson:"zkill_related_url"`
	DeletedAt         *time.Time `bson:"deleted_at,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

// Killmail is a BattleKillmail membership row. PK (battle_id, killmail_id).
type Killmail struct {
	BattleID   string `bson:"battle_id"`
	KillmailID int64  `bson:"killmail_id"`
}

// Participant is a BattleParticipant derived-actor row. PK
// (battle_id, character_id). OccurredAt tracks the occurredAt of the
// killmail that most recently supplied CorpID/AllianceID/ShipTypeID, so a
// later retroactive attribution of an older (late-arriving) killmail can
// never overwrite a newer snapshot, per spec.md §3's "most recent
// occurrence by occurredAt" invariant.
type Participant struct {
	BattleID    string    `bson:"battle_id"`
	CharacterID int64     `bson:"character_id"`
	CorpID      *int64    `bson:"corp_id,omitempty"`
	AllianceID  *int64    `bson:"alliance_id,omitempty"`
	ShipTypeID  *int64    `bson:"ship_type_id,omitempty"`
	SideID      *int      `bson:"side_id,omitempty"`
	IsVictim    bool      `bson:"is_victim"`
	OccurredAt  time.Time `bson:"occurred_at"`
}
