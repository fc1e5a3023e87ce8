// Package charstats tracks, per character, the last hull flown in each
// notable ship category (force recon, HIC, dreadnought, carrier, and so
// on), derived from committed battle participant rows. Grounded on
// internal/killmails/services/char_stats_service.go and
// char_stats_repository.go, generalized from zkillboard's raw killmail
// model to BattleScope's BattleParticipant rows (spec.md §10's
// supplemented feature note).
package charstats

import "time"

const CollectionName = "character_ship_stats"

// Stats is one character's notable-ship rollup. Category names are the
// keys of NotableShips; each value is the ship type id most recently
// flown by this character in that category.
type Stats struct {
	CharacterID  int64            `bson:"character_id"`
	NotableShips map[string]int64 `bson:"notable_ships"`
	LastUpdated  time.Time        `bson:"last_updated"`
}
