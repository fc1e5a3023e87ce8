package store

import (
	"math/big"

	"github.com/battlescope/battlescope/internal/cluster/engine"
)

// ToEngineEvent projects a persisted Event into the clustering engine's
// input shape. iskValueStr that fails to parse is treated as zero, per
// spec.md §4.3's tolerant failure model.
func (e Event) ToEngineEvent() engine.Event {
	isk, ok := new(big.Int).SetString(e.IskValueStr, 10)
	if !ok || isk.Sign() < 0 {
		isk = big.NewInt(0)
	}

	attackers := make([]engine.Actor, len(e.AttackerCharacterIDs))
	for i := range attackers {
		attackers[i] = engine.Actor{
			CharacterID: at(e.AttackerCharacterIDs, i),
			CorpID:      at(e.AttackerCorpIDs, i),
			AllianceID:  at(e.AttackerAllianceIDs, i),
			ShipTypeID:  at(e.AttackerShipTypeIDs, i),
		}
	}

	return engine.Event{
		KillmailID: e.KillmailID,
		SystemID:   e.SystemID,
		OccurredAt: e.OccurredAt,
		Victim: engine.Actor{
			CharacterID: e.VictimCharacterID,
			CorpID:      e.VictimCorpID,
			AllianceID:  e.VictimAllianceID,
			ShipTypeID:  e.VictimShipTypeID,
		},
		Attackers: attackers,
		ISKValue:  isk,
	}
}

// at returns slice[i] if present, nil otherwise — guards against
// attacker sub-arrays of mismatched length from malformed upstream data.
func at(slice []*int64, i int) *int64 {
	if i < 0 || i >= len(slice) {
		return nil
	}
	return slice[i]
}
