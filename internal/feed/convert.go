package feed

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/battlescope/battlescope/internal/cluster/engine"
	"github.com/battlescope/battlescope/internal/killmail/store"
)

// ToStoreEvent converts one feed package into the killmail store's
// persisted Event shape, parsing the embedded ESI-shaped killmail body
// and deriving zkbUrl/iskValueStr. ZKillboard reports ISK as a float;
// it is rounded to the nearest whole ISK and stored as a decimal string,
// since spec.md §9 only requires arbitrary *persisted* precision, not
// sub-ISK fractions from an upstream that never reports them.
func (p *Package) ToStoreEvent(fetchedAt time.Time) (*store.Event, error) {
	var killmail Killmail
	if err := json.Unmarshal(p.Killmail, &killmail); err != nil {
		return nil, fmt.Errorf("decode killmail body: %w", err)
	}

	event := &store.Event{
		KillmailID:        killmail.KillmailID,
		SystemID:          killmail.SolarSystemID,
		OccurredAt:        killmail.KillmailTime,
		FetchedAt:         fetchedAt,
		VictimAllianceID:  killmail.Victim.AllianceID,
		VictimCorpID:      killmail.Victim.CorporationID,
		VictimCharacterID: killmail.Victim.CharacterID,
		VictimShipTypeID:  killmail.Victim.ShipTypeID,
		IskValueStr:       iskString(p.ZKB.TotalValue),
		ZkbURL:            p.ZKB.Href,
		Hash:              p.ZKB.Hash,
	}

	for _, a := range killmail.Attackers {
		event.AttackerAllianceIDs = append(event.AttackerAllianceIDs, a.AllianceID)
		event.AttackerCorpIDs = append(event.AttackerCorpIDs, a.CorporationID)
		event.AttackerCharacterIDs = append(event.AttackerCharacterIDs, a.CharacterID)
		event.AttackerShipTypeIDs = append(event.AttackerShipTypeIDs, a.ShipTypeID)
	}

	return event, nil
}

func iskString(value float64) string {
	if value < 0 {
		value = 0
	}
	return new(big.Float).SetFloat64(value).Text('f', 0)
}

// engineEventFor is used by tests asserting that a fed package round-trips
// into a valid clustering engine input.
func engineEventFor(p *Package, fetchedAt time.Time) (engine.Event, error) {
	event, err := p.ToStoreEvent(fetchedAt)
	if err != nil {
		return engine.Event{}, err
	}
	return event.ToEngineEvent(), nil
}
