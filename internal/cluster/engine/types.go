// Package engine implements the pure, deterministic killmail clustering
// algorithm: a finite batch of killmail events in, a set of battle plans
// plus an ignored list out. It performs no I/O and holds no state across
// calls.
package engine

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Actor identifies one side of a killmail: the victim, or one attacker.
type Actor struct {
	CharacterID *int64
	CorpID      *int64
	AllianceID  *int64
	ShipTypeID  *int64
}

// allianceID returns the actor's alliance id, or zero if none.
func (a Actor) allianceID() (int64, bool) {
	if a.AllianceID == nil {
		return 0, false
	}
	return *a.AllianceID, true
}

// Event is the clustering engine's view of a KillmailEvent: everything
// needed to decide cluster membership and compute battle aggregates.
type Event struct {
	KillmailID int64
	SystemID   int64
	OccurredAt time.Time
	Victim     Actor
	Attackers  []Actor
	ISKValue   *big.Int
}

// iskOrZero treats a nil or negative ISK value as zero, per spec.md §4.3's
// failure model ("invalid inputs are tolerated by treating them as zero").
func (e Event) iskOrZero() *big.Int {
	if e.ISKValue == nil || e.ISKValue.Sign() < 0 {
		return big.NewInt(0)
	}
	return e.ISKValue
}

// allianceSet returns every non-null alliance id referenced by this event
// (victim and all attackers).
func (e Event) allianceSet() map[int64]struct{} {
	set := make(map[int64]struct{})
	if id, ok := e.Victim.allianceID(); ok {
		set[id] = struct{}{}
	}
	for _, a := range e.Attackers {
		if id, ok := a.allianceID(); ok {
			set[id] = struct{}{}
		}
	}
	return set
}

// Params parameterises the clustering algorithm: the span a battle may
// cover, the maximum quiet gap bridged without alliance correlation, and
// the minimum cluster size to survive.
type Params struct {
	WindowMinutes int
	GapMaxMinutes int
	MinKills      int
}

// Classifier derives the coarse/fine space classification for a system,
// consulted purely by system id so the engine stays a deterministic
// function of its inputs. A nil Classifier falls back to DefaultClassify.
type Classifier interface {
	Classify(systemID int64) (spaceType string, securityType string)
}

// Participant is one accumulated actor row within a surviving battle plan.
type Participant struct {
	CharacterID int64
	CorpID      *int64
	AllianceID  *int64
	ShipTypeID  *int64
	IsVictim    bool

	lastSeen time.Time
}

// LastSeen returns the occurredAt of the most recent killmail that
// contributed this participant's current corp/alliance/ship snapshot.
func (p Participant) LastSeen() time.Time { return p.lastSeen }

// BattlePlan is one surviving cluster, ready to be persisted as a Battle.
type BattlePlan struct {
	ID                uuid.UUID
	MemberKillmailIDs []int64
	StartTime         time.Time
	EndTime           time.Time
	TotalKills        int
	TotalISKDestroyed *big.Int
	SystemID          int64
	SpaceType         string
	SecurityType      string
	ZkillRelatedURL   string
	Participants      []Participant
}

// Result is the engine's output for one Cluster call.
type Result struct {
	Battles            []BattlePlan
	IgnoredKillmailIDs []int64
}
