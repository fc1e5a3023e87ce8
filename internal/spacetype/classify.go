// Package spacetype derives a killmail's coarse and fine space
// classification from its solar system id: the spaceType enum
// (kspace|jspace|pochven) and the securityType enum
// (highsec|lowsec|nullsec|wormhole|pochven), per spec.md §3/§4.3.1.
package spacetype

import "fmt"

const (
	SpaceKnown    = "kspace"
	SpaceWormhole = "jspace"
	SpacePochven  = "pochven"

	SecurityHighsec  = "highsec"
	SecurityLowsec   = "lowsec"
	SecurityNullsec  = "nullsec"
	SecurityWormhole = "wormhole"
	SecurityPochven  = "pochven"
)

// Known-space solar system ids fall in this range; wormhole and Pochven
// systems use distinct, non-overlapping ranges assigned by CCP.
const (
	knownSpaceMin = 30000000
	knownSpaceMax = 30005000
	pochvenMin    = 30100000
	pochvenMax    = 30100100
	wormholeMin   = 31000000
	wormholeMax   = 31002000
)

// SystemLookup resolves a solar system's true security status, when known.
// Tests satisfy it with StaticLookup; internal/battlescope wires no
// lookup (nil), so production uses the numeric-range fallback alone.
type SystemLookup interface {
	SecurityStatus(systemID int64) (securityStatus float64, ok bool)
}

// Classifier derives SpaceType/SecurityType for a system id, consulting an
// injected SystemLookup and falling back to a numeric-range heuristic when
// the system is unknown to it.
type Classifier struct {
	lookup SystemLookup
}

// NewClassifier builds a Classifier backed by the given lookup. A nil
// lookup is valid: the classifier then always falls back to the
// range-only heuristic.
func NewClassifier(lookup SystemLookup) *Classifier {
	return &Classifier{lookup: lookup}
}

// Classify returns (spaceType, securityType) for a system id.
func (c *Classifier) Classify(systemID int64) (spaceType string, securityType string) {
	switch {
	case systemID >= pochvenMin && systemID <= pochvenMax:
		return SpacePochven, SecurityPochven
	case systemID >= wormholeMin && systemID <= wormholeMax:
		return SpaceWormhole, SecurityWormhole
	}

	if c.lookup != nil {
		if status, ok := c.lookup.SecurityStatus(systemID); ok {
			return SpaceKnown, securityFromStatus(status)
		}
	}

	return fallbackClassify(systemID)
}

// securityFromStatus projects a raw ESI/SDE security status into the
// coarse highsec/lowsec/nullsec band, per EVE's own 0.5/0.0 thresholds.
func securityFromStatus(status float64) string {
	switch {
	case status >= 0.45:
		return SecurityHighsec
	case status > 0.0:
		return SecurityLowsec
	default:
		return SecurityNullsec
	}
}

// fallbackClassify is the Open Question decision for systems absent from
// the lookup (spec.md §9): every unresolved id, in range or not, defaults
// to kspace/nullsec, the safest assumption for battle classification (no
// highsec CONCORD or lowsec faction-police inference). Classify must
// always return a value, so there is no error path here.
func fallbackClassify(systemID int64) (string, string) {
	return SpaceKnown, SecurityNullsec
}

// StaticLookup is a fixed systemID -> securityStatus map, for tests and
// small deployments without a wired SDE-backed lookup.
type StaticLookup map[int64]float64

func (s StaticLookup) SecurityStatus(systemID int64) (float64, bool) {
	status, ok := s[systemID]
	return status, ok
}

// String renders a human-readable label, used in log fields.
func String(spaceType, securityType string) string {
	return fmt.Sprintf("%s/%s", spaceType, securityType)
}
