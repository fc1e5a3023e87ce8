// Package ruleset implements the process-wide Ruleset singleton per
// spec.md §3: the operator-configurable acceptance filter the clusterer
// checks before persisting a new battle. Modelled as an immutable value
// snapshot published atomically on update and re-read once per clusterer
// batch, per spec.md §9's "never read mid-batch" guidance.
package ruleset

import "time"

const Collection = "rulesets"

// SingletonID is the fixed document id the ruleset lives at; there is
// exactly one active Ruleset per process, per spec.md §3.
const SingletonID = "active"

// Ruleset is the persisted acceptance filter, per spec.md §3.
type Ruleset struct {
	ID                  string  `bson:"_id"`
	MinPilots           int     `bson:"min_pilots"`
	TrackedAllianceIDs  []int64 `bson:"tracked_alliance_ids,omitempty"`
	TrackedCorpIDs      []int64 `bson:"tracked_corp_ids,omitempty"`
	TrackedSystemIDs    []int64 `bson:"tracked_system_ids,omitempty"`
	TrackedSecurityType []string `bson:"tracked_security_types,omitempty"`
	IgnoreUnlisted      bool    `bson:"ignore_unlisted"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Default returns the bootstrap Ruleset, matching SPEC_FULL.md §11's
// documented defaults: minPilots=2, ignoreUnlisted=false (track
// everything until an operator narrows scope).
func Default() Ruleset {
	now := time.Now().UTC()
	return Ruleset{
		ID:             SingletonID,
		MinPilots:      2,
		IgnoreUnlisted: false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Patch carries the subset of Ruleset fields an admin update may change.
// Nil fields are left untouched.
type Patch struct {
	MinPilots           *int
	TrackedAllianceIDs  []int64
	TrackedCorpIDs      []int64
	TrackedSystemIDs    []int64
	TrackedSecurityType []string
	IgnoreUnlisted      *bool
}

// Apply returns a copy of r with patch's non-nil fields applied.
func (r Ruleset) Apply(patch Patch) Ruleset {
	next := r
	if patch.MinPilots != nil {
		next.MinPilots = *patch.MinPilots
	}
	if patch.TrackedAllianceIDs != nil {
		next.TrackedAllianceIDs = patch.TrackedAllianceIDs
	}
	if patch.TrackedCorpIDs != nil {
		next.TrackedCorpIDs = patch.TrackedCorpIDs
	}
	if patch.TrackedSystemIDs != nil {
		next.TrackedSystemIDs = patch.TrackedSystemIDs
	}
	if patch.TrackedSecurityType != nil {
		next.TrackedSecurityType = patch.TrackedSecurityType
	}
	if patch.IgnoreUnlisted != nil {
		next.IgnoreUnlisted = *patch.IgnoreUnlisted
	}
	return next
}

// Candidate is the subset of a battle plan's facts the ruleset filter
// needs; internal/cluster/clusterer builds one per surviving cluster
// without this package importing the clustering engine, keeping ruleset
// free of a dependency on the clustering core.
type Candidate struct {
	TotalKills             int
	SystemID               int64
	SecurityType           string
	ParticipantAllianceIDs []int64
	ParticipantCorpIDs     []int64
}

// Accepts reports whether a candidate battle passes this ruleset's
// filter, per spec.md §4.4 step 5.
func (r Ruleset) Accepts(c Candidate) bool {
	if c.TotalKills < r.MinPilots {
		return false
	}
	if !r.IgnoreUnlisted {
		return true
	}

	if containsInt64(r.TrackedSystemIDs, c.SystemID) {
		return true
	}
	if containsString(r.TrackedSecurityType, c.SecurityType) {
		return true
	}
	for _, id := range c.ParticipantAllianceIDs {
		if containsInt64(r.TrackedAllianceIDs, id) {
			return true
		}
	}
	for _, id := range c.ParticipantCorpIDs {
		if containsInt64(r.TrackedCorpIDs, id) {
			return true
		}
	}
	return false
}

func containsInt64(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
