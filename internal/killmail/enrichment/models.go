// Package enrichment implements C2: eventual, best-effort out-of-band
// detail fetch per killmail, orthogonal to clustering. Grounded on
// internal/zkillboard/services/rate_limiter.go for the throttle, and on
// internal/killmails/services/service.go for the ESI-fallback-on-miss
// shape.
package enrichment

import "time"

const Collection = "killmail_enrichments"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Record is the persisted KillmailEnrichment side-table row, per spec.md
// §3. PK is KillmailID.
type Record struct {
	KillmailID int64          `bson:"killmail_id"`
	Hash       string         `bson:"hash"`
	Status     Status         `bson:"status"`
	Payload    map[string]any `bson:"payload,omitempty"`
	Error      string         `bson:"error,omitempty"`
	FetchedAt  *time.Time     `bson:"fetched_at,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

// CanTransitionTo reports whether the state machine permits moving from r's
// current status to next: pending -> processing -> {succeeded, failed};
// failed -> processing (retry). No other transitions.
func (r Record) CanTransitionTo(next Status) bool {
	switch r.Status {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusSucceeded || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing
	default:
		return false
	}
}
