// Package timeseries maintains hourly/daily/monthly kill-count and
// ISK-destroyed rollups by system, alliance, corporation, and ship
// type, derived from committed battles. Grounded almost file-for-file
// on internal/zkillboard/services/aggregator.go's period-truncation and
// per-dimension $inc-upsert structure, generalized from one killmail at
// a time to one battle's worth of participants at a time (spec.md §10's
// supplemented feature note: a recomputable read-side projection, never
// gating a write-path invariant).
package timeseries

import "time"

const CollectionName = "battle_timeseries"

const (
	PeriodHour  = "hour"
	PeriodDay   = "day"
	PeriodMonth = "month"
)

var Periods = []string{PeriodHour, PeriodDay, PeriodMonth}

// Entry is one (period, timestamp, dimension) rollup bucket. Exactly one
// of SystemID/AllianceID/CorporationID/ShipTypeID is set per document;
// which one is implied by which field is non-zero, mirroring the
// teacher's single flexible collection rather than four separate ones.
type Entry struct {
	Period        string    `bson:"period"`
	Timestamp     time.Time `bson:"timestamp"`
	SystemID      int64     `bson:"system_id,omitempty"`
	AllianceID    int64     `bson:"alliance_id,omitempty"`
	CorporationID int64     `bson:"corporation_id,omitempty"`
	ShipTypeID    int64     `bson:"ship_type_id,omitempty"`
	KillCount     int       `bson:"kill_count"`
	Losses        int       `bson:"losses"`
	TotalISK      float64   `bson:"total_isk_destroyed"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

// TruncateTimestamp truncates t to the start of its enclosing period.
func TruncateTimestamp(t time.Time, period string) time.Time {
	switch period {
	case PeriodHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case PeriodDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}
