package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncateTimestamp_Hour(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 37, 12, 0, time.UTC)
	truncated := TruncateTimestamp(ts, PeriodHour)
	assert.Equal(t, time.Date(2026, 7, 29, 14, 0, 0, 0, time.UTC), truncated)
}

func TestTruncateTimestamp_Day(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 37, 12, 0, time.UTC)
	truncated := TruncateTimestamp(ts, PeriodDay)
	assert.Equal(t, time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC), truncated)
}

func TestTruncateTimestamp_Month(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 37, 12, 0, time.UTC)
	truncated := TruncateTimestamp(ts, PeriodMonth)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), truncated)
}

func TestTruncateTimestamp_UnknownPeriodIsIdentity(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 37, 12, 0, time.UTC)
	assert.Equal(t, ts, TruncateTimestamp(ts, "fortnight"))
}
