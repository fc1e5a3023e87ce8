package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusSucceeded, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusSucceeded, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusFailed, StatusProcessing, true},
		{StatusFailed, StatusSucceeded, false},
		{StatusSucceeded, StatusProcessing, false},
	}

	for _, tc := range cases {
		record := Record{Status: tc.from}
		assert.Equal(t, tc.want, record.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
