package store

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestToEngineEvent_ParsesISKAndAlignsAttackers(t *testing.T) {
	event := Event{
		KillmailID:           1,
		SystemID:             30000142,
		OccurredAt:            time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		VictimCharacterID:    int64p(100),
		VictimAllianceID:     int64p(10),
		IskValueStr:          "123456789012345678901234567890",
		AttackerCharacterIDs: []*int64{int64p(200), int64p(201)},
		AttackerAllianceIDs:  []*int64{int64p(20), nil},
	}

	ev := event.ToEngineEvent()

	want, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	assert.Equal(t, want, ev.ISKValue)

	require.Len(t, ev.Attackers, 2)
	assert.Equal(t, int64(200), *ev.Attackers[0].CharacterID)
	assert.Equal(t, int64(20), *ev.Attackers[0].AllianceID)
	assert.Equal(t, int64(201), *ev.Attackers[1].CharacterID)
	assert.Nil(t, ev.Attackers[1].AllianceID)
	assert.Nil(t, ev.Attackers[1].CorpID)
}

func TestToEngineEvent_InvalidISKTreatedAsZero(t *testing.T) {
	event := Event{KillmailID: 1, IskValueStr: "not-a-number"}
	ev := event.ToEngineEvent()
	assert.Equal(t, big.NewInt(0), ev.ISKValue)
}

func TestToEngineEvent_NegativeISKTreatedAsZero(t *testing.T) {
	event := Event{KillmailID: 1, IskValueStr: "-5"}
	ev := event.ToEngineEvent()
	assert.Equal(t, big.NewInt(0), ev.ISKValue)
}
