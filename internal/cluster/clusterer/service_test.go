package clusterer

import (
	"math/big"
	"testing"
	"time"

	"github.com/battlescope/battlescope/internal/battle/store"
	"github.com/battlescope/battlescope/internal/cluster/engine"

	"github.com/stretchr/testify/assert"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr(v int64) *int64 { return &v }

func TestNearestCandidate_PicksClosestEndTime(t *testing.T) {
	candidates := []store.Battle{
		{ID: "far", StartTime: baseTime, EndTime: baseTime.Add(5 * time.Minute)},
		{ID: "near", StartTime: baseTime.Add(20 * time.Minute), EndTime: baseTime.Add(25 * time.Minute)},
	}

	occurredAt := baseTime.Add(27 * time.Minute)
	best, ok := nearestCandidate(candidates, occurredAt, 30*time.Minute)

	assert.True(t, ok)
	assert.Equal(t, "near", best.ID)
}

func TestNearestCandidate_RejectsSpanExceedingWindow(t *testing.T) {
	candidates := []store.Battle{
		{ID: "too-wide", StartTime: baseTime, EndTime: baseTime.Add(5 * time.Minute)},
	}

	// Combined span with this occurredAt would be 40m, exceeding a 30m window.
	occurredAt := baseTime.Add(40 * time.Minute)
	_, ok := nearestCandidate(candidates, occurredAt, 30*time.Minute)

	assert.False(t, ok)
}

func TestNearestCandidate_NoCandidates(t *testing.T) {
	_, ok := nearestCandidate(nil, baseTime, 30*time.Minute)
	assert.False(t, ok)
}

func TestParticipantsFromEvent_VictimAndAttackers(t *testing.T) {
	event := engine.Event{
		KillmailID: 1,
		OccurredAt: baseTime,
		Victim:     engine.Actor{CharacterID: ptr(100), AllianceID: ptr(1), ShipTypeID: ptr(600)},
		Attackers: []engine.Actor{
			{CharacterID: ptr(200), AllianceID: ptr(2), ShipTypeID: ptr(700)},
			{CharacterID: ptr(50), AllianceID: ptr(2), ShipTypeID: ptr(700)},
		},
		ISKValue: big.NewInt(1),
	}

	participants := participantsFromEvent(event)

	if assert.Len(t, participants, 3) {
		// sorted by characterID ascending
		assert.Equal(t, int64(50), participants[0].CharacterID)
		assert.Equal(t, int64(100), participants[1].CharacterID)
		assert.True(t, participants[1].IsVictim)
		assert.Equal(t, int64(200), participants[2].CharacterID)
		assert.False(t, participants[2].IsVictim)
	}
}

func TestParticipantsFromEvent_SkipsNullCharacterIDs(t *testing.T) {
	event := engine.Event{
		Victim:    engine.Actor{CharacterID: nil},
		Attackers: []engine.Actor{{CharacterID: nil}, {CharacterID: ptr(7)}},
	}

	participants := participantsFromEvent(event)
	assert.Len(t, participants, 1)
	assert.Equal(t, int64(7), participants[0].CharacterID)
}

func TestParticipantEntityIDs(t *testing.T) {
	participants := []engine.Participant{
		{AllianceID: ptr(1), CorpID: ptr(10)},
		{AllianceID: ptr(2)},
		{CorpID: ptr(20)},
	}

	allianceIDs, corpIDs := participantEntityIDs(participants)
	assert.ElementsMatch(t, []int64{1, 2}, allianceIDs)
	assert.ElementsMatch(t, []int64{10, 20}, corpIDs)
}
