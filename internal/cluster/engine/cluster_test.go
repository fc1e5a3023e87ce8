package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSystem int64 = 30000142

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func defaultParams() Params {
	return Params{WindowMinutes: 30, GapMaxMinutes: 15, MinKills: 2}
}

func ptr(v int64) *int64 { return &v }

// ev builds a minimal event: a single attacker (from the given alliance)
// killing a victim (from its own alliance), in testSystem at baseTime+offset.
func ev(killmailID int64, offset time.Duration, victimAlliance, attackerAlliance int64) Event {
	return Event{
		KillmailID: killmailID,
		SystemID:   testSystem,
		OccurredAt: baseTime.Add(offset),
		Victim:     Actor{CharacterID: ptr(killmailID * 1000), AllianceID: ptr(victimAlliance), ShipTypeID: ptr(600)},
		Attackers: []Actor{
			{CharacterID: ptr(killmailID*1000 + 1), AllianceID: ptr(attackerAlliance), ShipTypeID: ptr(700)},
		},
		ISKValue: big.NewInt(1_000_000),
	}
}

func byKillmailIDs(plan BattlePlan) []int64 { return plan.MemberKillmailIDs }

func TestCluster_EmptyInput(t *testing.T) {
	result := Cluster(nil, defaultParams(), nil)
	assert.Empty(t, result.Battles)
	assert.Empty(t, result.IgnoredKillmailIDs)
}

func TestCluster_SingleEventBelowMinKills(t *testing.T) {
	events := []Event{ev(1, 0, 1, 2)}
	result := Cluster(events, defaultParams(), nil)
	assert.Empty(t, result.Battles)
	assert.Equal(t, []int64{1}, result.IgnoredKillmailIDs)
}

// Scenario 1: same-system short burst, all same alliances.
func TestCluster_SameSystemShortBurst(t *testing.T) {
	events := []Event{
		ev(1, 0, 1, 2),
		ev(2, 5*time.Minute, 1, 2),
		ev(3, 10*time.Minute, 1, 2),
	}
	result := Cluster(events, defaultParams(), nil)

	require.Len(t, result.Battles, 1)
	assert.Empty(t, result.IgnoredKillmailIDs)

	battle := result.Battles[0]
	assert.Equal(t, []int64{1, 2, 3}, byKillmailIDs(battle))
	assert.True(t, battle.StartTime.Equal(baseTime))
	assert.True(t, battle.EndTime.Equal(baseTime.Add(10*time.Minute)))
	assert.Equal(t, 3, battle.TotalKills)
}

// Scenario 2: different systems never merge.
func TestCluster_DifferentSystemsNeverMerge(t *testing.T) {
	k1 := ev(1, 0, 1, 2)
	k2 := ev(2, 5*time.Minute, 1, 2)
	k2.SystemID = 30000143

	result := Cluster([]Event{k1, k2}, defaultParams(), nil)
	assert.Empty(t, result.Battles)
	assert.ElementsMatch(t, []int64{1, 2}, result.IgnoredKillmailIDs)
}

// Scenario 3: gap exceeded, no alliance overlap between the two sub-bursts.
func TestCluster_GapExceededNoAllianceOverlap(t *testing.T) {
	events := []Event{
		ev(1, 0, 1, 2),
		ev(2, 5*time.Minute, 1, 2),
		ev(3, 25*time.Minute, 3, 4),
		ev(4, 30*time.Minute, 3, 4),
	}
	result := Cluster(events, defaultParams(), nil)

	require.Len(t, result.Battles, 2)
	assert.Empty(t, result.IgnoredKillmailIDs)
	assert.Equal(t, []int64{1, 2}, byKillmailIDs(result.Battles[0]))
	assert.Equal(t, []int64{3, 4}, byKillmailIDs(result.Battles[1]))
}

// Scenario 4: gap exceeded but bridged by an alliance link (gap 20 > 15).
func TestCluster_GapExceededWithAllianceBridge(t *testing.T) {
	k1 := Event{
		KillmailID: 1, SystemID: testSystem, OccurredAt: baseTime,
		Victim:    Actor{CharacterID: ptr(1001), AllianceID: ptr(1)},
		Attackers: []Actor{{CharacterID: ptr(1002), AllianceID: ptr(2)}},
		ISKValue:  big.NewInt(1),
	}
	k2 := Event{
		KillmailID: 2, SystemID: testSystem, OccurredAt: baseTime.Add(20 * time.Minute),
		Victim:    Actor{CharacterID: ptr(2001), AllianceID: ptr(3)},
		Attackers: []Actor{{CharacterID: ptr(2002), AllianceID: ptr(1)}},
		ISKValue:  big.NewInt(1),
	}

	result := Cluster([]Event{k1, k2}, defaultParams(), nil)
	require.Len(t, result.Battles, 1)
	assert.Equal(t, []int64{1, 2}, byKillmailIDs(result.Battles[0]))
}

// Scenario 5: window exceeded outright — no gap/alliance rule can rescue it.
func TestCluster_WindowExceeded(t *testing.T) {
	k1 := Event{
		KillmailID: 1, SystemID: testSystem, OccurredAt: baseTime,
		Victim:   Actor{CharacterID: ptr(1001), AllianceID: ptr(1)},
		ISKValue: big.NewInt(1),
	}
	k2 := Event{
		KillmailID: 2, SystemID: testSystem, OccurredAt: baseTime.Add(35 * time.Minute),
		Attackers: []Actor{{CharacterID: ptr(2002), AllianceID: ptr(1)}},
		ISKValue:  big.NewInt(1),
	}

	result := Cluster([]Event{k1, k2}, defaultParams(), nil)
	assert.Empty(t, result.Battles)
	assert.ElementsMatch(t, []int64{1, 2}, result.IgnoredKillmailIDs)
}

// Boundary: exactly gapMaxMinutes apart clusters; gapMaxMinutes+1 tick does not
// (absent an alliance bridge).
func TestCluster_GapBoundary(t *testing.T) {
	t.Run("exactly at gap boundary clusters", func(t *testing.T) {
		events := []Event{
			ev(1, 0, 1, 2),
			ev(2, 15*time.Minute, 3, 4),
		}
		result := Cluster(events, defaultParams(), nil)
		require.Len(t, result.Battles, 1)
		assert.Equal(t, []int64{1, 2}, byKillmailIDs(result.Battles[0]))
	})

	t.Run("one tick past gap boundary splits", func(t *testing.T) {
		events := []Event{
			ev(1, 0, 1, 2),
			ev(2, 15*time.Minute+time.Second, 3, 4),
		}
		result := Cluster(events, defaultParams(), nil)
		assert.Empty(t, result.Battles)
		assert.ElementsMatch(t, []int64{1, 2}, result.IgnoredKillmailIDs)
	})
}

// Boundary: exactly windowMinutes apart clusters (window admits, the shared
// alliance link stands in for the exceeded gap); one tick past
// never clusters regardless of alliance correlation.
func TestCluster_WindowBoundary(t *testing.T) {
	t.Run("exactly at window boundary clusters", func(t *testing.T) {
		events := []Event{
			ev(1, 0, 1, 2),
			ev(2, 30*time.Minute, 1, 2),
		}
		result := Cluster(events, defaultParams(), nil)
		require.Len(t, result.Battles, 1)
		assert.Equal(t, []int64{1, 2}, byKillmailIDs(result.Battles[0]))
	})

	t.Run("one tick past window boundary never clusters even with alliance link", func(t *testing.T) {
		events := []Event{
			ev(1, 0, 1, 2),
			ev(2, 30*time.Minute+time.Second, 1, 2),
		}
		result := Cluster(events, defaultParams(), nil)
		assert.Empty(t, result.Battles)
		assert.ElementsMatch(t, []int64{1, 2}, result.IgnoredKillmailIDs)
	})
}

// Three-way alliance chain: A-B linked, B-C linked, transitively clustered
// even though A and C never directly share an alliance. Both hops exceed
// gapMaxMinutes, so only the accumulated alliance set (not the gap rule)
// admits each new event; a wider window is used so two >15m gaps still fit.
func TestCluster_ThreeWayAllianceChain(t *testing.T) {
	params := Params{WindowMinutes: 60, GapMaxMinutes: 15, MinKills: 2}

	k1 := Event{
		KillmailID: 1, SystemID: testSystem, OccurredAt: baseTime,
		Victim:    Actor{CharacterID: ptr(1), AllianceID: ptr(10)},
		Attackers: []Actor{{CharacterID: ptr(2), AllianceID: ptr(20)}},
		ISKValue:  big.NewInt(1),
	}
	k2 := Event{
		KillmailID: 2, SystemID: testSystem, OccurredAt: baseTime.Add(20 * time.Minute),
		Victim:    Actor{CharacterID: ptr(3), AllianceID: ptr(20)},
		Attackers: []Actor{{CharacterID: ptr(4), AllianceID: ptr(30)}},
		ISKValue:  big.NewInt(1),
	}
	k3 := Event{
		KillmailID: 3, SystemID: testSystem, OccurredAt: baseTime.Add(40 * time.Minute),
		Victim:    Actor{CharacterID: ptr(5), AllianceID: ptr(30)},
		Attackers: []Actor{{CharacterID: ptr(6), AllianceID: ptr(40)}},
		ISKValue:  big.NewInt(1),
	}

	result := Cluster([]Event{k1, k2, k3}, params, nil)
	require.Len(t, result.Battles, 1)
	assert.Equal(t, []int64{1, 2, 3}, byKillmailIDs(result.Battles[0]))
}

// Multi-alliance attackers: a killmail with several attackers from distinct
// alliances still links on any one of them.
func TestCluster_MultiAllianceAttackers(t *testing.T) {
	k1 := Event{
		KillmailID: 1, SystemID: testSystem, OccurredAt: baseTime,
		Victim: Actor{CharacterID: ptr(1), AllianceID: ptr(10)},
		Attackers: []Actor{
			{CharacterID: ptr(2), AllianceID: ptr(20)},
			{CharacterID: ptr(3), AllianceID: ptr(21)},
			{CharacterID: ptr(4), AllianceID: ptr(22)},
		},
		ISKValue: big.NewInt(1),
	}
	k2 := Event{
		KillmailID: 2, SystemID: testSystem, OccurredAt: baseTime.Add(20 * time.Minute),
		Victim:    Actor{CharacterID: ptr(5), AllianceID: ptr(99)},
		Attackers: []Actor{{CharacterID: ptr(6), AllianceID: ptr(21)}},
		ISKValue:  big.NewInt(1),
	}

	result := Cluster([]Event{k1, k2}, defaultParams(), nil)
	require.Len(t, result.Battles, 1)
	assert.Equal(t, []int64{1, 2}, byKillmailIDs(result.Battles[0]))
}

// cluster(events, params) is permutation-invariant.
func TestCluster_OutOfOrderArrivalIsPermutationInvariant(t *testing.T) {
	inOrder := []Event{
		ev(1, 0, 1, 2),
		ev(2, 5*time.Minute, 1, 2),
		ev(3, 10*time.Minute, 1, 2),
	}
	shuffled := []Event{inOrder[2], inOrder[0], inOrder[1]}

	want := Cluster(inOrder, defaultParams(), nil)
	got := Cluster(shuffled, defaultParams(), nil)

	require.Len(t, got.Battles, 1)
	require.Len(t, want.Battles, 1)
	assert.Equal(t, want.Battles[0].MemberKillmailIDs, got.Battles[0].MemberKillmailIDs)
	assert.Equal(t, want.Battles[0].StartTime, got.Battles[0].StartTime)
	assert.Equal(t, want.Battles[0].EndTime, got.Battles[0].EndTime)
}

// Window-splitting: a long, steadily-ticking engagement splits into
// consecutive windows once the running window from each new seed is
// exceeded by the original seed's window, even though consecutive gaps
// never individually exceed gapMaxMinutes.
func TestCluster_WindowSplittingAcrossLongEngagement(t *testing.T) {
	var events []Event
	for i := int64(0); i < 6; i++ {
		events = append(events, ev(i+1, time.Duration(i)*10*time.Minute, 1, 2))
	}
	// offsets: 0, 10, 20, 30, 40, 50 minutes. Window=30 means kill at +40
	// falls outside the first seed's window (0..30), forcing a new battle
	// seeded at +40; that one then also contains +50.
	result := Cluster(events, defaultParams(), nil)

	require.Len(t, result.Battles, 2)
	assert.Equal(t, []int64{1, 2, 3, 4}, byKillmailIDs(result.Battles[0]))
	assert.Equal(t, []int64{5, 6}, byKillmailIDs(result.Battles[1]))
}

func TestCluster_AggregatesISKAndParticipants(t *testing.T) {
	events := []Event{
		ev(1, 0, 1, 2),
		ev(2, 5*time.Minute, 1, 2),
	}
	result := Cluster(events, defaultParams(), nil)
	require.Len(t, result.Battles, 1)

	battle := result.Battles[0]
	assert.Equal(t, big.NewInt(2_000_000), battle.TotalISKDestroyed)
	// 4 distinct characters across the two killmails: 2 victims, 2 attackers.
	assert.Len(t, battle.Participants, 4)
	assert.NotEmpty(t, battle.ZkillRelatedURL)
}

func TestCluster_RulesetMinKillsFiltersSmallBattles(t *testing.T) {
	params := Params{WindowMinutes: 30, GapMaxMinutes: 15, MinKills: 3}
	events := []Event{
		ev(1, 0, 1, 2),
		ev(2, 5*time.Minute, 1, 2),
	}
	result := Cluster(events, params, nil)
	assert.Empty(t, result.Battles)
	assert.ElementsMatch(t, []int64{1, 2}, result.IgnoredKillmailIDs)
}

func TestDefaultClassify_PochvenRange(t *testing.T) {
	spaceType, securityType := DefaultClassify(30100050)
	assert.Equal(t, "pochven", spaceType)
	assert.Equal(t, "pochven", securityType)
}

func TestDefaultClassify_FallsBackToNullsec(t *testing.T) {
	spaceType, securityType := DefaultClassify(testSystem)
	assert.Equal(t, "nullsec", spaceType)
	assert.Equal(t, "nullsec", securityType)
}
