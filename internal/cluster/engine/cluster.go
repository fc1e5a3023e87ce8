package engine

import (
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Cluster partitions events into battle plans plus an ignored set. It is a
// pure function of its inputs: events are canonically sorted before
// processing, so arrival order never affects the result. A nil classifier
// falls back to DefaultClassify.
func Cluster(events []Event, params Params, classifier Classifier) Result {
	if classifier == nil {
		classifier = defaultClassifierInstance{}
	}

	bySystem := make(map[int64][]Event)
	for _, e := range events {
		bySystem[e.SystemID] = append(bySystem[e.SystemID], e)
	}

	systemIDs := make([]int64, 0, len(bySystem))
	for id := range bySystem {
		systemIDs = append(systemIDs, id)
	}
	sort.Slice(systemIDs, func(i, j int) bool { return systemIDs[i] < systemIDs[j] })

	result := Result{}
	windowSpan := time.Duration(params.WindowMinutes) * time.Minute
	gapSpan := time.Duration(params.GapMaxMinutes) * time.Minute

	for _, systemID := range systemIDs {
		systemEvents := bySystem[systemID]
		sortEvents(systemEvents)

		clusters := admitClusters(systemEvents, windowSpan, gapSpan)

		for _, cluster := range clusters {
			if len(cluster) < params.MinKills {
				for _, e := range cluster {
					result.IgnoredKillmailIDs = append(result.IgnoredKillmailIDs, e.KillmailID)
				}
				continue
			}
			result.Battles = append(result.Battles, buildPlan(systemID, cluster, classifier))
		}
	}

	return result
}

// sortEvents orders events by occurredAt ascending, tied broken by
// killmailId ascending, per spec.md §4.3 step 2.
func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		return events[i].KillmailID < events[j].KillmailID
	})
}

// admitClusters runs the sequential admission pass over a single system's
// canonically-sorted events, returning each closed cluster in order.
func admitClusters(events []Event, windowSpan, gapSpan time.Duration) [][]Event {
	if len(events) == 0 {
		return nil
	}

	var clusters [][]Event
	current := []Event{events[0]}
	alliances := events[0].allianceSet()

	for _, e := range events[1:] {
		first := current[0]
		last := current[len(current)-1]

		windowOk := e.OccurredAt.Sub(first.OccurredAt) <= windowSpan
		gapOk := e.OccurredAt.Sub(last.OccurredAt) <= gapSpan
		allianceLink := intersects(alliances, e.allianceSet())

		if windowOk && (gapOk || allianceLink) {
			current = append(current, e)
			for id := range e.allianceSet() {
				alliances[id] = struct{}{}
			}
			continue
		}

		clusters = append(clusters, current)
		current = []Event{e}
		alliances = e.allianceSet()
	}
	clusters = append(clusters, current)

	return clusters
}

func intersects(a, b map[int64]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for id := range small {
		if _, ok := big[id]; ok {
			return true
		}
	}
	return false
}

// buildPlan computes aggregates, participants, and derived classification
// for one surviving cluster, per spec.md §4.3 step 6.
func buildPlan(systemID int64, members []Event, classifier Classifier) BattlePlan {
	plan := BattlePlan{
		ID:                uuid.New(),
		SystemID:          systemID,
		StartTime:         members[0].OccurredAt,
		EndTime:           members[0].OccurredAt,
		TotalKills:        len(members),
		TotalISKDestroyed: big.NewInt(0),
	}

	participants := make(map[int64]*Participant)
	var order []int64

	for _, e := range members {
		plan.MemberKillmailIDs = append(plan.MemberKillmailIDs, e.KillmailID)

		if e.OccurredAt.Before(plan.StartTime) {
			plan.StartTime = e.OccurredAt
		}
		if e.OccurredAt.After(plan.EndTime) {
			plan.EndTime = e.OccurredAt
		}
		plan.TotalISKDestroyed.Add(plan.TotalISKDestroyed, e.iskOrZero())

		if e.Victim.CharacterID != nil {
			upsertParticipant(participants, &order, *e.Victim.CharacterID, e.Victim, true, e.OccurredAt)
		}
		for _, a := range e.Attackers {
			if a.CharacterID != nil {
				upsertParticipant(participants, &order, *a.CharacterID, a, false, e.OccurredAt)
			}
		}
	}

	for _, id := range order {
		plan.Participants = append(plan.Participants, *participants[id])
	}

	plan.SpaceType, plan.SecurityType = classifier.Classify(systemID)
	plan.ZkillRelatedURL = ZkillRelatedURL(systemID, plan.StartTime)

	return plan
}

func upsertParticipant(participants map[int64]*Participant, order *[]int64, characterID int64, actor Actor, isVictim bool, occurredAt time.Time) {
	p, exists := participants[characterID]
	if !exists {
		p = &Participant{CharacterID: characterID}
		participants[characterID] = p
		*order = append(*order, characterID)
	}

	if isVictim {
		p.IsVictim = true
	}

	// ShipTypeID (and the corp/alliance snapshot riding with it) takes the
	// most recent occurrence by occurredAt, per spec.md §4.3 step 6.
	if !exists || occurredAt.After(p.lastSeen) || occurredAt.Equal(p.lastSeen) {
		if actor.ShipTypeID != nil {
			p.ShipTypeID = actor.ShipTypeID
		}
		p.CorpID = actor.CorpID
		p.AllianceID = actor.AllianceID
		p.lastSeen = occurredAt
	}
}
