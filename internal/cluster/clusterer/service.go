// Package clusterer implements C4, the stateful driver that pulls
// unprocessed killmails, invokes the clustering engine (C3), reconciles
// results against persisted battles — including retroactive attribution —
// and commits atomically. One call to RunBatch is one clusterer tick, per
// spec.md §4.4.
package clusterer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/battlescope/battlescope/internal/battle/store"
	"github.com/battlescope/battlescope/internal/battle/timeseries"
	"github.com/battlescope/battlescope/internal/cluster/engine"
	"github.com/battlescope/battlescope/internal/cluster/sides"
	"github.com/battlescope/battlescope/internal/events"
	"github.com/battlescope/battlescope/internal/killmail/charstats"
	killstore "github.com/battlescope/battlescope/internal/killmail/store"
	"github.com/battlescope/battlescope/internal/ruleset"

	"github.com/google/uuid"
)

// Params mirrors engine.Params plus the clusterer-only knobs spec.md §4.4
// names: the processing delay grace period and the batch fetch size.
type Params struct {
	Window                 time.Duration
	GapMax                 time.Duration
	MinKills               int
	ProcessingDelay        time.Duration
	BatchSize              int
}

func (p Params) engineParams() engine.Params {
	return engine.Params{
		WindowMinutes: int(p.Window.Minutes()),
		GapMaxMinutes: int(p.GapMax.Minutes()),
		MinKills:      p.MinKills,
	}
}

// Stats is one batch's per-tick telemetry, per spec.md §4.4 step 7.
type Stats struct {
	BattlesCreated      int
	BattlesExtended     int
	ProcessedKillmails  int
	IgnoredKillmails    int
	QuarantinedKillmails int
}

// Service is the clusterer's stateful driver.
type Service struct {
	killmails  *killstore.Store
	battles    *store.Store
	rulesets   *ruleset.Cache
	classifier engine.Classifier
	params     Params

	// sidesEnabled toggles the optional post-clustering sideId assignment
	// pass (spec.md §9); off by default since sideId is explicitly
	// optional and out of the hard core.
	sidesEnabled bool

	// charstats is an optional read-side enrichment hook, invoked with
	// every committed or extended battle's participants. A nil value
	// disables it entirely.
	charstats *charstats.Service

	// timeseries is an optional read-side rollup hook, invoked with every
	// newly committed battle. A nil value disables it entirely; it is
	// never invoked on attribution-extended battles since the extension's
	// new participants alone can't be re-rolled into Battle.TotalKills/
	// TotalIskDestroyed without double counting the original commit.
	timeseries *timeseries.Service

	// publisher broadcasts battle.detected/battle.updated once a plan
	// commits; a nil value (the default) publishes nothing.
	publisher events.Publisher
}

func NewService(killmails *killstore.Store, battles *store.Store, rulesets *ruleset.Cache, classifier engine.Classifier, params Params) *Service {
	return &Service{
		killmails:  killmails,
		battles:    battles,
		rulesets:   rulesets,
		classifier: classifier,
		params:     params,
	}
}

// WithSides enables the optional sideId assignment pass on the returned
// Service.
func (s *Service) WithSides(enabled bool) *Service {
	s.sidesEnabled = enabled
	return s
}

// WithCharStats attaches the notable-ship rollup enrichment hook.
func (s *Service) WithCharStats(svc *charstats.Service) *Service {
	s.charstats = svc
	return s
}

// WithTimeseries attaches the hourly/daily/monthly rollup hook.
func (s *Service) WithTimeseries(svc *timeseries.Service) *Service {
	s.timeseries = svc
	return s
}

// WithPublisher attaches the domain-event broadcaster.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		slog.WarnContext(ctx, "event publish failed", "topic", topic, "error", err)
	}
}

// RunBatch executes one clusterer tick end to end: cutoff computation,
// bounded fetch, retroactive attribution, the clustering pass, the
// ruleset filter, and per-killmail-set commits. Structural failures on an
// individual killmail quarantine that killmail (processed, battleId nil,
// logged) rather than blocking the rest of the batch, per spec.md §7.
func (s *Service) RunBatch(ctx context.Context) (Stats, error) {
	var stats Stats
	activeRuleset := s.rulesets.Load()

	cutoff := time.Now().UTC().Add(-s.params.ProcessingDelay)

	events, err := s.killmails.FetchUnprocessed(ctx, s.params.BatchSize, cutoff)
	if err != nil {
		return stats, fmt.Errorf("fetch unprocessed killmails: %w", err)
	}
	if len(events) == 0 {
		return stats, nil
	}

	remaining := make([]killstore.Event, 0, len(events))

	for _, event := range events {
		attributed, err := s.attemptAttribution(ctx, event)
		if err != nil {
			slog.ErrorContext(ctx, "retroactive attribution failed, quarantining killmail",
				"killmail_id", event.KillmailID, "error", err)
			if markErr := s.killmails.MarkProcessed(ctx, []int64{event.KillmailID}, nil); markErr != nil {
				return stats, fmt.Errorf("quarantine killmail %d: %w", event.KillmailID, markErr)
			}
			stats.QuarantinedKillmails++
			stats.ProcessedKillmails++
			continue
		}
		if attributed {
			stats.BattlesExtended++
			stats.ProcessedKillmails++
			continue
		}
		remaining = append(remaining, event)
	}

	if len(remaining) == 0 {
		return stats, nil
	}

	engineEvents := make([]engine.Event, len(remaining))
	byKillmailID := make(map[int64]engine.Event, len(remaining))
	for i, e := range remaining {
		engineEvents[i] = e.ToEngineEvent()
		byKillmailID[e.KillmailID] = engineEvents[i]
	}

	result := engine.Cluster(engineEvents, s.params.engineParams(), s.classifier)

	for _, plan := range result.Battles {
		accepted, err := s.commitPlan(ctx, plan, activeRuleset, byKillmailID)
		if err != nil {
			slog.ErrorContext(ctx, "invariant violation committing battle plan, quarantining members",
				"battle_plan", plan.ID, "error", err)
			if markErr := s.killmails.MarkProcessed(ctx, plan.MemberKillmailIDs, nil); markErr != nil {
				return stats, fmt.Errorf("quarantine battle plan %s: %w", plan.ID, markErr)
			}
			stats.QuarantinedKillmails += len(plan.MemberKillmailIDs)
			stats.ProcessedKillmails += len(plan.MemberKillmailIDs)
			continue
		}
		if accepted {
			stats.BattlesCreated++
			stats.ProcessedKillmails += len(plan.MemberKillmailIDs)
		} else {
			// Ruleset rejected the plan: every member is processed but
			// ignored, per spec.md §4.4 step 5.
			if err := s.killmails.MarkProcessed(ctx, plan.MemberKillmailIDs, nil); err != nil {
				return stats, fmt.Errorf("mark ruleset-rejected members processed: %w", err)
			}
			stats.IgnoredKillmails += len(plan.MemberKillmailIDs)
			stats.ProcessedKillmails += len(plan.MemberKillmailIDs)
		}
	}

	if len(result.IgnoredKillmailIDs) > 0 {
		if err := s.killmails.MarkProcessed(ctx, result.IgnoredKillmailIDs, nil); err != nil {
			return stats, fmt.Errorf("mark below-threshold members processed: %w", err)
		}
		stats.IgnoredKillmails += len(result.IgnoredKillmailIDs)
		stats.ProcessedKillmails += len(result.IgnoredKillmailIDs)
	}

	slog.InfoContext(ctx, "clusterer batch complete",
		"battles_created", stats.BattlesCreated,
		"battles_extended", stats.BattlesExtended,
		"processed", stats.ProcessedKillmails,
		"ignored", stats.IgnoredKillmails,
		"quarantined", stats.QuarantinedKillmails)

	return stats, nil
}

// attemptAttribution implements spec.md §4.4 step 3: look for an existing
// battle whose span e falls within (Δ = gapMax either side, combined span
// never exceeding window), attaching e and extending the battle if found.
// Ties are broken by nearest endTime.
func (s *Service) attemptAttribution(ctx context.Context, event killstore.Event) (bool, error) {
	windowStart := event.OccurredAt.Add(-s.params.GapMax)
	windowEnd := event.OccurredAt.Add(s.params.GapMax)

	candidates, err := s.battles.FindCandidatesForAttribution(ctx, event.SystemID, windowStart, windowEnd)
	if err != nil {
		return false, fmt.Errorf("find attribution candidates: %w", err)
	}
	if len(candidates) == 0 {
		return false, nil
	}

	best, ok := nearestCandidate(candidates, event.OccurredAt, s.params.Window)
	if !ok {
		return false, nil
	}

	engineEvent := event.ToEngineEvent()

	newStart, newEnd := best.StartTime, best.EndTime
	if engineEvent.OccurredAt.Before(newStart) {
		newStart = engineEvent.OccurredAt
	}
	if engineEvent.OccurredAt.After(newEnd) {
		newEnd = engineEvent.OccurredAt
	}

	iskTotal, ok := new(big.Int).SetString(best.TotalIskDestroyed, 10)
	if !ok {
		iskTotal = big.NewInt(0)
	}
	iskTotal = new(big.Int).Add(iskTotal, engineEvent.ISKValue)

	participants := participantsFromEvent(engineEvent)

	plan := store.ExtendPlan{
		BattleID:          best.ID,
		ExpectedUpdatedAt: best.UpdatedAt,
		NewKillmailIDs:    []int64{event.KillmailID},
		NewStartTime:      newStart,
		NewEndTime:        newEnd,
		NewTotalKills:     best.TotalKills + 1,
		NewTotalISKStr:    iskTotal.String(),
		UpsertParticipants: participants,
	}

	if err := s.battles.AppendKillmailsToBattle(ctx, plan); err != nil {
		if errors.Is(err, store.ErrStaleBattle) {
			// Another tick (or instance) extended this battle first;
			// leave the killmail unattributed this tick, the clustering
			// pass or next tick's attribution will pick it up.
			return false, nil
		}
		return false, fmt.Errorf("extend battle %s: %w", best.ID, err)
	}

	battleID := best.ID
	if err := s.killmails.MarkProcessed(ctx, []int64{event.KillmailID}, &battleID); err != nil {
		return false, fmt.Errorf("mark attributed killmail processed: %w", err)
	}

	if s.charstats != nil {
		s.charstats.RecordParticipants(ctx, participants)
	}

	s.publish(ctx, events.TopicBattleUpdated, map[string]any{
		"battleId":      best.ID,
		"killmailId":    event.KillmailID,
		"newTotalKills": plan.NewTotalKills,
	})

	return true, nil
}

// nearestCandidate picks the candidate battle whose endTime is closest to
// occurredAt among those whose combined span would still satisfy window,
// per spec.md §4.4 step 3's tie-break rule.
func nearestCandidate(candidates []store.Battle, occurredAt time.Time, window time.Duration) (store.Battle, bool) {
	var best store.Battle
	var bestDelta time.Duration
	found := false

	for _, c := range candidates {
		combinedStart, combinedEnd := c.StartTime, c.EndTime
		if occurredAt.Before(combinedStart) {
			combinedStart = occurredAt
		}
		if occurredAt.After(combinedEnd) {
			combinedEnd = occurredAt
		}
		if combinedEnd.Sub(combinedStart) > window {
			continue
		}

		delta := occurredAt.Sub(c.EndTime)
		if delta < 0 {
			delta = -delta
		}
		if !found || delta < bestDelta {
			best, bestDelta, found = c, delta, true
		}
	}

	return best, found
}

// commitPlan persists a surviving cluster as a new battle if it passes
// the active ruleset's filter, returning (accepted, err). When sides
// assignment is enabled, participants are additionally tagged with a
// sideId derived from the independent alliance/corp adjacency pass in
// internal/cluster/sides — never feeding back into cluster membership,
// per spec.md §9.
func (s *Service) commitPlan(ctx context.Context, plan engine.BattlePlan, rs ruleset.Ruleset, byKillmailID map[int64]engine.Event) (bool, error) {
	allianceIDs, corpIDs := participantEntityIDs(plan.Participants)
	candidate := ruleset.NewCandidate(plan.TotalKills, plan.SystemID, plan.SecurityType, allianceIDs, corpIDs)

	if !rs.Accepts(candidate) {
		return false, nil
	}

	battle := store.Battle{
		ID:                uuid.New().String(),
		SystemID:          plan.SystemID,
		SpaceType:         plan.SpaceType,
		SecurityType:      plan.SecurityType,
		StartTime:         plan.StartTime,
		EndTime:            plan.EndTime,
		TotalKills:        plan.TotalKills,
		TotalIskDestroyed: plan.TotalISKDestroyed.String(),
		ZkillRelatedURL:   plan.ZkillRelatedURL,
	}

	var sideByCharacter map[int64]int
	if s.sidesEnabled {
		sideByEntity := sides.Assign(buildSideEdges(plan.MemberKillmailIDs, byKillmailID))
		sideByCharacter = resolveParticipantSides(plan.Participants, sideByEntity)
	}

	storeParticipants := make([]store.Participant, len(plan.Participants))
	for i, p := range plan.Participants {
		storeParticipants[i] = store.Participant{
			CharacterID: p.CharacterID,
			CorpID:      p.CorpID,
			AllianceID:  p.AllianceID,
			ShipTypeID:  p.ShipTypeID,
			IsVictim:    p.IsVictim,
			OccurredAt:  p.LastSeen(),
		}
		if side, ok := sideByCharacter[p.CharacterID]; ok {
			sideCopy := side
			storeParticipants[i].SideID = &sideCopy
		}
	}

	err := s.battles.CreateBattle(ctx, store.CreatePlan{
		Battle:       battle,
		KillmailIDs:  plan.MemberKillmailIDs,
		Participants: storeParticipants,
	})
	if err != nil {
		return false, fmt.Errorf("create battle: %w", err)
	}

	battleID := battle.ID
	if err := s.killmails.MarkProcessed(ctx, plan.MemberKillmailIDs, &battleID); err != nil {
		return false, fmt.Errorf("mark battle members processed: %w", err)
	}

	if s.charstats != nil {
		s.charstats.RecordParticipants(ctx, storeParticipants)
	}
	if s.timeseries != nil {
		s.timeseries.RecordBattle(ctx, battle, storeParticipants)
	}

	s.publish(ctx, events.TopicBattleDetected, map[string]any{
		"battleId":   battle.ID,
		"systemId":   battle.SystemID,
		"totalKills": battle.TotalKills,
	})

	return true, nil
}

// entityKey picks the alliance id as the sides-adjacency grouping key,
// falling back to corp id when the actor has no alliance.
func entityKey(a engine.Actor) (int64, bool) {
	if a.AllianceID != nil {
		return *a.AllianceID, true
	}
	if a.CorpID != nil {
		return *a.CorpID, true
	}
	return 0, false
}

// buildSideEdges projects a battle's member killmails into the victim/
// attacker adjacency edges internal/cluster/sides.Assign consumes.
func buildSideEdges(memberKillmailIDs []int64, byKillmailID map[int64]engine.Event) []sides.KillmailEdge {
	edges := make([]sides.KillmailEdge, 0, len(memberKillmailIDs))
	for _, id := range memberKillmailIDs {
		event, ok := byKillmailID[id]
		if !ok {
			continue
		}
		victimKey, ok := entityKey(event.Victim)
		if !ok {
			continue
		}
		var attackerKeys []int64
		for _, a := range event.Attackers {
			if key, ok := entityKey(a); ok {
				attackerKeys = append(attackerKeys, key)
			}
		}
		if len(attackerKeys) == 0 {
			continue
		}
		edges = append(edges, sides.KillmailEdge{VictimKey: victimKey, AttackerKeys: attackerKeys})
	}
	return edges
}

// resolveParticipantSides maps each participant's characterId to the
// sideId of its most-recent alliance/corp entity key.
func resolveParticipantSides(participants []engine.Participant, sideByEntity map[int64]int) map[int64]int {
	result := make(map[int64]int, len(participants))
	for _, p := range participants {
		var key int64
		var ok bool
		if p.AllianceID != nil {
			key, ok = *p.AllianceID, true
		} else if p.CorpID != nil {
			key, ok = *p.CorpID, true
		}
		if !ok {
			continue
		}
		if side, found := sideByEntity[key]; found {
			result[p.CharacterID] = side
		}
	}
	return result
}

func participantEntityIDs(participants []engine.Participant) (allianceIDs, corpIDs []int64) {
	for _, p := range participants {
		if p.AllianceID != nil {
			allianceIDs = append(allianceIDs, *p.AllianceID)
		}
		if p.CorpID != nil {
			corpIDs = append(corpIDs, *p.CorpID)
		}
	}
	return
}

// participantsFromEvent derives the victim+attacker participant upserts
// for a single retroactively-attributed killmail, mirroring
// engine.buildPlan's participant union but for exactly one event.
func participantsFromEvent(e engine.Event) []store.Participant {
	type row struct {
		characterID int64
		corpID      *int64
		allianceID  *int64
		shipTypeID  *int64
		isVictim    bool
	}

	var rows []row
	if e.Victim.CharacterID != nil {
		rows = append(rows, row{*e.Victim.CharacterID, e.Victim.CorpID, e.Victim.AllianceID, e.Victim.ShipTypeID, true})
	}
	for _, a := range e.Attackers {
		if a.CharacterID != nil {
			rows = append(rows, row{*a.CharacterID, a.CorpID, a.AllianceID, a.ShipTypeID, false})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].characterID < rows[j].characterID })

	participants := make([]store.Participant, len(rows))
	for i, r := range rows {
		participants[i] = store.Participant{
			CharacterID: r.characterID,
			CorpID:      r.corpID,
			AllianceID:  r.allianceID,
			ShipTypeID:  r.shipTypeID,
			IsVictim:    r.isVictim,
			OccurredAt:  e.OccurredAt,
		}
	}
	return participants
}
