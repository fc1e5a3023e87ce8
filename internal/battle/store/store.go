package store

import (
	"context"
	"fmt"
	"time"

	"github.com/battlescope/battlescope/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the Battle/BattleKillmail/BattleParticipant write side, C5's
// persistence half. Only the clusterer service writes through it.
type Store struct {
	client       *mongo.Client
	battles      *mongo.Collection
	killmails    *mongo.Collection
	participants *mongo.Collection
}

func NewStore(db *database.MongoDB) *Store {
	return &Store{
		client:       db.Client,
		battles:      db.Database.Collection(BattlesCollection),
		killmails:    db.Database.Collection(KillmailsCollection),
		participants: db.Database.Collection(ParticipantsCollection),
	}
}

func (s *Store) CreateIndexes(ctx context.Context) error {
	if _, err := s.battles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "start_time", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "system_id", Value: 1}}},
		{Keys: bson.D{{Key: "security_type", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create battle indexes: %w", err)
	}

	if _, err := s.killmails.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "battle_id", Value: 1}, {Key: "killmail_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}); err != nil {
		return fmt.Errorf("create battle killmail indexes: %w", err)
	}

	if _, err := s.participants.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "battle_id", Value: 1}, {Key: "character_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}); err != nil {
		return fmt.Errorf("create battle participant indexes: %w", err)
	}

	return nil
}

// CreatePlan is everything CreateBattle needs to persist a brand-new
// battle plus its membership and participant rows in one transaction.
type CreatePlan struct {
	Battle       Battle
	KillmailIDs  []int64
	Participants []Participant
}

// CreateBattle persists a new battle, its membership rows, and its
// participant rows atomically, via a multi-document Mongo transaction —
// the idiomatic generalization of the teacher's per-document upserts to
// the cross-collection atomicity spec.md §4.4 step 6 requires.
func (s *Store) CreateBattle(ctx context.Context, plan CreatePlan) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	now := time.Now().UTC()
	plan.Battle.CreatedAt = now
	plan.Battle.UpdatedAt = now

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		if _, err := s.battles.InsertOne(sessCtx, plan.Battle); err != nil {
			return nil, fmt.Errorf("insert battle: %w", err)
		}

		if len(plan.KillmailIDs) > 0 {
			docs := make([]any, len(plan.KillmailIDs))
			for i, id := range plan.KillmailIDs {
				docs[i] = Killmail{BattleID: plan.Battle.ID, KillmailID: id}
			}
			if _, err := s.killmails.InsertMany(sessCtx, docs); err != nil {
				return nil, fmt.Errorf("insert battle killmails: %w", err)
			}
		}

		if len(plan.Participants) > 0 {
			docs := make([]any, len(plan.Participants))
			for i, p := range plan.Participants {
				p.BattleID = plan.Battle.ID
				docs[i] = p
			}
			if _, err := s.participants.InsertMany(sessCtx, docs); err != nil {
				return nil, fmt.Errorf("insert battle participants: %w", err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("create battle transaction: %w", err)
	}
	return nil
}

// ExtendPlan is everything AppendKillmailsToBattle needs to extend an
// existing battle with newly-attributed killmails.
type ExtendPlan struct {
	BattleID           string
	ExpectedUpdatedAt  time.Time
	NewKillmailIDs     []int64
	NewStartTime       time.Time
	NewEndTime         time.Time
	NewTotalKills      int
	NewTotalISKStr     string
	UpsertParticipants []Participant
}

// ErrStaleBattle is returned by AppendKillmailsToBattle when the battle's
// updatedAt no longer matches ExpectedUpdatedAt — another clusterer tick
// (or instance) already extended it first.
var ErrStaleBattle = fmt.Errorf("battle: stale updatedAt, retry with fresh read")

// AppendKillmailsToBattle extends an existing battle with retroactively
// attributed killmails and refreshed aggregates, guarded by an optimistic
// updatedAt compare-and-swap filter — Mongo has no native advisory row
// lock, so the filter's equality check on updatedAt stands in for one
// (grounded on SaveZKBMetadata's filter+$set+upsert shape, generalized to
// a CAS guard).
func (s *Store) AppendKillmailsToBattle(ctx context.Context, plan ExtendPlan) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	now := time.Now().UTC()

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		filter := bson.M{"_id": plan.BattleID, "updated_at": plan.ExpectedUpdatedAt}
		update := bson.M{"$set": bson.M{
			"start_time":          plan.NewStartTime,
			"end_time":            plan.NewEndTime,
			"total_kills":         plan.NewTotalKills,
			"total_isk_destroyed": plan.NewTotalISKStr,
			"updated_at":          now,
		}}

		result, err := s.battles.UpdateOne(sessCtx, filter, update)
		if err != nil {
			return nil, fmt.Errorf("update battle aggregates: %w", err)
		}
		if result.MatchedCount == 0 {
			return nil, ErrStaleBattle
		}

		if len(plan.NewKillmailIDs) > 0 {
			docs := make([]any, len(plan.NewKillmailIDs))
			for i, id := range plan.NewKillmailIDs {
				docs[i] = Killmail{BattleID: plan.BattleID, KillmailID: id}
			}
			if _, err := s.killmails.InsertMany(sessCtx, docs, options.InsertMany().SetOrdered(false)); err != nil {
				return nil, fmt.Errorf("insert new battle killmails: %w", err)
			}
		}

		for _, p := range plan.UpsertParticipants {
			pfilter := bson.M{"battle_id": plan.BattleID, "character_id": p.CharacterID}
			if _, err := s.participants.UpdateOne(sessCtx, pfilter, newerSnapshotPipeline(p), options.Update().SetUpsert(true)); err != nil {
				return nil, fmt.Errorf("upsert participant: %w", err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("extend battle transaction: %w", err)
	}
	return nil
}

// newerSnapshotPipeline builds an aggregation-pipeline update that only
// overwrites corp_id/alliance_id/ship_type_id when p.OccurredAt is at least
// as recent as the stored occurred_at (or the participant doc is new), so a
// retroactively-attributed older killmail can never clobber a newer
// snapshot. is_victim still uses $max independently of occurredAt: once a
// character is a victim anywhere in the battle, it stays a victim.
func newerSnapshotPipeline(p Participant) mongo.Pipeline {
	isNewer := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$occurred_at", nil}}}, nil}}},
		bson.D{{Key: "$gte", Value: bson.A{p.OccurredAt, "$occurred_at"}}},
	}}}

	cond := func(thenValue any, elseField string) bson.D {
		return bson.D{{Key: "$cond", Value: bson.D{
			{Key: "if", Value: isNewer},
			{Key: "then", Value: thenValue},
			{Key: "else", Value: "$" + elseField},
		}}}
	}

	return mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "corp_id", Value: cond(p.CorpID, "corp_id")},
			{Key: "alliance_id", Value: cond(p.AllianceID, "alliance_id")},
			{Key: "ship_type_id", Value: cond(p.ShipTypeID, "ship_type_id")},
			{Key: "occurred_at", Value: bson.D{{Key: "$max", Value: bson.A{"$occurred_at", p.OccurredAt}}}},
			{Key: "is_victim", Value: bson.D{{Key: "$max", Value: bson.A{"$is_victim", p.IsVictim}}}},
		}}},
	}
}

// SoftDeleteBattle marks a battle deleted without removing its rows,
// keeping membership/participant history intact for audit.
func (s *Store) SoftDeleteBattle(ctx context.Context, battleID string) error {
	now := time.Now().UTC()
	_, err := s.battles.UpdateOne(ctx, bson.M{"_id": battleID}, bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}})
	if err != nil {
		return fmt.Errorf("soft delete battle: %w", err)
	}
	return nil
}

// FindCandidatesForAttribution returns every non-deleted battle in
// systemID whose span overlaps [windowStart, windowEnd], for the
// clusterer's retroactive attribution pass (spec.md §4.4 step 3). The
// caller narrows further by combined-span-vs-window and nearest-endTime
// tie-break.
func (s *Store) FindCandidatesForAttribution(ctx context.Context, systemID int64, windowStart, windowEnd time.Time) ([]Battle, error) {
	filter := bson.M{
		"system_id":  systemID,
		"deleted_at": nil,
		"start_time": bson.M{"$lte": windowEnd},
		"end_time":   bson.M{"$gte": windowStart},
	}

	cursor, err := s.battles.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find attribution candidates: %w", err)
	}
	defer cursor.Close(ctx)

	var battles []Battle
	if err := cursor.All(ctx, &battles); err != nil {
		return nil, fmt.Errorf("decode attribution candidates: %w", err)
	}
	return battles, nil
}

// GetBattle returns one battle by id, or nil if absent or soft-deleted.
func (s *Store) GetBattle(ctx context.Context, battleID string) (*Battle, error) {
	var battle Battle
	err := s.battles.FindOne(ctx, bson.M{"_id": battleID, "deleted_at": nil}).Decode(&battle)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get battle: %w", err)
	}
	return &battle, nil
}
