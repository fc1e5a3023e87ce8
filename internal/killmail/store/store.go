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

// Store is the durable killmail event log, C1 in the component design.
type Store struct {
	collection *mongo.Collection
}

func NewStore(db *database.MongoDB) *Store {
	return &Store{collection: db.Database.Collection(EventsCollection)}
}

// CreateIndexes bootstraps the collection's indexes, following the
// teacher's per-repository CreateIndexes(ctx) idiom rather than a
// separate migration runner.
func (s *Store) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "killmail_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "processed_at", Value: 1}, {Key: "occurred_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "system_id", Value: 1}, {Key: "occurred_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "battle_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "security_type", Value: 1}, {Key: "occurred_at", Value: -1}},
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Insert durably appends a killmail event. Returns ErrDuplicate, never
// overwriting, if killmailId is already present.
func (s *Store) Insert(ctx context.Context, event *Event) error {
	_, err := s.collection.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert killmail event: %w", err)
	}
	return nil
}

// FetchUnprocessed returns up to limit events with processedAt=null and
// occurredAt<=maxOccurredAt, ordered by (occurredAt, killmailId) ascending.
func (s *Store) FetchUnprocessed(ctx context.Context, limit int, maxOccurredAt time.Time) ([]Event, error) {
	filter := bson.M{
		"processed_at": nil,
		"occurred_at":  bson.M{"$lte": maxOccurredAt},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "killmail_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed: %w", err)
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("fetch unprocessed decode: %w", err)
	}
	return events, nil
}

// MarkProcessed sets processedAt=now and battleId for the given killmail
// ids, idempotently. battleID is nil for "processed but ignored".
func (s *Store) MarkProcessed(ctx context.Context, killmailIDs []int64, battleID *string) error {
	if len(killmailIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	filter := bson.M{"killmail_id": bson.M{"$in": killmailIDs}}
	update := bson.M{"$set": bson.M{"processed_at": now, "battle_id": battleID}}

	_, err := s.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// RecentFilter narrows FetchRecent, per spec.md §6's
// recentKillmails(limit, securityType[], trackedOnly).
type RecentFilter struct {
	// SecurityTypes restricts results to these security classifications.
	// Empty means no restriction.
	SecurityTypes []string
	// TrackedOnly restricts results to killmails with at least one
	// victim/attacker alliance or corp in TrackedAllianceIDs/
	// TrackedCorpIDs, mirroring internal/ruleset.Ruleset.Accepts'
	// participant check. False (or both ID lists empty) means no
	// restriction.
	TrackedOnly        bool
	TrackedAllianceIDs []int64
	TrackedCorpIDs     []int64
}

func (f RecentFilter) toBSON() bson.M {
	filter := bson.M{}
	if len(f.SecurityTypes) > 0 {
		filter["security_type"] = bson.M{"$in": f.SecurityTypes}
	}
	if f.TrackedOnly && (len(f.TrackedAllianceIDs) > 0 || len(f.TrackedCorpIDs) > 0) {
		var or bson.A
		if len(f.TrackedAllianceIDs) > 0 {
			or = append(or,
				bson.M{"victim_alliance_id": bson.M{"$in": f.TrackedAllianceIDs}},
				bson.M{"attacker_alliance_ids": bson.M{"$in": f.TrackedAllianceIDs}},
			)
		}
		if len(f.TrackedCorpIDs) > 0 {
			or = append(or,
				bson.M{"victim_corp_id": bson.M{"$in": f.TrackedCorpIDs}},
				bson.M{"attacker_corp_ids": bson.M{"$in": f.TrackedCorpIDs}},
			)
		}
		filter["$or"] = or
	}
	return filter
}

// FetchRecent returns the most recent killmail events by occurredAt
// matching filter, newest-occurredAt first, for the recentKillmails read API
// (spec.md §6).
func (s *Store) FetchRecent(ctx context.Context, limit int, filter RecentFilter) ([]Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "killmail_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter.toBSON(), opts)
	if err != nil {
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("fetch recent decode: %w", err)
	}
	return events, nil
}

// FetchAfter returns up to limit killmail events with killmailId greater
// than sinceKillmailID, ordered ascending, for the long-poll streaming
// read API (spec.md §6's recentKillmailsStream).
func (s *Store) FetchAfter(ctx context.Context, sinceKillmailID int64, limit int) ([]Event, error) {
	filter := bson.M{"killmail_id": bson.M{"$gt": sinceKillmailID}}
	opts := options.Find().
		SetSort(bson.D{{Key: "killmail_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch after: %w", err)
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("fetch after decode: %w", err)
	}
	return events, nil
}

// Get returns one killmail event by id, or nil if absent.
func (s *Store) Get(ctx context.Context, killmailID int64) (*Event, error) {
	var event Event
	err := s.collection.FindOne(ctx, bson.M{"killmail_id": killmailID}).Decode(&event)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get killmail event: %w", err)
	}
	return &event, nil
}

// Exists reports whether killmailID is already present, for callers that
// want a cheap pre-check before a full Insert (mirrors the teacher's
// Exists-before-write idiom in internal/killmails/services/repository.go).
func (s *Store) Exists(ctx context.Context, killmailID int64) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"killmail_id": killmailID})
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	return count > 0, nil
}
