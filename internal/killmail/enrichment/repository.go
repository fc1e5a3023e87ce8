package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/battlescope/battlescope/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *database.MongoDB) *Repository {
	return &Repository{collection: db.Database.Collection(Collection)}
}

func (r *Repository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "killmail_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *Repository) Get(ctx context.Context, killmailID int64) (*Record, error) {
	var record Record
	err := r.collection.FindOne(ctx, bson.M{"killmail_id": killmailID}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrichment record: %w", err)
	}
	return &record, nil
}

// UpsertPending inserts a new pending record, a no-op if one already
// exists in any status other than failed (per §4.2 step 1). Returns the
// record as it exists after the call.
func (r *Repository) UpsertPending(ctx context.Context, killmailID int64, hash string) (*Record, error) {
	existing, err := r.Get(ctx, killmailID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != StatusFailed {
		return existing, nil
	}

	now := time.Now().UTC()
	record := Record{
		KillmailID: killmailID,
		Hash:       hash,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
	}

	filter := bson.M{"killmail_id": killmailID}
	update := bson.M{"$set": bson.M{
		"hash":       hash,
		"status":     StatusPending,
		"updated_at": now,
		"error":      "",
	}, "$setOnInsert": bson.M{"created_at": record.CreatedAt}}

	_, err = r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("upsert pending enrichment: %w", err)
	}
	return &record, nil
}

// TransitionToProcessing performs the pending|failed -> processing move,
// guarded by a filter on the expected current status so concurrent
// workers can never both claim the same killmailId (the processing-status
// guard spec.md §4.2 names as the sole concurrency control).
func (r *Repository) TransitionToProcessing(ctx context.Context, killmailID int64) (bool, error) {
	filter := bson.M{
		"killmail_id": killmailID,
		"status":      bson.M{"$in": []Status{StatusPending, StatusFailed}},
	}
	update := bson.M{"$set": bson.M{"status": StatusProcessing, "updated_at": time.Now().UTC()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("transition to processing: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *Repository) MarkSucceeded(ctx context.Context, killmailID int64, payload map[string]any) error {
	now := time.Now().UTC()
	filter := bson.M{"killmail_id": killmailID}
	update := bson.M{"$set": bson.M{
		"status":     StatusSucceeded,
		"payload":    payload,
		"fetched_at": now,
		"updated_at": now,
		"error":      "",
	}}
	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, killmailID int64, fetchErr error) error {
	filter := bson.M{"killmail_id": killmailID}
	update := bson.M{"$set": bson.M{
		"status":     StatusFailed,
		"error":      fetchErr.Error(),
		"updated_at": time.Now().UTC(),
	}}
	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// FetchPending returns up to limit records in pending or failed status,
// for the worker's next pass.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	filter := bson.M{"status": bson.M{"$in": []Status{StatusPending, StatusFailed}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer cursor.Close(ctx)

	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("fetch pending decode: %w", err)
	}
	return records, nil
}
