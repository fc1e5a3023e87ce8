package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/battlescope/battlescope/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists timeseries rollup buckets, following the teacher's
// IncrementTimeseries/GetTimeseries filter+$inc+upsert idiom.
type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *database.MongoDB) *Repository {
	return &Repository{collection: db.Database.Collection(CollectionName)}
}

func (r *Repository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "period", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "system_id", Value: 1}}},
		{Keys: bson.D{{Key: "period", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "alliance_id", Value: 1}}},
		{Keys: bson.D{{Key: "period", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "corporation_id", Value: 1}}},
		{Keys: bson.D{{Key: "period", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "ship_type_id", Value: 1}}},
	})
	return err
}

// Increment atomically bumps the counters in increments for the bucket
// matching filter, upserting a fresh bucket if one doesn't exist yet.
func (r *Repository) Increment(ctx context.Context, filter bson.M, increments bson.M) error {
	update := bson.M{
		"$inc": increments,
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("increment timeseries: %w", err)
	}
	return nil
}

// Query returns every bucket for period in [start, end] matching the
// given extra filter (e.g. a non-zero alliance_id), newest first.
func (r *Repository) Query(ctx context.Context, period string, start, end time.Time, extra bson.M) ([]Entry, error) {
	query := bson.M{
		"period":    period,
		"timestamp": bson.M{"$gte": start, "$lte": end},
	}
	for k, v := range extra {
		query[k] = v
	}

	cursor, err := r.collection.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("query timeseries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("query timeseries decode: %w", err)
	}
	return entries, nil
}
