package charstats

import (
	"context"
	"time"

	"github.com/battlescope/battlescope/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists per-character notable-ship rollups, following the
// teacher's CharStatsRepository filter+$set+upsert idiom.
type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *database.MongoDB) *Repository {
	return &Repository{collection: db.Database.Collection(CollectionName)}
}

func (r *Repository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "character_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Get retrieves a character's stats, or nil if no ship in a tracked
// category has ever been recorded for them.
func (r *Repository) Get(ctx context.Context, characterID int64) (*Stats, error) {
	var stats Stats
	err := r.collection.FindOne(ctx, bson.M{"character_id": characterID}).Decode(&stats)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// UpdateLastShipUsed records shipTypeID as the most recent hull a
// character flew in category, upserting the character's document.
func (r *Repository) UpdateLastShipUsed(ctx context.Context, characterID int64, category string, shipTypeID int64) error {
	filter := bson.M{"character_id": characterID}
	update := bson.M{
		"$set": bson.M{
			"last_updated":              time.Now().UTC(),
			"notable_ships." + category: shipTypeID,
		},
		"$setOnInsert": bson.M{"character_id": characterID},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// ByCategory returns characters with a recorded hull in category, most
// recently updated first.
func (r *Repository) ByCategory(ctx context.Context, category string, limit int) ([]Stats, error) {
	filter := bson.M{"notable_ships." + category: bson.M{"$exists": true}}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_updated", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []Stats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// RecentActivity returns characters updated since the given time, most
// recent first.
func (r *Repository) RecentActivity(ctx context.Context, since time.Time, limit int) ([]Stats, error) {
	filter := bson.M{"last_updated": bson.M{"$gte": since}}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_updated", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []Stats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
