package ruleset

import (
	"context"
	"fmt"
	"time"

	"github.com/battlescope/battlescope/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists the single active Ruleset document, grounded on
// internal/zkillboard/services/repository.go's filter+$set+upsert idiom
// for the same reason a single-document upsert fits here: there is
// exactly one active Ruleset.
type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *database.MongoDB) *Repository {
	return &Repository{collection: db.Database.Collection(Collection)}
}

func (r *Repository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	})
	return err
}

// Bootstrap ensures the active ruleset document exists, inserting
// Default() if absent. Called once at module Initialize.
func (r *Repository) Bootstrap(ctx context.Context) (Ruleset, error) {
	existing, err := r.Get(ctx)
	if err != nil {
		return Ruleset{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	def := Default()
	_, err = r.collection.InsertOne(ctx, def)
	if err != nil {
		return Ruleset{}, fmt.Errorf("bootstrap ruleset: %w", err)
	}
	return def, nil
}

// Get returns the active ruleset, or nil if it has never been bootstrapped.
func (r *Repository) Get(ctx context.Context) (*Ruleset, error) {
	var rs Ruleset
	err := r.collection.FindOne(ctx, bson.M{"_id": SingletonID}).Decode(&rs)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ruleset: %w", err)
	}
	return &rs, nil
}

// Update applies patch to the active ruleset and persists the result,
// bumping updatedAt per spec.md §3.
func (r *Repository) Update(ctx context.Context, patch Patch) (Ruleset, error) {
	current, err := r.Get(ctx)
	if err != nil {
		return Ruleset{}, err
	}
	if current == nil {
		def := Default()
		current = &def
	}

	next := current.Apply(patch)
	next.UpdatedAt = time.Now().UTC()

	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": SingletonID}, next, options.Replace().SetUpsert(true))
	if err != nil {
		return Ruleset{}, fmt.Errorf("update ruleset: %w", err)
	}
	return next, nil
}
