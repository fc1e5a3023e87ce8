package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/battlescope/battlescope/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const consumerStateCollection = "feed_consumer_state"

// ConsumerState is a durable snapshot of a Consumer's Snapshot, keyed by
// queueID, so a restarted process can report its last-known state before
// its first poll completes. Grounded on the teacher's ConsumerState model
// and Repository.SaveConsumerState/GetLatestConsumerState (spec.md §10's
// supplemented feature note).
type ConsumerState struct {
	QueueID        string    `bson:"queue_id"`
	State          string    `bson:"state"`
	LastPoll       time.Time `bson:"last_poll_time"`
	TotalPolls     int64     `bson:"total_polls"`
	NullResponses  int64     `bson:"null_responses"`
	KillmailsFound int64     `bson:"killmails_found"`
	HTTPErrors     int64     `bson:"http_errors"`
	SinkErrors     int64     `bson:"sink_errors"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

// StatePersister periodically snapshots a Consumer's state to Mongo,
// mirroring RedisQConsumer.pollLoop's 30s stateTicker without coupling
// Consumer itself to a storage dependency.
type StatePersister struct {
	collection *mongo.Collection
	queueID    string
	consumer   *Consumer
	interval   time.Duration
}

func NewStatePersister(db *database.MongoDB, queueID string, consumer *Consumer, interval time.Duration) *StatePersister {
	return &StatePersister{
		collection: db.Database.Collection(consumerStateCollection),
		queueID:    queueID,
		consumer:   consumer,
		interval:   interval,
	}
}

func (p *StatePersister) CreateIndexes(ctx context.Context) error {
	_, err := p.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "queue_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Run blocks, saving a snapshot every interval until ctx is cancelled,
// then saves one final snapshot before returning.
func (p *StatePersister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := p.save(context.Background()); err != nil {
				slog.Warn("failed to save final feed consumer state", "error", err)
			}
			return
		case <-ticker.C:
			if err := p.save(ctx); err != nil {
				slog.Warn("failed to save feed consumer state", "error", err)
			}
		}
	}
}

func (p *StatePersister) save(ctx context.Context) error {
	snapshot := p.consumer.Snapshot()
	state := ConsumerState{
		QueueID:        p.queueID,
		State:          snapshot.State,
		LastPoll:       snapshot.LastPoll,
		TotalPolls:     snapshot.TotalPolls,
		NullResponses:  snapshot.NullResponses,
		KillmailsFound: snapshot.KillmailsFound,
		HTTPErrors:     snapshot.HTTPErrors,
		SinkErrors:     snapshot.SinkErrors,
		UpdatedAt:      time.Now().UTC(),
	}

	filter := bson.M{"queue_id": p.queueID}
	update := bson.M{"$set": state}
	_, err := p.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// Latest retrieves the most recently saved state for queueID, or nil if
// none has ever been saved.
func (p *StatePersister) Latest(ctx context.Context) (*ConsumerState, error) {
	var state ConsumerState
	err := p.collection.FindOne(ctx, bson.M{"queue_id": p.queueID}).Decode(&state)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
