// Package events publishes the core's domain events (killmail.received,
// killmail.enriched, battle.detected, battle.updated) to whatever
// downstream wants them, independent of the read API. Publishing is
// best-effort: a publish failure never unwinds the write it followed.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/battlescope/battlescope/pkg/database"
)

const (
	TopicKillmailReceived = "killmail.received"
	TopicKillmailEnriched = "killmail.enriched"
	TopicBattleDetected   = "battle.detected"
	TopicBattleUpdated    = "battle.updated"
)

// Publisher broadcasts a domain event under a topic. Implementations
// never block the caller's write path on downstream availability.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// RedisPublisher publishes events over Redis pub/sub, grounded on
// pkg/database.Redis's traced client wrapper.
type RedisPublisher struct {
	redis *database.Redis
}

func NewRedisPublisher(redis *database.Redis) *RedisPublisher {
	return &RedisPublisher{redis: redis}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.redis.Client.Publish(ctx, topic, data).Err()
}

// NoopPublisher discards every event. Used when Redis is unavailable, so
// the core's write path never depends on pub/sub reachability.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic string, payload any) error { return nil }

// LoggingPublisher wraps another Publisher and logs publish failures
// without propagating them, since no caller in this tree treats a
// publish failure as fatal to the write it followed.
type LoggingPublisher struct {
	next   Publisher
	logger *slog.Logger
}

func NewLoggingPublisher(next Publisher, logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{next: next, logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, topic string, payload any) error {
	if err := p.next.Publish(ctx, topic, payload); err != nil {
		p.logger.WarnContext(ctx, "event publish failed", "topic", topic, "error", err)
	}
	return nil
}
