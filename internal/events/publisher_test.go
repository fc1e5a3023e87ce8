package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, topic string, payload any) error {
	return errors.New("boom")
}

func TestNoopPublisher_NeverErrors(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), TopicKillmailReceived, map[string]any{"killmailId": 1}))
}

func TestLoggingPublisher_SwallowsUnderlyingError(t *testing.T) {
	p := NewLoggingPublisher(failingPublisher{}, slog.Default())
	err := p.Publish(context.Background(), TopicBattleDetected, map[string]any{"battleId": "b1"})
	assert.NoError(t, err)
}
