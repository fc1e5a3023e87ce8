// Package ingest wires the inbound feed to the killmail event store: it
// is the Sink internal/feed.Consumer dispatches every non-null package
// to. Grounded on internal/zkillboard/services/processor.go's
// ProcessKillmail, minus the batching (killmail_events writes are
// individually cheap and don't need processor.go's flush-on-size-or-
// timer batching) and minus zkb-metadata persistence (spec.md's
// KillmailEvent folds the fields it needs from Metadata directly, via
// internal/feed.Package.ToStoreEvent).
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/battlescope/battlescope/internal/events"
	"github.com/battlescope/battlescope/internal/feed"
	"github.com/battlescope/battlescope/internal/killmail/enrichment"
	killstore "github.com/battlescope/battlescope/internal/killmail/store"
	"github.com/battlescope/battlescope/internal/spacetype"
)

// Sink persists every killmail package delivered by the feed consumer
// into the killmail event store, then enqueues it for enrichment.
// Satisfies internal/feed.Sink.
type Sink struct {
	store      *killstore.Store
	enricher   *enrichment.Worker
	publisher  events.Publisher
	classifier *spacetype.Classifier
	logger     *slog.Logger
}

func NewSink(store *killstore.Store, enricher *enrichment.Worker, publisher events.Publisher, classifier *spacetype.Classifier, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if classifier == nil {
		classifier = spacetype.NewClassifier(nil)
	}
	return &Sink{store: store, enricher: enricher, publisher: publisher, classifier: classifier, logger: logger}
}

// Accept converts pkg into a killmail event and inserts it, tolerating
// a duplicate killmailId as a no-op (the feed can redeliver). Enrichment
// is enqueued only after a successful insert, so a killmail is never
// queued for detail fetch without a durable event backing it.
func (s *Sink) Accept(ctx context.Context, pkg *feed.Package) error {
	event, err := pkg.ToStoreEvent(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("convert killmail %d: %w", pkg.KillID, err)
	}

	_, event.SecurityType = s.classifier.Classify(event.SystemID)

	if err := s.store.Insert(ctx, event); err != nil {
		if err == killstore.ErrDuplicate {
			s.logger.DebugContext(ctx, "killmail already ingested", "killmail_id", pkg.KillID)
			return nil
		}
		return fmt.Errorf("insert killmail %d: %w", pkg.KillID, err)
	}

	if s.enricher != nil {
		if err := s.enricher.Enqueue(ctx, pkg.KillID, pkg.ZKB.Hash); err != nil {
			s.logger.ErrorContext(ctx, "enrichment enqueue failed", "killmail_id", pkg.KillID, "error", err)
		}
	}

	if err := s.publisher.Publish(ctx, events.TopicKillmailReceived, map[string]any{
		"killmailId": pkg.KillID,
		"systemId":   event.SystemID,
	}); err != nil {
		s.logger.WarnContext(ctx, "killmail.received publish failed", "killmail_id", pkg.KillID, "error", err)
	}

	return nil
}
