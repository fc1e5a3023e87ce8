package enrichment

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/battlescope/battlescope/internal/events"
)

// Fetcher resolves out-of-band killmail detail. Satisfied in production by
// pkg/evegateway/killmails.Client.GetKillmail via ESIFetcher.
type Fetcher interface {
	FetchKillmailDetail(ctx context.Context, killmailID int64, hash string) (map[string]any, error)
}

// Worker runs the pending -> processing -> {succeeded, failed} state
// machine for killmail enrichment. A single wall-clock throttle paces
// outbound calls (grounded on internal/zkillboard/services/
// rate_limiter.go's minInterval field, simplified to a single
// time.Sleep-based pacer since enrichment has no per-queueID concurrency
// cap to respect); golang.org/x/sync/singleflight coalesces concurrent
// requests for the same killmailId on top of the DB-level processing
// guard, which remains the source of truth across worker restarts.
type Worker struct {
	repo      *Repository
	fetcher   Fetcher
	publisher events.Publisher

	throttle time.Duration
	group    singleflight.Group

	mu          sync.Mutex
	lastRequest time.Time
}

func NewWorker(repo *Repository, fetcher Fetcher, throttle time.Duration) *Worker {
	return &Worker{repo: repo, fetcher: fetcher, throttle: throttle, publisher: events.NoopPublisher{}}
}

// WithPublisher attaches the domain-event broadcaster used to announce
// killmail.enriched once a fetch succeeds.
func (w *Worker) WithPublisher(p events.Publisher) *Worker {
	if p != nil {
		w.publisher = p
	}
	return w
}

// Enqueue upserts a pending enrichment row for killmailID, a no-op if one
// already exists outside the failed state.
func (w *Worker) Enqueue(ctx context.Context, killmailID int64, hash string) error {
	_, err := w.repo.UpsertPending(ctx, killmailID, hash)
	return err
}

// ProcessOne drives one killmail through processing to a terminal status,
// per §4.2 steps 2-5. Returns nil even on a failed fetch: the failure is
// recorded, not propagated, since enrichment failures never block
// clustering.
func (w *Worker) ProcessOne(ctx context.Context, killmailID int64) error {
	record, err := w.repo.Get(ctx, killmailID)
	if err != nil {
		return err
	}
	if record == nil {
		slog.DebugContext(ctx, "enrichment record missing, nothing to process", "killmail_id", killmailID)
		return nil
	}

	claimed, err := w.repo.TransitionToProcessing(ctx, killmailID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.DebugContext(ctx, "enrichment already in flight or terminal", "killmail_id", killmailID)
		return nil
	}

	_, err, _ = w.group.Do(keyFor(killmailID), func() (any, error) {
		w.waitForThrottle()

		payload, fetchErr := w.fetcher.FetchKillmailDetail(ctx, killmailID, record.Hash)
		if fetchErr != nil {
			slog.WarnContext(ctx, "enrichment fetch failed", "killmail_id", killmailID, "error", fetchErr)
			if markErr := w.repo.MarkFailed(ctx, killmailID, fetchErr); markErr != nil {
				return nil, markErr
			}
			return nil, nil
		}

		if markErr := w.repo.MarkSucceeded(ctx, killmailID, payload); markErr != nil {
			return nil, markErr
		}
		slog.InfoContext(ctx, "enrichment succeeded", "killmail_id", killmailID)
		if pubErr := w.publisher.Publish(ctx, events.TopicKillmailEnriched, map[string]any{
			"killmailId": killmailID,
		}); pubErr != nil {
			slog.WarnContext(ctx, "killmail.enriched publish failed", "killmail_id", killmailID, "error", pubErr)
		}
		return nil, nil
	})

	return err
}

// RunPass fetches up to limit pending/failed records and processes each in
// turn, honouring the throttle between every external call.
func (w *Worker) RunPass(ctx context.Context, limit int) (processed int, err error) {
	records, err := w.repo.FetchPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, record := range records {
		if err := w.ProcessOne(ctx, record.KillmailID); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (w *Worker) waitForThrottle() {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := time.Since(w.lastRequest)
	if elapsed < w.throttle {
		time.Sleep(w.throttle - elapsed)
	}
	w.lastRequest = time.Now()
}

func keyFor(killmailID int64) string {
	return "killmail:" + strconv.FormatInt(killmailID, 10)
}
