package clusterer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler drives Service.RunBatch on a fixed interval via
// robfig/cron/v3 — the teacher's own scheduling dependency
// (internal/scheduler/engine.go's cron.New(cron.WithSeconds())+AddFunc
// wiring), reused directly here for a single fixed-interval job rather
// than the teacher's full admin-CRUD task manager, which BattleScope has
// no use for (see DESIGN.md's internal/scheduler deletion entry).
type Scheduler struct {
	service *Service
	cron    *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewScheduler builds a Scheduler that runs service.RunBatch every
// spec expression (standard 5-field cron, e.g. "@every 5s").
func NewScheduler(service *Service, spec string) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{service: service, cron: c}

	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		stats, err := service.RunBatch(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "clusterer tick failed", "error", err)
			return
		}
		slog.InfoContext(ctx, "clusterer tick", "battles_created", stats.BattlesCreated,
			"battles_extended", stats.BattlesExtended, "processed", stats.ProcessedKillmails,
			"ignored", stats.IgnoredKillmails)
	})
	if err != nil {
		return nil, fmt.Errorf("register clusterer cron job: %w", err)
	}

	return s, nil
}

// Start begins the cron scheduler. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	slog.Info("clusterer scheduler started")
}

// Stop drains in-flight ticks and stops the scheduler. The clusterer tick
// is never cancellable mid-transaction, per spec.md §5, so Stop only
// waits for the cron scheduler's own drain, which never interrupts a
// running job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("clusterer scheduler stopped")
}
