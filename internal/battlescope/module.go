// Package battlescope composes the clustering pipeline's components
// (C0-C5) into a single module.Module, the way internal/zkillboard.Module
// composes the teacher's RedisQ ingestion pipeline: one module struct
// holding every service, wired once in NewModule, started/stopped as a
// unit.
package battlescope

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	battlestore "github.com/battlescope/battlescope/internal/battle/store"
	battleprojection "github.com/battlescope/battlescope/internal/battle/projection"
	battleroutes "github.com/battlescope/battlescope/internal/battle/routes"
	"github.com/battlescope/battlescope/internal/battle/timeseries"
	"github.com/battlescope/battlescope/internal/cluster/clusterer"
	"github.com/battlescope/battlescope/internal/events"
	"github.com/battlescope/battlescope/internal/feed"
	"github.com/battlescope/battlescope/internal/killmail/charstats"
	"github.com/battlescope/battlescope/internal/killmail/enrichment"
	"github.com/battlescope/battlescope/internal/killmail/ingest"
	killstore "github.com/battlescope/battlescope/internal/killmail/store"
	"github.com/battlescope/battlescope/internal/ruleset"
	rulesetroutes "github.com/battlescope/battlescope/internal/ruleset/routes"
	"github.com/battlescope/battlescope/internal/spacetype"
	"github.com/battlescope/battlescope/pkg/config"
	"github.com/battlescope/battlescope/pkg/database"
	"github.com/battlescope/battlescope/pkg/evegateway"
	"github.com/battlescope/battlescope/pkg/module"
)

// Module composes the full battle-clustering pipeline: feed ingestion
// (C0/C1), out-of-band enrichment (C2), clustering (C3/C4), side
// assignment, and the read-side battle/ruleset APIs (C5).
type Module struct {
	*module.BaseModule

	killmailStore *killstore.Store
	battleStore   *battlestore.Store
	rulesetRepo   *ruleset.Repository
	rulesetCache  *ruleset.Cache

	enrichmentRepo   *enrichment.Repository
	enrichmentWorker *enrichment.Worker

	charStatsRepo *charstats.Repository
	charStats     *charstats.Service

	timeseriesRepo *timeseries.Repository
	timeseries     *timeseries.Service

	clusterer *clusterer.Service
	scheduler *clusterer.Scheduler

	feedConsumer *feed.Consumer
	statePersist *feed.StatePersister

	battleRoutes  *battleroutes.Routes
	rulesetRoutes *rulesetroutes.Routes

	stopConsumer context.CancelFunc
}

// NewModule wires every component fresh, following spec.md §3's storage
// model and §11's default knobs (via pkg/config.LoadClusteringConfig).
func NewModule(mongodb *database.MongoDB, redis *database.Redis, esi *evegateway.Client) (*Module, error) {
	base := module.NewBaseModule("battlescope", mongodb, redis)

	killmailStore := killstore.NewStore(mongodb)
	battleStore := battlestore.NewStore(mongodb)

	rulesetRepo := ruleset.NewRepository(mongodb)
	rulesetCache := ruleset.NewCache(ruleset.Default())

	var publisher events.Publisher = events.NoopPublisher{}
	if redis != nil {
		publisher = events.NewLoggingPublisher(events.NewRedisPublisher(redis), slog.Default())
	}

	enrichmentRepo := enrichment.NewRepository(mongodb)
	esiFetcher := enrichment.NewESIFetcher(esi.Killmails)
	enrichmentThrottle := time.Duration(config.GetEnrichmentThrottleMs()) * time.Millisecond
	enrichmentWorker := enrichment.NewWorker(enrichmentRepo, esiFetcher, enrichmentThrottle).WithPublisher(publisher)

	// No SDE-backed type table is wired (see DESIGN.md's internal/sde
	// deletion entry), so the static lookup starts empty: charstats
	// tracks nothing until a real shipTypeID->category table is supplied.
	charStatsRepo := charstats.NewRepository(mongodb)
	charStatsService := charstats.NewService(charStatsRepo, charstats.StaticCategoryLookup{}, slog.Default())

	timeseriesRepo := timeseries.NewRepository(mongodb)
	timeseriesService := timeseries.NewService(timeseriesRepo, slog.Default())

	classifier := spacetype.NewClassifier(nil)

	clusterCfg := config.LoadClusteringConfig()
	clustererParams := clusterer.Params{
		Window:          time.Duration(clusterCfg.WindowMinutes) * time.Minute,
		GapMax:          time.Duration(clusterCfg.GapMaxMinutes) * time.Minute,
		MinKills:        clusterCfg.MinKills,
		ProcessingDelay: time.Duration(clusterCfg.ProcessingDelayMinutes) * time.Minute,
		BatchSize:       clusterCfg.BatchSize,
	}
	clustererService := clusterer.NewService(killmailStore, battleStore, rulesetCache, classifier, clustererParams).
		WithSides(true).
		WithCharStats(charStatsService).
		WithTimeseries(timeseriesService).
		WithPublisher(publisher)

	tickSpec := fmt.Sprintf("@every %s", config.GetClusterTickInterval())
	scheduler, err := clusterer.NewScheduler(clustererService, tickSpec)
	if err != nil {
		return nil, err
	}

	sink := ingest.NewSink(killmailStore, enrichmentWorker, publisher, classifier, slog.Default())
	httpSource := feed.NewHTTPSource(http.DefaultClient, config.GetFeedEndpoint(), config.GetFeedQueueID())
	ttwMin := config.GetPollIntervalMs() / 1000
	if ttwMin < 1 {
		ttwMin = 1
	}
	consumer := feed.NewConsumer(httpSource, sink, ttwMin, ttwMin*10, 5)
	statePersist := feed.NewStatePersister(mongodb, config.GetFeedQueueID(), consumer, 30*time.Second)

	queries := battleprojection.NewQueries(
		battleStore, killmailStore, enrichmentRepo,
		mongodb.Database.Collection(battlestore.BattlesCollection),
		mongodb.Database.Collection(battlestore.KillmailsCollection),
		mongodb.Database.Collection(battlestore.ParticipantsCollection),
	)

	return &Module{
		BaseModule:       base,
		killmailStore:    killmailStore,
		battleStore:      battleStore,
		rulesetRepo:      rulesetRepo,
		rulesetCache:     rulesetCache,
		enrichmentRepo:   enrichmentRepo,
		enrichmentWorker: enrichmentWorker,
		charStatsRepo:    charStatsRepo,
		charStats:        charStatsService,
		timeseriesRepo:   timeseriesRepo,
		timeseries:       timeseriesService,
		clusterer:        clustererService,
		scheduler:        scheduler,
		feedConsumer:     consumer,
		statePersist:     statePersist,
		battleRoutes:     battleroutes.NewRoutes(queries, killmailStore, rulesetCache),
		rulesetRoutes:    rulesetroutes.NewRoutes(rulesetRepo, rulesetCache, rulesetroutes.NoopGuard{}),
	}, nil
}

// Initialize creates every collection's indexes and bootstraps the
// ruleset cache from its persisted document, following
// internal/zkillboard.Module.Initialize's per-repository CreateIndexes
// sequencing.
func (m *Module) Initialize(ctx context.Context) error {
	slog.Info("initializing battlescope module")

	for _, step := range []func(context.Context) error{
		m.killmailStore.CreateIndexes,
		m.battleStore.CreateIndexes,
		m.rulesetRepo.CreateIndexes,
		m.enrichmentRepo.CreateIndexes,
		m.charStatsRepo.CreateIndexes,
		m.timeseriesRepo.CreateIndexes,
		m.statePersist.CreateIndexes,
	} {
		if err := step(ctx); err != nil {
			return err
		}
	}

	rs, err := m.rulesetRepo.Bootstrap(ctx)
	if err != nil {
		return err
	}
	m.rulesetCache.Store(rs)

	slog.Info("battlescope module initialized")
	return nil
}

// Routes is a placeholder for chi.Router compatibility; routes are
// registered via RegisterRoutes against the huma API, per
// internal/zkillboard.Module's pattern.
func (m *Module) Routes(r chi.Router) {}

// RegisterRoutes registers the battle and ruleset HTTP surfaces.
func (m *Module) RegisterRoutes(api huma.API) error {
	slog.Info("registering battlescope routes")
	m.battleRoutes.RegisterRoutes(api)
	m.rulesetRoutes.RegisterRoutes(api)
	return nil
}

// StartBackgroundTasks starts the feed consumer, enrichment pass loop,
// consumer-state persister, and clusterer scheduler, gated behind
// BATTLESCOPE_ENABLED the same way internal/zkillboard gates its
// consumer behind ZKB_ENABLED.
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	if !config.GetBoolEnv("BATTLESCOPE_ENABLED", true) {
		slog.Info("BATTLESCOPE_ENABLED not true, background tasks ready for manual start")
		return
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	m.stopConsumer = cancel

	if err := m.feedConsumer.Start(consumerCtx); err != nil {
		slog.Error("failed to start feed consumer", "error", err)
	}

	go m.statePersist.Run(consumerCtx)
	go m.runEnrichmentLoop(consumerCtx)

	m.scheduler.Start()

	slog.Info("battlescope background tasks started")
}

// runEnrichmentLoop drives the enrichment worker's pending queue at a
// fixed cadence, independent of the feed consumer's own poll loop, per
// spec.md §4.2's "eventual, best-effort" framing for C2.
func (m *Module) runEnrichmentLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.enrichmentWorker.RunPass(ctx, 50); err != nil {
				slog.ErrorContext(ctx, "enrichment pass failed", "error", err)
			}
		}
	}
}

// Stop halts the consumer, scheduler and state persister, then the base
// module.
func (m *Module) Stop() {
	slog.Info("stopping battlescope module")

	if m.stopConsumer != nil {
		m.stopConsumer()
	}
	if err := m.feedConsumer.Stop(); err != nil {
		slog.Warn("failed to stop feed consumer gracefully", "error", err)
	}
	m.scheduler.Stop()

	m.BaseModule.Stop()
	slog.Info("battlescope module stopped")
}

// Health reports the feed consumer's snapshot, mirroring
// internal/zkillboard.Module.Health's shape.
func (m *Module) Health() map[string]interface{} {
	snapshot := m.feedConsumer.Snapshot()
	enabled := config.GetBoolEnv("BATTLESCOPE_ENABLED", true)
	return map[string]interface{}{
		"consumer_state":  snapshot.State,
		"killmails_found": snapshot.KillmailsFound,
		"null_responses":  snapshot.NullResponses,
		"http_errors":     snapshot.HTTPErrors,
		"sink_errors":     snapshot.SinkErrors,
		"healthy":         !enabled || !strings.EqualFold(snapshot.State, "stopped"),
	}
}
