package charstats

import (
	"context"
	"log/slog"

	battlestore "github.com/battlescope/battlescope/internal/battle/store"
)

// Service updates notable-ship rollups from committed battle
// participants. It is invoked after the clusterer commits a battle plan
// and never participates in cluster membership or commit decisions
// itself (spec.md §10's non-goal note).
type Service struct {
	repo   *Repository
	lookup ShipCategoryLookup
	logger *slog.Logger
}

func NewService(repo *Repository, lookup ShipCategoryLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, lookup: lookup, logger: logger}
}

// RecordParticipants updates the notable-ship rollup for every
// participant flying a tracked hull. Failures are logged and skipped
// rather than propagated, since this is best-effort read-surface
// enrichment, not a write-path invariant.
func (s *Service) RecordParticipants(ctx context.Context, participants []battlestore.Participant) {
	for _, p := range participants {
		if p.ShipTypeID == nil {
			continue
		}
		category, ok := s.lookup.ShipCategory(*p.ShipTypeID)
		if !ok {
			continue
		}
		if err := s.repo.UpdateLastShipUsed(ctx, p.CharacterID, category, *p.ShipTypeID); err != nil {
			s.logger.ErrorContext(ctx, "charstats update failed",
				"character_id", p.CharacterID, "category", category, "error", err)
		}
	}
}
