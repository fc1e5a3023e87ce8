package timeseries

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	battlestore "github.com/battlescope/battlescope/internal/battle/store"

	"go.mongodb.org/mongo-driver/bson"
)

// Service rolls a committed battle into the hour/day/month timeseries
// buckets. It is invoked after the clusterer commits a battle, never
// before — an identical generalization of the teacher's
// UpdateTimeseries(ctx, killmail, zkb) to BattleScope's one-battle-many-
// participants shape.
type Service struct {
	repo   *Repository
	logger *slog.Logger
}

func NewService(repo *Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordBattle updates every period's system/alliance/corporation/ship-
// type buckets for one committed battle. Failures are logged and
// skipped, per spec.md §10's non-goal note that this projection never
// gates a write-path invariant.
func (s *Service) RecordBattle(ctx context.Context, battle battlestore.Battle, participants []battlestore.Participant) {
	iskValue := iskToFloat(battle.TotalIskDestroyed)

	for _, period := range Periods {
		timestamp := TruncateTimestamp(battle.StartTime, period)

		if err := s.repo.Increment(ctx,
			bson.M{"period": period, "timestamp": timestamp, "system_id": battle.SystemID},
			bson.M{"kill_count": battle.TotalKills, "total_isk_destroyed": iskValue},
		); err != nil {
			s.logger.ErrorContext(ctx, "timeseries system increment failed", "battle_id", battle.ID, "error", err)
		}

		s.recordEntityBuckets(ctx, period, timestamp, participants)
		s.recordShipTypeBuckets(ctx, period, timestamp, participants)
	}
}

// recordEntityBuckets updates the alliance- and corporation-level
// buckets for every participant, crediting kills to attackers and
// losses to victims, mirroring updateAllianceAggregation/
// updateCorporationAggregation's isVictim split.
func (s *Service) recordEntityBuckets(ctx context.Context, period string, timestamp time.Time, participants []battlestore.Participant) {
	for _, p := range participants {
		increments := bson.M{}
		if p.IsVictim {
			increments["losses"] = 1
		} else {
			increments["kill_count"] = 1
		}

		if p.AllianceID != nil {
			if err := s.repo.Increment(ctx,
				bson.M{"period": period, "timestamp": timestamp, "alliance_id": *p.AllianceID},
				increments,
			); err != nil {
				s.logger.ErrorContext(ctx, "timeseries alliance increment failed", "alliance_id", *p.AllianceID, "error", err)
			}
		}
		if p.CorpID != nil {
			if err := s.repo.Increment(ctx,
				bson.M{"period": period, "timestamp": timestamp, "corporation_id": *p.CorpID},
				increments,
			); err != nil {
				s.logger.ErrorContext(ctx, "timeseries corporation increment failed", "corp_id", *p.CorpID, "error", err)
			}
		}
	}
}

// recordShipTypeBuckets updates the destroyed-hull counter for every
// victim's ship type, mirroring updateShipTypeAggregation.
func (s *Service) recordShipTypeBuckets(ctx context.Context, period string, timestamp time.Time, participants []battlestore.Participant) {
	for _, p := range participants {
		if !p.IsVictim || p.ShipTypeID == nil {
			continue
		}
		if err := s.repo.Increment(ctx,
			bson.M{"period": period, "timestamp": timestamp, "ship_type_id": *p.ShipTypeID},
			bson.M{"kill_count": 1},
		); err != nil {
			s.logger.ErrorContext(ctx, "timeseries ship type increment failed", "ship_type_id", *p.ShipTypeID, "error", err)
		}
	}
}

func iskToFloat(iskStr string) float64 {
	value, ok := new(big.Int).SetString(iskStr, 10)
	if !ok {
		return 0
	}
	f := new(big.Float).SetInt(value)
	result, _ := f.Float64()
	return result
}
