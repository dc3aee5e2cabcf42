package actions

import (
	"context"
	"time"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

type MiningResult struct {
	Elapsed    time.Duration `json:"elapsed"`
	BaseReward int64         `json:"base"`
	Adjustment int64         `json:"adjustment"`
	Payout     int64         `json:"payout"`
	NewBalance int64         `json:"gems"`
}

// StartMining opens a session. atMine is the location check done by the
// caller.
func (s *Service) StartMining(baseContext context.Context, playerID string, atMine bool) (stats models.PlayerStats, err error) {
	ctx, span := utils.StartSpan(baseContext, "start-mining")
	defer span.End()
	defer func() { s.metrics.action(ctx, "mine-start", err) }()

	span.SetAttributes(attribute.String("player", playerID))

	if !atMine {
		return models.PlayerStats{}, rules.ErrWrongLocation
	}

	if err := s.players.EnsureExists(ctx, playerID); err != nil {
		utils.FailSpan(ctx, err)
		return models.PlayerStats{}, err
	}

	now := s.clock.Now()
	_, next, err := s.players.AtomicUpdate(ctx, playerID, func(stats *models.PlayerStats) error {
		if stats.Mining() {
			return rules.ErrAlreadyMining
		}

		stats.MiningStartedAt = &now
		stats.PendingRewardAdjustment = 0
		return nil
	})
	if err != nil {
		if !rules.IsPrecondition(err) {
			utils.FailSpan(ctx, err)
		}
		return models.PlayerStats{}, err
	}

	log.Info().Str("player", playerID).Time("started", now).Msg("Started mining")
	return next, nil
}

// StopMining settles the session. The session is cleared first so a payout
// can never be claimed twice; a failed credit after that is reported as a
// partial commit.
func (s *Service) StopMining(baseContext context.Context, playerID string) (result MiningResult, err error) {
	ctx, span := utils.StartSpan(baseContext, "stop-mining")
	defer span.End()
	defer func() { s.metrics.action(ctx, "mine-stop", err) }()

	span.SetAttributes(attribute.String("player", playerID))

	if err := s.players.EnsureExists(ctx, playerID); err != nil {
		utils.FailSpan(ctx, err)
		return MiningResult{}, err
	}

	now := s.clock.Now()
	var started time.Time
	var adjustment int64
	_, _, err = s.players.AtomicUpdate(ctx, playerID, func(stats *models.PlayerStats) error {
		if !stats.Mining() {
			return rules.ErrNotMining
		}

		started = *stats.MiningStartedAt
		adjustment = stats.PendingRewardAdjustment
		stats.MiningStartedAt = nil
		stats.PendingRewardAdjustment = 0
		return nil
	})
	if err != nil {
		if !rules.IsPrecondition(err) {
			utils.FailSpan(ctx, err)
		}
		return MiningResult{}, err
	}

	result = MiningResult{
		Elapsed:    rules.MiningElapsed(started, now),
		BaseReward: rules.MiningReward(started, now),
		Adjustment: adjustment,
	}
	result.Payout = rules.Payout(result.BaseReward, adjustment)

	span.SetAttributes(
		attribute.Int64("base", result.BaseReward),
		attribute.Int64("payout", result.Payout),
	)

	if result.Payout > 0 {
		balance, err := s.ledger.Credit(ctx, playerID, result.Payout, rules.ReasonMining)
		if err != nil {
			utils.FailSpan(ctx, err)
			return result, s.inconsistent(ctx, models.Reconciliation{
				Kind:     models.ReconcileMiningPayout,
				PlayerID: playerID,
				Amount:   result.Payout,
			}, err)
		}
		result.NewBalance = balance
		s.metrics.credited(ctx, rules.ReasonMining, result.Payout)
	} else if balance, err := s.ledger.GetBalance(ctx, playerID); err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("Error reading balance after mining")
	} else {
		result.NewBalance = balance.Balance
	}

	log.Info().
		Str("player", playerID).
		Dur("elapsed", result.Elapsed).
		Int64("base", result.BaseReward).
		Int64("adjustment", adjustment).
		Int64("payout", result.Payout).
		Msg("Stopped mining")
	return result, nil
}
