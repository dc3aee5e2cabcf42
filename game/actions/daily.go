package actions

import (
	"context"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

type DailyResult struct {
	Base       int64 `json:"base"`
	Bonus      int64 `json:"bonus"`
	Total      int64 `json:"total"`
	Streak     int   `json:"streak"`
	NewBalance int64 `json:"gems"`
}

func (s *Service) ClaimDaily(baseContext context.Context, playerID string) (result DailyResult, err error) {
	ctx, span := utils.StartSpan(baseContext, "claim-daily")
	defer span.End()
	defer func() { s.metrics.action(ctx, "daily", err) }()

	span.SetAttributes(attribute.String("player", playerID))

	if err := s.players.EnsureExists(ctx, playerID); err != nil {
		utils.FailSpan(ctx, err)
		return DailyResult{}, err
	}

	now := s.clock.Now()
	base := int64(s.roll(rules.DailyMaxRoll) + 1)

	_, next, err := s.players.AtomicUpdate(ctx, playerID, func(stats *models.PlayerStats) error {
		if !rules.DailyReady(stats.LastDailyAt, now) {
			return rules.ErrDailyNotReady
		}

		stats.DailyStreak = rules.NextStreak(stats.DailyStreak, stats.LastDailyAt, now)
		stats.LastDailyAt = &now
		return nil
	})
	if err != nil {
		if !rules.IsPrecondition(err) {
			utils.FailSpan(ctx, err)
		}
		return DailyResult{}, err
	}

	result = DailyResult{
		Base:   base,
		Bonus:  rules.DailyBonus(base, next.DailyStreak),
		Streak: next.DailyStreak,
	}
	result.Total = result.Base + result.Bonus

	balance, err := s.ledger.Credit(ctx, playerID, result.Total, rules.ReasonDaily)
	if err != nil {
		utils.FailSpan(ctx, err)
		return result, s.inconsistent(ctx, models.Reconciliation{
			Kind:     models.ReconcileDailyCredit,
			PlayerID: playerID,
			Amount:   result.Total,
		}, err)
	}
	result.NewBalance = balance
	s.metrics.credited(ctx, rules.ReasonDaily, result.Total)

	log.Info().Str("player", playerID).Int64("total", result.Total).Int("streak", result.Streak).Msg("Claimed daily reward")
	return result, nil
}
