package actions

import (
	"context"
	"errors"
	"time"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

type PlunderResult struct {
	Stolen         int64 `json:"stolen"`
	DefenderReward int64 `json:"defender_reward"`
	NewBalance     int64 `json:"gems"`
	PlundersLeft   int   `json:"plunders_left"`
	EnergyLeft     int   `json:"energy"`
}

// Plunder steals part of a miner's unrealized reward. Both players are
// checked against a snapshot first, then the attacker's attempt is reserved,
// then the defender's adjustment is applied, then the attacker is credited.
// A defender that stopped mining in between hands the attempt back.
func (s *Service) Plunder(baseContext context.Context, attackerID string, defenderID string) (result PlunderResult, err error) {
	ctx, span := utils.StartSpan(baseContext, "plunder")
	defer span.End()
	defer func() { s.metrics.action(ctx, "plunder", err) }()

	span.SetAttributes(
		attribute.String("attacker", attackerID),
		attribute.String("defender", defenderID),
	)

	if attackerID == defenderID {
		return PlunderResult{}, rules.ErrSelfTarget
	}

	for _, id := range []string{attackerID, defenderID} {
		if err := s.players.EnsureExists(ctx, id); err != nil {
			utils.FailSpan(ctx, err)
			return PlunderResult{}, err
		}
	}

	now := s.clock.Now()
	today := rules.Today(now)

	// Run every check against a snapshot before spending anything, so a
	// doomed plunder never holds the attacker's energy or daily count. The
	// updates below check again for anything that changed since.
	attacker, err := s.players.Get(ctx, attackerID)
	if err != nil {
		utils.FailSpan(ctx, err)
		return PlunderResult{}, err
	}
	defender, err := s.players.Get(ctx, defenderID)
	if err != nil {
		utils.FailSpan(ctx, err)
		return PlunderResult{}, err
	}
	if err := canPlunder(&attacker, today); err != nil {
		return PlunderResult{}, err
	}
	if err := plunderable(defender, now); err != nil {
		return PlunderResult{}, err
	}

	_, attacker, err = s.players.AtomicUpdate(ctx, attackerID, func(stats *models.PlayerStats) error {
		if err := canPlunder(stats, today); err != nil {
			return err
		}

		stats.Energy -= rules.PlunderEnergyCost
		stats.PlunderCountToday++
		return nil
	})
	if err != nil {
		if !rules.IsPrecondition(err) {
			utils.FailSpan(ctx, err)
		}
		return PlunderResult{}, err
	}

	var base, steal int64
	_, _, err = s.players.AtomicUpdate(ctx, defenderID, func(stats *models.PlayerStats) error {
		if err := plunderable(*stats, now); err != nil {
			return err
		}

		base = rules.MiningReward(*stats.MiningStartedAt, now)
		steal = rules.StealAmount(base)
		stats.PendingRewardAdjustment -= steal
		return nil
	})
	if err != nil {
		if refundErr := s.refundPlunder(ctx, attackerID, today); refundErr != nil {
			utils.FailSpan(ctx, refundErr)
			return PlunderResult{}, s.inconsistent(ctx, models.Reconciliation{
				Kind:           models.ReconcilePlunderRefund,
				PlayerID:       attackerID,
				CounterpartyID: defenderID,
			}, errors.Join(err, refundErr))
		}
		if !rules.IsPrecondition(err) {
			utils.FailSpan(ctx, err)
		}
		return PlunderResult{}, err
	}

	balance, err := s.ledger.Credit(ctx, attackerID, steal, rules.ReasonPlunder)
	if err != nil {
		utils.FailSpan(ctx, err)
		return PlunderResult{}, s.inconsistent(ctx, models.Reconciliation{
			Kind:           models.ReconcilePlunderCredit,
			PlayerID:       attackerID,
			CounterpartyID: defenderID,
			Amount:         steal,
		}, err)
	}
	s.metrics.credited(ctx, rules.ReasonPlunder, steal)

	log.Info().
		Str("attacker", attackerID).
		Str("defender", defenderID).
		Int64("base", base).
		Int64("stolen", steal).
		Msg("Plundered")

	return PlunderResult{
		Stolen:         steal,
		DefenderReward: base,
		NewBalance:     balance,
		PlundersLeft:   rules.MaxPlundersPerDay - attacker.PlunderCountToday,
		EnergyLeft:     attacker.Energy,
	}, nil
}

// canPlunder rolls the daily count over and checks the attacker's limits.
func canPlunder(attacker *models.PlayerStats, today string) error {
	if attacker.PlunderResetDate != today {
		attacker.PlunderCountToday = 0
		attacker.PlunderResetDate = today
	}
	if attacker.PlunderCountToday >= rules.MaxPlundersPerDay {
		return rules.ErrDailyLimitReached
	}
	if attacker.Energy < rules.PlunderEnergyCost {
		return rules.ErrInsufficientEnergy
	}
	return nil
}

func plunderable(defender models.PlayerStats, now time.Time) error {
	if !defender.Mining() {
		return rules.ErrDefenderNotMining
	}
	if rules.MiningReward(*defender.MiningStartedAt, now) <= 0 {
		return rules.ErrInsufficientMiningProgress
	}
	return nil
}

// refundPlunder reverses a reserved attempt after the defender rejected it.
// The reserved energy goes back even when a regen tick filled the attacker
// in the meantime.
func (s *Service) refundPlunder(ctx context.Context, attackerID string, today string) error {
	_, _, err := s.players.AtomicUpdate(ctx, attackerID, func(stats *models.PlayerStats) error {
		stats.Energy += rules.PlunderEnergyCost
		if stats.PlunderResetDate == today && stats.PlunderCountToday > 0 {
			stats.PlunderCountToday--
		}
		return nil
	})
	return err
}
