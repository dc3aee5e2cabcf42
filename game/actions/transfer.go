package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

type TransferResult struct {
	Amount        int64 `json:"amount"`
	Tax           int64 `json:"tax"`
	Net           int64 `json:"net"`
	SenderBalance int64 `json:"gems"`
}

func transferKey(senderID string) string {
	return "transfer:" + senderID
}

// Transfer moves gems between players minus a tax. The sender is debited the
// full amount before the receiver is credited.
func (s *Service) Transfer(baseContext context.Context, senderID string, receiverID string, amount int64) (result TransferResult, err error) {
	ctx, span := utils.StartSpan(baseContext, "transfer")
	defer span.End()
	defer func() { s.metrics.action(ctx, "transfer", err) }()

	span.SetAttributes(
		attribute.String("sender", senderID),
		attribute.String("receiver", receiverID),
		attribute.Int64("amount", amount),
	)

	switch {
	case amount <= 0:
		return TransferResult{}, models.ErrInvalidAmount
	case amount > rules.TransferMax:
		return TransferResult{}, rules.ErrTransferTooLarge
	case senderID == receiverID:
		return TransferResult{}, rules.ErrSelfTarget
	}

	if s.cooldown != nil {
		ok, err := s.cooldown.Acquire(ctx, transferKey(senderID), rules.TransferCooldown)
		if err != nil {
			utils.FailSpan(ctx, err)
			return TransferResult{}, fmt.Errorf("transfer cooldown: %w", err)
		}
		if !ok {
			return TransferResult{}, rules.ErrCooldown
		}
	}

	result = TransferResult{Amount: amount, Tax: rules.TransferTax(amount)}
	result.Net = amount - result.Tax

	balance, err := s.ledger.Debit(ctx, senderID, amount, rules.ReasonTransferOut)
	if err != nil {
		if s.cooldown != nil {
			if releaseErr := s.cooldown.Release(ctx, transferKey(senderID)); releaseErr != nil {
				log.Warn().Err(releaseErr).Str("player", senderID).Msg("Error releasing transfer cooldown")
			}
		}
		if !errors.Is(err, models.ErrInsufficientFunds) {
			utils.FailSpan(ctx, err)
		}
		return TransferResult{}, err
	}
	result.SenderBalance = balance

	if result.Net > 0 {
		if _, err := s.ledger.Credit(ctx, receiverID, result.Net, rules.ReasonTransferIn); err != nil {
			utils.FailSpan(ctx, err)
			return result, s.inconsistent(ctx, models.Reconciliation{
				Kind:           models.ReconcileTransferCredit,
				PlayerID:       receiverID,
				CounterpartyID: senderID,
				Amount:         result.Net,
			}, err)
		}
	}

	log.Info().
		Str("sender", senderID).
		Str("receiver", receiverID).
		Int64("amount", amount).
		Int64("tax", result.Tax).
		Msg("Transferred gems")
	return result, nil
}
