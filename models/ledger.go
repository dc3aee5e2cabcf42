package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Account struct {
	BaseModel

	PlayerID    string `gorm:"uniqueIndex;size:64" json:"player"`
	Balance     int64  `gorm:"default:0" json:"gems"`
	TotalEarned int64  `gorm:"default:0" json:"total_earned"`
}

// Transaction is an append-only ledger entry. Balance always equals the sum
// of a player's deltas.
type Transaction struct {
	BaseModel

	GUID     uuid.UUID `gorm:"uniqueIndex;size:36" json:"guid"`
	PlayerID string    `gorm:"index;size:64" json:"-"`
	Delta    int64     `json:"gems"`
	Reason   string    `gorm:"size:255" json:"reason"`
}

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if transaction.GUID == uuid.Nil {
		transaction.GUID = uuid.New()
	}
	return
}

type Balance struct {
	Balance     int64 `json:"gems"`
	TotalEarned int64 `json:"total_earned"`
}

// BalanceObserver is told about every committed balance change.
type BalanceObserver interface {
	UpdateScore(ctx context.Context, playerID string, balance int64) error
}

type Ledger struct {
	db       *gorm.DB
	clock    clockwork.Clock
	observer BalanceObserver
}

func NewLedger(dbase *gorm.DB, clock clockwork.Clock) *Ledger {
	return &Ledger{db: dbase, clock: clock}
}

func (l *Ledger) WithObserver(observer BalanceObserver) *Ledger {
	l.observer = observer
	return l
}

func ensureAccount(tx *gorm.DB, playerID string, now time.Time) error {
	account := Account{BaseModel: BaseModel{CreatedAt: now, UpdatedAt: now}, PlayerID: playerID}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error
}

func readBalance(tx *gorm.DB, playerID string) (Balance, error) {
	var account Account
	if err := tx.Where("player_id = ?", playerID).First(&account).Error; err != nil {
		return Balance{}, err
	}
	return Balance{Balance: account.Balance, TotalEarned: account.TotalEarned}, nil
}

func (l *Ledger) notify(ctx context.Context, playerID string, balance int64) {
	if l.observer == nil {
		return
	}

	if err := l.observer.UpdateScore(ctx, playerID, balance); err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("Error mirroring balance")
	}
}

func (l *Ledger) Credit(baseContext context.Context, playerID string, amount int64, reason string) (int64, error) {
	ctx, span := Tracer.Start(baseContext, "ledger.credit")
	defer span.End()

	span.SetAttributes(
		attribute.String("player", playerID),
		attribute.Int64("amount", amount),
	)

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	now := l.clock.Now()
	var balance Balance
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAccount(tx, playerID, now); err != nil {
			return err
		}

		if err := tx.Model(&Account{}).Where("player_id = ?", playerID).Updates(map[string]any{
			"balance":      gorm.Expr("balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}

		entry := Transaction{BaseModel: BaseModel{CreatedAt: now, UpdatedAt: now}, PlayerID: playerID, Delta: amount, Reason: reason}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var err error
		balance, err = readBalance(tx, playerID)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("player", playerID).Int64("amount", amount).Msg("Error crediting gems")
		return 0, fmt.Errorf("models: credit %s: %w", playerID, err)
	}

	log.Info().Str("player", playerID).Int64("amount", amount).Str("reason", reason).Int64("balance", balance.Balance).Msg("Credited gems")
	l.notify(ctx, playerID, balance.Balance)
	return balance.Balance, nil
}

func (l *Ledger) Debit(baseContext context.Context, playerID string, amount int64, reason string) (int64, error) {
	ctx, span := Tracer.Start(baseContext, "ledger.debit")
	defer span.End()

	span.SetAttributes(
		attribute.String("player", playerID),
		attribute.Int64("amount", amount),
	)

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	now := l.clock.Now()
	var balance Balance
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAccount(tx, playerID, now); err != nil {
			return err
		}

		res := tx.Model(&Account{}).
			Where("player_id = ? AND balance >= ?", playerID, amount).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		entry := Transaction{BaseModel: BaseModel{CreatedAt: now, UpdatedAt: now}, PlayerID: playerID, Delta: -amount, Reason: reason}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var err error
		balance, err = readBalance(tx, playerID)
		return err
	})
	if errors.Is(err, ErrInsufficientFunds) {
		return 0, err
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("player", playerID).Int64("amount", amount).Msg("Error debiting gems")
		return 0, fmt.Errorf("models: debit %s: %w", playerID, err)
	}

	log.Info().Str("player", playerID).Int64("amount", amount).Str("reason", reason).Int64("balance", balance.Balance).Msg("Debited gems")
	l.notify(ctx, playerID, balance.Balance)
	return balance.Balance, nil
}

func (l *Ledger) GetBalance(baseContext context.Context, playerID string) (Balance, error) {
	ctx, span := Tracer.Start(baseContext, "ledger.get-balance")
	defer span.End()

	var balance Balance
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAccount(tx, playerID, l.clock.Now()); err != nil {
			return err
		}

		var err error
		balance, err = readBalance(tx, playerID)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Balance{}, fmt.Errorf("models: balance %s: %w", playerID, err)
	}

	return balance, nil
}

func (l *Ledger) Leaderboard(baseContext context.Context, limit int) ([]Account, error) {
	ctx, span := Tracer.Start(baseContext, "ledger.leaderboard")
	defer span.End()

	var accounts []Account
	if err := l.db.WithContext(ctx).
		Order("balance desc").
		Order("created_at asc").
		Order("id asc").
		Limit(limit).
		Find(&accounts).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("models: leaderboard: %w", err)
	}

	return accounts, nil
}

func (l *Ledger) History(baseContext context.Context, playerID string, limit int) ([]Transaction, error) {
	ctx, span := Tracer.Start(baseContext, "ledger.history")
	defer span.End()

	var entries []Transaction
	if err := l.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("id desc").
		Limit(limit).
		Find(&entries).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("models: history %s: %w", playerID, err)
	}

	return entries, nil
}
