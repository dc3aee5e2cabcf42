// Package actions implements the player-facing economy actions: mining,
// plunder, daily rewards and transfers. Every player record change goes
// through PlayerStore.AtomicUpdate and every gem movement through the Ledger.
package actions

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type PlayerStore interface {
	EnsureExists(ctx context.Context, playerID string) error
	Get(ctx context.Context, playerID string) (models.PlayerStats, error)
	AtomicUpdate(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, models.PlayerStats, error)
}

type Ledger interface {
	Credit(ctx context.Context, playerID string, amount int64, reason string) (int64, error)
	Debit(ctx context.Context, playerID string, amount int64, reason string) (int64, error)
	GetBalance(ctx context.Context, playerID string) (models.Balance, error)
}

type ReconciliationLog interface {
	Record(ctx context.Context, rec models.Reconciliation) error
}

type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Service struct {
	players  PlayerStore
	ledger   Ledger
	recs     ReconciliationLog
	cooldown Cooldown
	clock    clockwork.Clock
	roll     func(n int) int
	metrics  *metrics
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithCooldown(cooldown Cooldown) Option {
	return func(s *Service) { s.cooldown = cooldown }
}

// WithRoller replaces the daily reward roll. roll(n) must return a value in
// [0, n).
func WithRoller(roll func(n int) int) Option {
	return func(s *Service) { s.roll = roll }
}

func NewService(players PlayerStore, ledger Ledger, recs ReconciliationLog, opts ...Option) *Service {
	s := &Service{
		players: players,
		ledger:  ledger,
		recs:    recs,
		clock:   clockwork.NewRealClock(),
		roll:    rand.Intn,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Balance is a read-only view used by the transport.
func (s *Service) Balance(ctx context.Context, playerID string) (models.Balance, error) {
	return s.ledger.GetBalance(ctx, playerID)
}

func (s *Service) Stats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	if err := s.players.EnsureExists(ctx, playerID); err != nil {
		return models.PlayerStats{}, err
	}
	return s.players.Get(ctx, playerID)
}

// inconsistent reports a cross-record operation that committed only in part.
// The record is written best effort; the returned error is never retried.
func (s *Service) inconsistent(ctx context.Context, rec models.Reconciliation, cause error) error {
	log.Error().
		Err(cause).
		Str("reconciliation", "required").
		Str("kind", rec.Kind).
		Str("player", rec.PlayerID).
		Str("counterparty", rec.CounterpartyID).
		Int64("amount", rec.Amount).
		Msg("Partial commit")

	rec.Detail = cause.Error()
	if s.recs != nil {
		if err := s.recs.Record(ctx, rec); err != nil {
			log.Error().Err(err).Str("kind", rec.Kind).Str("player", rec.PlayerID).Msg("Error recording reconciliation")
		}
	}

	s.metrics.inconsistency(ctx, rec.Kind)
	return fmt.Errorf("%w: %s: %w", rules.ErrInconsistent, rec.Kind, cause)
}
