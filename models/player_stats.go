package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultMaxHP     = 1000
	DefaultMaxEnergy = 3
)

// PlayerStats is the durable per-player game state. MiningStartedAt is set
// only while a mining session is active.
type PlayerStats struct {
	BaseModel

	PlayerID                string     `gorm:"column:player_id;uniqueIndex;size:64" json:"player"`
	HP                      int        `gorm:"column:hp" json:"hp"`
	MaxHP                   int        `gorm:"column:max_hp" json:"max_hp"`
	Energy                  int        `gorm:"column:energy" json:"energy"`
	MaxEnergy               int        `gorm:"column:max_energy" json:"max_energy"`
	LastEnergyRegenAt       time.Time  `gorm:"column:last_energy_regen_at" json:"last_energy_regen"`
	MiningStartedAt         *time.Time `gorm:"column:mining_started_at" json:"mining_started,omitempty"`
	PendingRewardAdjustment int64      `gorm:"column:pending_reward_adjustment" json:"pending_adjustment"`
	PlunderCountToday       int        `gorm:"column:plunder_count_today" json:"plunders_today"`
	PlunderResetDate        string     `gorm:"column:plunder_reset_date;size:10" json:"-"`
	DailyStreak             int        `gorm:"column:daily_streak" json:"daily_streak"`
	LastDailyAt             *time.Time `gorm:"column:last_daily_at" json:"last_daily,omitempty"`
	Version                 uint64     `gorm:"column:version" json:"-"`
}

func NewPlayerStats(playerID string, now time.Time) PlayerStats {
	return PlayerStats{
		BaseModel:         BaseModel{CreatedAt: now, UpdatedAt: now},
		PlayerID:          playerID,
		HP:                DefaultMaxHP,
		MaxHP:             DefaultMaxHP,
		Energy:            DefaultMaxEnergy,
		MaxEnergy:         DefaultMaxEnergy,
		LastEnergyRegenAt: now,
	}
}

func (stats PlayerStats) Mining() bool {
	return stats.MiningStartedAt != nil
}

func (stats *PlayerStats) assignments() map[string]any {
	return map[string]any{
		"hp":                        stats.HP,
		"max_hp":                    stats.MaxHP,
		"energy":                    stats.Energy,
		"max_energy":                stats.MaxEnergy,
		"last_energy_regen_at":      stats.LastEnergyRegenAt,
		"mining_started_at":         stats.MiningStartedAt,
		"pending_reward_adjustment": stats.PendingRewardAdjustment,
		"plunder_count_today":       stats.PlunderCountToday,
		"plunder_reset_date":        stats.PlunderResetDate,
		"daily_streak":              stats.DailyStreak,
		"last_daily_at":             stats.LastDailyAt,
		"version":                   stats.Version,
		"updated_at":                stats.UpdatedAt,
	}
}

type PlayerStore struct {
	db    *gorm.DB
	clock clockwork.Clock
}

func NewPlayerStore(dbase *gorm.DB, clock clockwork.Clock) *PlayerStore {
	return &PlayerStore{db: dbase, clock: clock}
}

func (s *PlayerStore) EnsureExists(baseContext context.Context, playerID string) error {
	ctx, span := Tracer.Start(baseContext, "player-stats.ensure-exists")
	defer span.End()

	stats := NewPlayerStats(playerID, s.clock.Now())
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&stats).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("player", playerID).Msg("Error ensuring player stats")
		return fmt.Errorf("models: ensure player %s: %w", playerID, err)
	}

	return nil
}

func (s *PlayerStore) Get(baseContext context.Context, playerID string) (PlayerStats, error) {
	ctx, span := Tracer.Start(baseContext, "player-stats.get")
	defer span.End()

	var stats PlayerStats
	if err := s.db.WithContext(ctx).Where("player_id = ?", playerID).First(&stats).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PlayerStats{}, ErrPlayerNotFound
		}
		return PlayerStats{}, fmt.Errorf("models: load player %s: %w", playerID, err)
	}

	return stats, nil
}

// AtomicUpdate locks the player's row, hands a copy to fn and writes the
// result back guarded by the row version. When fn returns an error nothing
// is written and that error is returned unchanged. fn may only mutate the
// record it is given and must replace, not modify, the pointer fields.
func (s *PlayerStore) AtomicUpdate(baseContext context.Context, playerID string, fn func(*PlayerStats) error) (PlayerStats, PlayerStats, error) {
	ctx, span := Tracer.Start(baseContext, "player-stats.atomic-update")
	defer span.End()

	span.SetAttributes(attribute.String("player", playerID))

	var prev, next PlayerStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current PlayerStats
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("player_id = ?", playerID).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlayerNotFound
			}
			return err
		}

		prev, next = current, current
		if err := fn(&next); err != nil {
			next = current
			return err
		}

		next.ID = current.ID
		next.PlayerID = current.PlayerID
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1
		next.UpdatedAt = s.clock.Now()

		res := tx.Model(&PlayerStats{}).
			Where("id = ? AND version = ?", current.ID, current.Version).
			Updates(next.assignments())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrConflict
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return prev, prev, err
	}

	return prev, next, nil
}

func (s *PlayerStore) RegenCandidates(baseContext context.Context) ([]string, error) {
	ctx, span := Tracer.Start(baseContext, "player-stats.regen-candidates")
	defer span.End()

	var ids []string
	if err := s.db.WithContext(ctx).Model(&PlayerStats{}).
		Where("energy < max_energy").
		Order("id asc").
		Pluck("player_id", &ids).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("models: regen candidates: %w", err)
	}

	return ids, nil
}
