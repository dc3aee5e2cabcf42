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
)

type Weapon struct {
	BaseModel

	PlayerID   string    `gorm:"index;size:64" json:"-"`
	Name       string    `gorm:"size:128" json:"name"`
	Attack     int       `json:"attack"`
	AcquiredAt time.Time `gorm:"index" json:"acquired"`
}

type WeaponInventory struct {
	db    *gorm.DB
	clock clockwork.Clock
}

func NewWeaponInventory(dbase *gorm.DB, clock clockwork.Clock) *WeaponInventory {
	return &WeaponInventory{db: dbase, clock: clock}
}

// LatestWeapon returns the most recently acquired weapon, or nil if the
// player owns none.
func (w *WeaponInventory) LatestWeapon(baseContext context.Context, playerID string) (*Weapon, error) {
	ctx, span := Tracer.Start(baseContext, "weapons.latest")
	defer span.End()

	span.SetAttributes(attribute.String("player", playerID))

	var weapon Weapon
	err := w.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("acquired_at desc").
		Order("id desc").
		First(&weapon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("models: latest weapon %s: %w", playerID, err)
	}

	return &weapon, nil
}

func (w *WeaponInventory) Grant(baseContext context.Context, playerID string, name string, attack int) (*Weapon, error) {
	ctx, span := Tracer.Start(baseContext, "weapons.grant")
	defer span.End()

	now := w.clock.Now()
	weapon := &Weapon{
		BaseModel:  BaseModel{CreatedAt: now, UpdatedAt: now},
		PlayerID:   playerID,
		Name:       name,
		Attack:     attack,
		AcquiredAt: now,
	}
	if err := w.db.WithContext(ctx).Create(weapon).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("models: grant weapon %s: %w", playerID, err)
	}

	log.Info().Str("player", playerID).Str("weapon", name).Int("attack", attack).Msg("Granted weapon")
	return weapon, nil
}
