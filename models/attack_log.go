package models

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

type AttackLog struct {
	BaseModel

	AttackerID string `gorm:"index;size:64" json:"attacker"`
	DefenderID string `gorm:"index;size:64" json:"defender"`
	Damage     int    `json:"damage"`
}

type AttackLogs struct {
	db    *gorm.DB
	clock clockwork.Clock
}

func NewAttackLogs(dbase *gorm.DB, clock clockwork.Clock) *AttackLogs {
	return &AttackLogs{db: dbase, clock: clock}
}

func (a *AttackLogs) Append(baseContext context.Context, attackerID string, defenderID string, damage int) error {
	ctx, span := Tracer.Start(baseContext, "attack-logs.append")
	defer span.End()

	now := a.clock.Now()
	entry := AttackLog{
		BaseModel:  BaseModel{CreatedAt: now, UpdatedAt: now},
		AttackerID: attackerID,
		DefenderID: defenderID,
		Damage:     damage,
	}
	if err := a.db.WithContext(ctx).Create(&entry).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("models: append attack log: %w", err)
	}

	return nil
}

// Recent returns the newest entries where the player was either side.
func (a *AttackLogs) Recent(baseContext context.Context, playerID string, limit int) ([]AttackLog, error) {
	ctx, span := Tracer.Start(baseContext, "attack-logs.recent")
	defer span.End()

	var entries []AttackLog
	if err := a.db.WithContext(ctx).
		Where("attacker_id = ? OR defender_id = ?", playerID, playerID).
		Order("id desc").
		Limit(limit).
		Find(&entries).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("models: recent attacks %s: %w", playerID, err)
	}

	return entries, nil
}
