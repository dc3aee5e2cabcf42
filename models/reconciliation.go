package models

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

const (
	ReconcilePlunderCredit  = "plunder-credit"
	ReconcilePlunderRefund  = "plunder-refund"
	ReconcileMiningPayout   = "mining-payout"
	ReconcileTransferCredit = "transfer-credit"
	ReconcileDailyCredit    = "daily-credit"
)

// Reconciliation records a cross-record operation that committed only in
// part. Rows are written for an operator; nothing replays them.
type Reconciliation struct {
	BaseModel

	GUID           uuid.UUID `gorm:"uniqueIndex;size:36" json:"guid"`
	Kind           string    `gorm:"index;size:32" json:"kind"`
	PlayerID       string    `gorm:"size:64" json:"player"`
	CounterpartyID string    `gorm:"size:64" json:"counterparty,omitempty"`
	Amount         int64     `json:"amount"`
	Detail         string    `gorm:"size:512" json:"detail"`
	Resolved       bool      `gorm:"index" json:"resolved"`
}

func (rec *Reconciliation) BeforeCreate(tx *gorm.DB) (err error) {
	if rec.GUID == uuid.Nil {
		rec.GUID = uuid.New()
	}
	return
}

type Reconciliations struct {
	db    *gorm.DB
	clock clockwork.Clock
}

func NewReconciliations(dbase *gorm.DB, clock clockwork.Clock) *Reconciliations {
	return &Reconciliations{db: dbase, clock: clock}
}

func (r *Reconciliations) Record(baseContext context.Context, rec Reconciliation) error {
	ctx, span := Tracer.Start(baseContext, "reconciliations.record")
	defer span.End()

	now := r.clock.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("models: record reconciliation: %w", err)
	}

	return nil
}

func (r *Reconciliations) Pending(baseContext context.Context) ([]Reconciliation, error) {
	ctx, span := Tracer.Start(baseContext, "reconciliations.pending")
	defer span.End()

	var recs []Reconciliation
	if err := r.db.WithContext(ctx).Where("resolved = ?", false).Order("id asc").Find(&recs).Error; err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("models: pending reconciliations: %w", err)
	}

	return recs, nil
}
