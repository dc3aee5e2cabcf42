package actions

import (
	"context"
	"errors"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	actions         metric.Int64Counter
	gems            metric.Int64Counter
	inconsistencies metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.GetMeterProvider().Meter("realm-game")

	m := &metrics{}
	var err error
	if m.actions, err = meter.Int64Counter("realm.actions", metric.WithDescription("Player actions by outcome")); err != nil {
		log.Warn().Err(err).Msg("Error creating action counter")
	}
	if m.gems, err = meter.Int64Counter("realm.gems.credited", metric.WithDescription("Gems credited by reason")); err != nil {
		log.Warn().Err(err).Msg("Error creating gem counter")
	}
	if m.inconsistencies, err = meter.Int64Counter("realm.reconciliations", metric.WithDescription("Partial commits needing reconciliation")); err != nil {
		log.Warn().Err(err).Msg("Error creating reconciliation counter")
	}
	return m
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case rules.IsPrecondition(err),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInvalidAmount):
		return "rejected"
	}
	return "failed"
}

func (m *metrics) action(ctx context.Context, name string, err error) {
	if m.actions == nil {
		return
	}
	m.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", name),
		attribute.String("outcome", outcome(err)),
	))
}

func (m *metrics) credited(ctx context.Context, reason string, amount int64) {
	if m.gems == nil || amount <= 0 {
		return
	}
	m.gems.Add(ctx, amount, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) inconsistency(ctx context.Context, kind string) {
	if m.inconsistencies == nil {
		return
	}
	m.inconsistencies.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
