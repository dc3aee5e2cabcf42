// Package energy grants energy regeneration ticks to players below their cap.
package energy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 8

var errNotDue = errors.New("energy: tick not due")

type PlayerStore interface {
	RegenCandidates(ctx context.Context) ([]string, error)
	AtomicUpdate(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, models.PlayerStats, error)
}

type RunReport struct {
	Scanned int `json:"scanned"`
	Granted int `json:"granted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Regenerator struct {
	players     PlayerStore
	clock       clockwork.Clock
	tick        time.Duration
	parallelism int
}

func NewRegenerator(players PlayerStore, clock clockwork.Clock, tick time.Duration) *Regenerator {
	return &Regenerator{
		players:     players,
		clock:       clock,
		tick:        tick,
		parallelism: defaultParallelism,
	}
}

func (r *Regenerator) Tick() time.Duration {
	return r.tick
}

// RunOnce grants at most one point to every player whose last grant is at
// least a tick old. A failed player is logged and counted; the rest of the
// batch still runs. The error is only set when candidates can't be listed.
func (r *Regenerator) RunOnce(baseContext context.Context) (RunReport, error) {
	ctx, span := utils.StartCronSpan(baseContext, "energy-regen")
	defer span.End()

	ids, err := r.players.RegenCandidates(ctx)
	if err != nil {
		utils.FailSpan(ctx, err)
		return RunReport{}, fmt.Errorf("energy: list candidates: %w", err)
	}

	now := r.clock.Now()
	var granted, skipped, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := r.grant(ctx, id, now)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, errNotDue):
				skipped.Add(1)
			default:
				failed.Add(1)
				log.Error().Err(err).Str("player", id).Msg("Error regenerating energy")
			}
			return nil
		})
	}
	_ = g.Wait()

	report := RunReport{
		Scanned: len(ids),
		Granted: int(granted.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	span.SetAttributes(
		attribute.Int("scanned", report.Scanned),
		attribute.Int("granted", report.Granted),
		attribute.Int("failed", report.Failed),
	)

	log.Info().
		Int("scanned", report.Scanned).
		Int("granted", report.Granted).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Energy regen run")
	return report, nil
}

func (r *Regenerator) grant(ctx context.Context, playerID string, now time.Time) error {
	_, _, err := r.players.AtomicUpdate(ctx, playerID, func(stats *models.PlayerStats) error {
		if stats.Energy >= stats.MaxEnergy {
			return errNotDue
		}
		if now.Sub(stats.LastEnergyRegenAt) < r.tick {
			return errNotDue
		}

		stats.Energy++
		if stats.Energy > stats.MaxEnergy {
			stats.Energy = stats.MaxEnergy
		}
		stats.LastEnergyRegenAt = now
		return nil
	})
	return err
}
