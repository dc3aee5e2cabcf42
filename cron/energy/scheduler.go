package energy

import (
	"context"
	"sync/atomic"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Gate tells the scheduler whether the host is ready for background work.
type Gate interface {
	Ready() bool
}

type ReadyFlag struct {
	ready atomic.Bool
}

func (f *ReadyFlag) Ready() bool {
	return f.ready.Load()
}

func (f *ReadyFlag) Set(ready bool) {
	f.ready.Store(ready)
}

// Scheduler runs the regenerator every tick while the gate is open.
type Scheduler struct {
	scheduler gocron.Scheduler
	regen     *Regenerator
	gate      Gate
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler(regen *Regenerator, gate Gate, clock clockwork.Clock) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		scheduler: scheduler,
		regen:     regen,
		gate:      gate,
		ctx:       ctx,
		cancel:    cancel,
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(regen.Tick()),
		gocron.NewTask(s.run),
		gocron.WithName("energy-regen"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) run() {
	if !s.gate.Ready() {
		log.Debug().Msg("Energy regen skipped, host not ready")
		return
	}

	if _, err := s.regen.RunOnce(s.ctx); err != nil {
		log.Error().Err(err).Msg("Energy regen run failed")
	}
}

func (s *Scheduler) Start() {
	log.Info().Dur("tick", s.regen.Tick()).Msg("Starting energy scheduler")
	s.scheduler.Start()
}

// Stop cancels any run in flight and waits for the scheduler to drain.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.scheduler.Shutdown()
}
