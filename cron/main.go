package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Vintral/culling-realm/cron/energy"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// The cron process only regenerates energy. Game servers sharing the same
// database should run with RUN_SCHEDULER=0 so a tick is never granted twice
// from two hosts racing on the same interval.
func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	cfg := utils.LoadConfig()
	utils.SetupLogs(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Cron stopped")
	}
}

func run(cfg *utils.Config) (err error) {
	if cfg.DBDriver == "memory" {
		return errors.New("cron: energy regen needs a shared database, DB_DRIVER=memory is only valid for the game server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, tp, err := utils.SetupOTelSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, otelShutdown(context.Background()))
	}()
	models.SetTracerProvider(tp)

	dbase, err := models.Database(cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, models.Close())
	}()
	if err = models.RunMigrations(ctx, dbase); err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	regen := energy.NewRegenerator(models.NewPlayerStore(dbase, clock), clock, cfg.EnergyTick)

	ready := &energy.ReadyFlag{}
	scheduler, err := energy.NewScheduler(regen, ready, clock)
	if err != nil {
		return err
	}

	log.Info().Msg("Starting up...")
	scheduler.Start()
	ready.Set(true)

	<-ctx.Done()

	log.Info().Msg("Shutting down")
	ready.Set(false)
	return scheduler.Stop()
}
