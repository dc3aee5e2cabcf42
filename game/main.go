package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vintral/culling-realm/cron/energy"
	"github.com/Vintral/culling-realm/game/actions"
	"github.com/Vintral/culling-realm/game/combat"
	"github.com/Vintral/culling-realm/game/limits"
	"github.com/Vintral/culling-realm/game/rankings"
	"github.com/Vintral/culling-realm/game/server"
	"github.com/Vintral/culling-realm/models"
	realmRedis "github.com/Vintral/culling-realm/redis"
	"github.com/Vintral/culling-realm/utils"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	//==============================//
	//	Setup ENV variables					//
	//==============================//
	if err := godotenv.Load(".env"); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	cfg := utils.LoadConfig()
	utils.SetupLogs(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Game server stopped")
	}
}

func run(cfg *utils.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//==============================//
	//	Setup Telemetry							//
	//==============================//
	otelShutdown, tp, err := utils.SetupOTelSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, otelShutdown(context.Background()))
	}()
	models.SetTracerProvider(tp)

	clock := clockwork.NewRealClock()

	//==============================//
	//	Setup Stores								//
	//==============================//
	st, err := openStores(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.shutdown())
	}()

	var cooldown actions.Cooldown = limits.NewLocalCooldown(clock)
	var ranks *rankings.Rankings
	if client, redisErr := realmRedis.Instance(cfg, tp); redisErr != nil {
		log.Warn().Err(redisErr).Msg("Redis unavailable, rankings disabled and cooldowns kept in process")
	} else {
		defer func() {
			err = errors.Join(err, realmRedis.Close())
		}()

		cooldown = realmRedis.NewCooldown(client)
		ranks = rankings.New(client, st.ledger)
		st.observe(ranks)
		if err := ranks.Rebuild(ctx, 1000); err != nil {
			log.Warn().Err(err).Msg("Could not rebuild rankings")
		}
	}

	//==============================//
	//	Setup Game									//
	//==============================//
	service := actions.NewService(st.players, st.ledger, st.recs,
		actions.WithClock(clock),
		actions.WithCooldown(cooldown),
	)
	resolver := combat.NewResolver(st.players, st.weapons, st.attacks, clock)
	limiter := limits.NewLimiter(clock, cfg.ActionRate, cfg.ActionBurst)

	ready := &energy.ReadyFlag{}
	if cfg.RunScheduler {
		regen := energy.NewRegenerator(st.players, clock, cfg.EnergyTick)
		var scheduler *energy.Scheduler
		if scheduler, err = energy.NewScheduler(regen, ready, clock); err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			err = errors.Join(err, scheduler.Stop())
		}()
	}

	srv := server.New(cfg, server.Deps{
		Actions:  service,
		Combat:   resolver,
		Ledger:   st.ledger,
		Attacks:  st.attacks,
		Rankings: ranks,
		Limiter:  limiter,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Listening")
		serveErr <- httpServer.ListenAndServe()
	}()
	ready.Set(true)

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	ready.Set(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	srv.Close()
	return httpServer.Shutdown(shutdownCtx)
}
