package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Vintral/culling-realm/game/rankings"
	"github.com/Vintral/culling-realm/models"
	realmRedis "github.com/Vintral/culling-realm/redis"
	"github.com/Vintral/culling-realm/utils"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultPlayers = 25

// seed [reset] [players N]
func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	cfg := utils.LoadConfig()
	utils.SetupLogs(cfg.LogLevel)

	if err := run(cfg, os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Msg("Done seeding")
}

func run(cfg *utils.Config, args []string) (err error) {
	ctx := context.Background()

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

	numPlayers := defaultPlayers
	reset := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "reset":
			reset = true
		case "players":
			if i+1 < len(args) {
				if n, convErr := strconv.Atoi(args[i+1]); convErr == nil {
					numPlayers = n
				}
				i++
			}
		}
	}

	if reset {
		if err = models.DropTables(ctx, dbase); err != nil {
			return err
		}
	}
	if err = models.RunMigrations(ctx, dbase); err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	seeder := &seeder{
		players:      models.NewPlayerStore(dbase, clock),
		ledger:       models.NewLedger(dbase, clock),
		weapons:      models.NewWeaponInventory(dbase, clock),
		weaponPicker: starterWeapons(),
		secret:       cfg.JWTSecret,
	}
	if err = seeder.seedPlayers(ctx, numPlayers); err != nil {
		return err
	}

	client, redisErr := realmRedis.Instance(cfg, tp)
	if redisErr != nil {
		log.Warn().Err(redisErr).Msg("Redis unavailable, skipping rankings rebuild")
		return nil
	}
	defer func() {
		err = errors.Join(err, realmRedis.Close())
	}()

	return rankings.New(client, seeder.ledger).Rebuild(ctx, numPlayers)
}
