package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Vintral/culling-realm/game/server"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	startingGems = 100
	tokenTTL     = 30 * 24 * time.Hour
)

type starterWeapon struct {
	Name   string
	Attack int
}

func starterWeapons() *utils.Picker[starterWeapon] {
	picker := &utils.Picker[starterWeapon]{}
	picker.Add(10, starterWeapon{"Rusty Pick", 40})
	picker.Add(6, starterWeapon{"Short Sword", 70})
	picker.Add(3, starterWeapon{"Spear", 90})
	picker.Add(1, starterWeapon{"War Axe", 120})
	return picker
}

type seeder struct {
	players      *models.PlayerStore
	ledger       *models.Ledger
	weapons      *models.WeaponInventory
	weaponPicker *utils.Picker[starterWeapon]
	secret       string
}

func (s *seeder) seedPlayers(baseContext context.Context, numPlayers int) error {
	ctx, sp := models.Tracer.Start(baseContext, "seed-players")
	defer sp.End()

	log.Warn().Int("players", numPlayers).Msg("seedPlayers")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := 1; i <= numPlayers; i++ {
		i := i
		g.Go(func() error {
			return s.createPlayer(ctx, fmt.Sprintf("player-%d", i))
		})
	}
	return g.Wait()
}

func (s *seeder) createPlayer(ctx context.Context, playerID string) error {
	log.Info().Str("player", playerID).Msg("Seeding player")

	if err := s.players.EnsureExists(ctx, playerID); err != nil {
		return err
	}

	// Already seeded on an earlier run
	if existing, err := s.weapons.LatestWeapon(ctx, playerID); err != nil {
		return err
	} else if existing != nil {
		return nil
	}
	if _, err := s.ledger.Credit(ctx, playerID, startingGems+int64(rand.Intn(startingGems)), "seed"); err != nil {
		return err
	}

	weapon, _ := s.weaponPicker.Choose(rand.Intn)
	if _, err := s.weapons.Grant(ctx, playerID, weapon.Name, weapon.Attack); err != nil {
		return err
	}

	if s.secret == "" {
		return nil
	}
	token, err := server.IssueToken(s.secret, playerID, tokenTTL)
	if err != nil {
		return err
	}
	log.Info().Str("player", playerID).Str("token", token).Msg("Seeded player")
	return nil
}
