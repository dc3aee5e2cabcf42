package main

import (
	"context"

	"github.com/Vintral/culling-realm/cron/energy"
	"github.com/Vintral/culling-realm/game/actions"
	"github.com/Vintral/culling-realm/game/combat"
	"github.com/Vintral/culling-realm/game/server"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/models/memory"
	"github.com/Vintral/culling-realm/utils"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type playerStore interface {
	actions.PlayerStore
	energy.PlayerStore
}

type ledgerStore interface {
	actions.Ledger
	server.LedgerReader
}

type attackStore interface {
	combat.AttackLog
	server.AttackHistory
}

type stores struct {
	players  playerStore
	ledger   ledgerStore
	weapons  combat.WeaponLookup
	attacks  attackStore
	recs     actions.ReconciliationLog
	observe  func(models.BalanceObserver)
	shutdown func() error
}

// openStores picks the backing for every store. DB_DRIVER=memory keeps the
// whole game in process, anything else goes through gorm.
func openStores(ctx context.Context, cfg *utils.Config, clock clockwork.Clock) (*stores, error) {
	if cfg.DBDriver == "memory" {
		log.Warn().Msg("Using in-memory stores, nothing will be persisted")

		ledger := memory.NewLedger(clock)
		return &stores{
			players:  memory.NewPlayers(clock),
			ledger:   ledger,
			weapons:  memory.NewWeapons(clock),
			attacks:  memory.NewAttackLogs(clock),
			recs:     memory.NewReconciliations(clock),
			observe:  func(o models.BalanceObserver) { ledger.WithObserver(o) },
			shutdown: func() error { return nil },
		}, nil
	}

	dbase, err := models.Database(cfg, false)
	if err != nil {
		return nil, err
	}
	if err := models.RunMigrations(ctx, dbase); err != nil {
		return nil, err
	}

	ledger := models.NewLedger(dbase, clock)
	return &stores{
		players:  models.NewPlayerStore(dbase, clock),
		ledger:   ledger,
		weapons:  models.NewWeaponInventory(dbase, clock),
		attacks:  models.NewAttackLogs(dbase, clock),
		recs:     models.NewReconciliations(dbase, clock),
		observe:  func(o models.BalanceObserver) { ledger.WithObserver(o) },
		shutdown: models.Close,
	}, nil
}
