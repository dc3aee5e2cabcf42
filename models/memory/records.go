package memory

import (
	"context"
	"sync"

	"github.com/Vintral/culling-realm/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Weapons struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	weapons []models.Weapon
}

func NewWeapons(clock clockwork.Clock) *Weapons {
	return &Weapons{clock: clock}
}

func (w *Weapons) LatestWeapon(ctx context.Context, playerID string) (*models.Weapon, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var latest *models.Weapon
	for i := range w.weapons {
		weapon := w.weapons[i]
		if weapon.PlayerID != playerID {
			continue
		}
		if latest == nil || !weapon.AcquiredAt.Before(latest.AcquiredAt) {
			latest = &weapon
		}
	}
	return latest, nil
}

func (w *Weapons) Grant(ctx context.Context, playerID string, name string, attack int) (*models.Weapon, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	weapon := models.Weapon{PlayerID: playerID, Name: name, Attack: attack, AcquiredAt: now}
	weapon.ID = uint(len(w.weapons) + 1)
	weapon.CreatedAt = now
	weapon.UpdatedAt = now
	w.weapons = append(w.weapons, weapon)
	return &weapon, nil
}

type AttackLogs struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries []models.AttackLog
}

func NewAttackLogs(clock clockwork.Clock) *AttackLogs {
	return &AttackLogs{clock: clock}
}

func (a *AttackLogs) Append(ctx context.Context, attackerID string, defenderID string, damage int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	entry := models.AttackLog{AttackerID: attackerID, DefenderID: defenderID, Damage: damage}
	entry.ID = uint(len(a.entries) + 1)
	entry.CreatedAt = now
	entry.UpdatedAt = now
	a.entries = append(a.entries, entry)
	return nil
}

func (a *AttackLogs) Recent(ctx context.Context, playerID string, limit int) ([]models.AttackLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []models.AttackLog
	for i := len(a.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		if a.entries[i].AttackerID == playerID || a.entries[i].DefenderID == playerID {
			entries = append(entries, a.entries[i])
		}
	}
	return entries, nil
}

type Reconciliations struct {
	mu    sync.Mutex
	clock clockwork.Clock
	recs  []models.Reconciliation
}

func NewReconciliations(clock clockwork.Clock) *Reconciliations {
	return &Reconciliations{clock: clock}
}

func (r *Reconciliations) Record(ctx context.Context, rec models.Reconciliation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if rec.GUID == uuid.Nil {
		rec.GUID = uuid.New()
	}
	rec.ID = uint(len(r.recs) + 1)
	rec.CreatedAt = now
	rec.UpdatedAt = now
	r.recs = append(r.recs, rec)
	return nil
}

func (r *Reconciliations) Pending(ctx context.Context) ([]models.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []models.Reconciliation
	for _, rec := range r.recs {
		if !rec.Resolved {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}
