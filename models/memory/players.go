// Package memory holds in-process stores with the same contracts as the
// gorm stores in models. They back DB_DRIVER=memory and the game tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Vintral/culling-realm/models"
	"github.com/jonboulle/clockwork"
)

type playerEntry struct {
	mu    sync.Mutex
	stats models.PlayerStats
}

// Players keeps one mutex per player so updates to different players never
// contend. The map lock only guards membership.
type Players struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	players map[string]*playerEntry
}

func NewPlayers(clock clockwork.Clock) *Players {
	return &Players{clock: clock, players: make(map[string]*playerEntry)}
}

func (p *Players) entry(playerID string) (*playerEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.players[playerID]
	return e, ok
}

func (p *Players) EnsureExists(ctx context.Context, playerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.players[playerID]; ok {
		return nil
	}

	stats := models.NewPlayerStats(playerID, p.clock.Now())
	stats.ID = uint(len(p.players) + 1)
	p.players[playerID] = &playerEntry{stats: stats}
	return nil
}

func (p *Players) Get(ctx context.Context, playerID string) (models.PlayerStats, error) {
	e, ok := p.entry(playerID)
	if !ok {
		return models.PlayerStats{}, models.ErrPlayerNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats, nil
}

func (p *Players) AtomicUpdate(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, models.PlayerStats, error) {
	e, ok := p.entry(playerID)
	if !ok {
		return models.PlayerStats{}, models.PlayerStats{}, models.ErrPlayerNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return e.stats, e.stats, err
	}

	prev := e.stats
	next := e.stats
	if err := fn(&next); err != nil {
		return prev, prev, err
	}

	next.ID = prev.ID
	next.PlayerID = prev.PlayerID
	next.CreatedAt = prev.CreatedAt
	next.Version = prev.Version + 1
	next.UpdatedAt = p.clock.Now()
	e.stats = next

	return prev, next, nil
}

func (p *Players) RegenCandidates(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	entries := make([]*playerEntry, 0, len(p.players))
	for _, e := range p.players {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	type candidate struct {
		id  string
		seq uint
	}
	var found []candidate
	for _, e := range entries {
		e.mu.Lock()
		if e.stats.Energy < e.stats.MaxEnergy {
			found = append(found, candidate{id: e.stats.PlayerID, seq: e.stats.ID})
		}
		e.mu.Unlock()
	}

	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	ids := make([]string, len(found))
	for i, c := range found {
		ids[i] = c.id
	}
	return ids, nil
}
