// Package combat implements two-phase attacks. Initiate spends the
// attacker's energy and opens a session; only the defender may resolve it,
// once, within the attack window.
package combat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Sessions older than this many windows are dropped.
const pruneAfterWindows = 10

type PlayerStore interface {
	EnsureExists(ctx context.Context, playerID string) error
	Get(ctx context.Context, playerID string) (models.PlayerStats, error)
	AtomicUpdate(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, models.PlayerStats, error)
}

type WeaponLookup interface {
	LatestWeapon(ctx context.Context, playerID string) (*models.Weapon, error)
}

type AttackLog interface {
	Append(ctx context.Context, attackerID string, defenderID string, damage int) error
}

type Session struct {
	Token       uuid.UUID
	AttackerID  string
	DefenderID  string
	AttackPower int
	WeaponName  string
	CreatedAt   time.Time
	resolved    bool
}

type InitiateResult struct {
	Token         uuid.UUID `json:"token"`
	AttackPower   int       `json:"attack"`
	WeaponName    string    `json:"weapon"`
	DefenderHP    int       `json:"defender_hp"`
	DefenderMaxHP int       `json:"defender_max_hp"`
	EnergyLeft    int       `json:"energy"`
	ExpiresAt     time.Time `json:"expires"`
}

type ResolveResult struct {
	Damage   int  `json:"damage"`
	NewHP    int  `json:"hp"`
	Defeated bool `json:"defeated"`
}

type Resolver struct {
	mu        sync.Mutex
	players   PlayerStore
	weapons   WeaponLookup
	logs      AttackLog
	clock     clockwork.Clock
	window    time.Duration
	sessions  map[uuid.UUID]*Session
	lastPrune time.Time
}

func NewResolver(players PlayerStore, weapons WeaponLookup, logs AttackLog, clock clockwork.Clock) *Resolver {
	return &Resolver{
		players:   players,
		weapons:   weapons,
		logs:      logs,
		clock:     clock,
		window:    rules.AttackWindow,
		sessions:  make(map[uuid.UUID]*Session),
		lastPrune: clock.Now(),
	}
}

func (r *Resolver) Initiate(baseContext context.Context, attackerID string, defenderID string) (InitiateResult, error) {
	ctx, span := utils.StartSpan(baseContext, "attack-initiate")
	defer span.End()

	span.SetAttributes(
		attribute.String("attacker", attackerID),
		attribute.String("defender", defenderID),
	)

	if attackerID == defenderID {
		return InitiateResult{}, rules.ErrSelfTarget
	}

	for _, id := range []string{attackerID, defenderID} {
		if err := r.players.EnsureExists(ctx, id); err != nil {
			utils.FailSpan(ctx, err)
			return InitiateResult{}, err
		}
	}

	weapon, err := r.weapons.LatestWeapon(ctx, attackerID)
	if err != nil {
		utils.FailSpan(ctx, err)
		return InitiateResult{}, fmt.Errorf("combat: weapon lookup: %w", err)
	}

	_, attacker, err := r.players.AtomicUpdate(ctx, attackerID, func(stats *models.PlayerStats) error {
		if stats.Energy < rules.AttackEnergyCost {
			return rules.ErrInsufficientEnergy
		}
		if weapon == nil {
			return rules.ErrNoWeapon
		}

		stats.Energy -= rules.AttackEnergyCost
		return nil
	})
	if err != nil {
		if !rules.IsPrecondition(err) {
			utils.FailSpan(ctx, err)
		}
		return InitiateResult{}, err
	}

	// Display only; the defender is re-read when the attack resolves.
	defender, err := r.players.Get(ctx, defenderID)
	if err != nil {
		log.Warn().Err(err).Str("player", defenderID).Msg("Error reading defender")
	}

	now := r.clock.Now()
	session := &Session{
		Token:       uuid.New(),
		AttackerID:  attackerID,
		DefenderID:  defenderID,
		AttackPower: weapon.Attack,
		WeaponName:  weapon.Name,
		CreatedAt:   now,
	}

	r.mu.Lock()
	r.prune(now)
	r.sessions[session.Token] = session
	r.mu.Unlock()

	log.Info().
		Str("attacker", attackerID).
		Str("defender", defenderID).
		Str("weapon", weapon.Name).
		Int("attack", weapon.Attack).
		Str("token", session.Token.String()).
		Msg("Attack initiated")

	return InitiateResult{
		Token:         session.Token,
		AttackPower:   session.AttackPower,
		WeaponName:    session.WeaponName,
		DefenderHP:    defender.HP,
		DefenderMaxHP: defender.MaxHP,
		EnergyLeft:    attacker.Energy,
		ExpiresAt:     now.Add(r.window),
	}, nil
}

// claim marks the session resolved. Callers must release it if the damage
// could not be applied.
func (r *Resolver) claim(token uuid.UUID, actingPlayerID string, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil, rules.ErrSessionNotFound
	}
	if session.DefenderID != actingPlayerID {
		return nil, rules.ErrNotAuthorized
	}
	if session.resolved {
		return nil, rules.ErrAlreadyResolved
	}
	if now.Sub(session.CreatedAt) >= r.window {
		return nil, rules.ErrSessionExpired
	}

	session.resolved = true
	return session, nil
}

func (r *Resolver) release(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session.resolved = false
}

func (r *Resolver) Resolve(baseContext context.Context, token uuid.UUID, actingPlayerID string) (ResolveResult, error) {
	ctx, span := utils.StartSpan(baseContext, "attack-resolve")
	defer span.End()

	span.SetAttributes(
		attribute.String("token", token.String()),
		attribute.String("player", actingPlayerID),
	)

	session, err := r.claim(token, actingPlayerID, r.clock.Now())
	if err != nil {
		return ResolveResult{}, err
	}

	var result ResolveResult
	_, _, err = r.players.AtomicUpdate(ctx, session.DefenderID, func(stats *models.PlayerStats) error {
		result = ResolveResult{Damage: session.AttackPower}

		stats.HP -= session.AttackPower
		if stats.HP <= 0 {
			stats.HP = stats.MaxHP
			result.Defeated = true
		}
		result.NewHP = stats.HP
		return nil
	})
	if err != nil {
		r.release(session)
		utils.FailSpan(ctx, err)
		return ResolveResult{}, err
	}

	if err := r.logs.Append(ctx, session.AttackerID, session.DefenderID, session.AttackPower); err != nil {
		log.Error().Err(err).Str("attacker", session.AttackerID).Str("defender", session.DefenderID).Msg("Error appending attack log")
	}

	log.Info().
		Str("attacker", session.AttackerID).
		Str("defender", session.DefenderID).
		Int("damage", result.Damage).
		Int("hp", result.NewHP).
		Bool("defeated", result.Defeated).
		Msg("Attack resolved")
	return result, nil
}

// prune must be called with r.mu held.
func (r *Resolver) prune(now time.Time) {
	if now.Sub(r.lastPrune) < r.window {
		return
	}
	r.lastPrune = now

	horizon := r.window * pruneAfterWindows
	for token, session := range r.sessions {
		if now.Sub(session.CreatedAt) >= horizon {
			delete(r.sessions, token)
		}
	}
}

// Pending reports how many sessions are held in memory.
func (r *Resolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}
