package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Vintral/culling-realm/game/limits"
	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/models/memory"
	"github.com/jonboulle/clockwork"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type flakyLedger struct {
	Ledger
	failCredit bool
}

func (f *flakyLedger) Credit(ctx context.Context, playerID string, amount int64, reason string) (int64, error) {
	if f.failCredit {
		return 0, errors.New("ledger unavailable")
	}
	return f.Ledger.Credit(ctx, playerID, amount, reason)
}

type fixture struct {
	clock   *clockwork.FakeClock
	players *memory.Players
	ledger  *flakyLedger
	recs    *memory.Reconciliations
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(t0)
	f := &fixture{
		clock:   clock,
		players: memory.NewPlayers(clock),
		ledger:  &flakyLedger{Ledger: memory.NewLedger(clock)},
		recs:    memory.NewReconciliations(clock),
	}
	f.service = NewService(f.players, f.ledger, f.recs,
		WithClock(clock),
		WithCooldown(limits.NewLocalCooldown(clock)),
		WithRoller(func(n int) int { return 39 }),
	)
	return f
}

func (f *fixture) stats(t *testing.T, playerID string) models.PlayerStats {
	t.Helper()

	stats, err := f.players.Get(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Get(%s) returned error: %v", playerID, err)
	}
	return stats
}

func (f *fixture) balance(t *testing.T, playerID string) int64 {
	t.Helper()

	balance, err := f.ledger.GetBalance(context.Background(), playerID)
	if err != nil {
		t.Fatalf("GetBalance(%s) returned error: %v", playerID, err)
	}
	return balance.Balance
}

func (f *fixture) setEnergy(t *testing.T, playerID string, energy int) {
	t.Helper()

	ctx := context.Background()
	if err := f.players.EnsureExists(ctx, playerID); err != nil {
		t.Fatalf("EnsureExists returned error: %v", err)
	}
	if _, _, err := f.players.AtomicUpdate(ctx, playerID, func(stats *models.PlayerStats) error {
		stats.Energy = energy
		return nil
	}); err != nil {
		t.Fatalf("AtomicUpdate returned error: %v", err)
	}
}

func TestStartMining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.service.StartMining(ctx, "alice", false); !errors.Is(err, rules.ErrWrongLocation) {
		t.Fatalf("expected ErrWrongLocation, got %v", err)
	}

	stats, err := f.service.StartMining(ctx, "alice", true)
	if err != nil {
		t.Fatalf("StartMining returned error: %v", err)
	}
	if !stats.Mining() || !stats.MiningStartedAt.Equal(t0) || stats.PendingRewardAdjustment != 0 {
		t.Errorf("unexpected session state: %+v", stats)
	}

	if _, err := f.service.StartMining(ctx, "alice", true); !errors.Is(err, rules.ErrAlreadyMining) {
		t.Errorf("expected ErrAlreadyMining, got %v", err)
	}
}

func TestStopMiningPayoutSteps(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		payout  int64
	}{
		{"under one interval", time.Hour + 59*time.Minute, 0},
		{"one interval", 2 * time.Hour, 50},
		{"partial second interval", 3*time.Hour + 30*time.Minute, 50},
		{"two intervals", 4 * time.Hour, 100},
		{"capped", 30 * time.Hour, 300},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			if _, err := f.service.StartMining(ctx, "alice", true); err != nil {
				t.Fatalf("StartMining returned error: %v", err)
			}
			f.clock.Advance(tc.elapsed)

			result, err := f.service.StopMining(ctx, "alice")
			if err != nil {
				t.Fatalf("StopMining returned error: %v", err)
			}
			if result.Payout != tc.payout || result.NewBalance != tc.payout {
				t.Errorf("expected payout %d, got %+v", tc.payout, result)
			}
			if f.stats(t, "alice").Mining() {
				t.Errorf("session should be cleared")
			}
		})
	}
}

func TestStopMiningWithoutSession(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.StopMining(context.Background(), "alice"); !errors.Is(err, rules.ErrNotMining) {
		t.Fatalf("expected ErrNotMining, got %v", err)
	}
}

func TestStopMiningCreditFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.service.StartMining(ctx, "alice", true); err != nil {
		t.Fatalf("StartMining returned error: %v", err)
	}
	f.clock.Advance(4 * time.Hour)
	f.ledger.failCredit = true

	_, err := f.service.StopMining(ctx, "alice")
	if !errors.Is(err, rules.ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}

	pending, _ := f.recs.Pending(ctx)
	if len(pending) != 1 || pending[0].Kind != models.ReconcileMiningPayout || pending[0].Amount != 100 {
		t.Errorf("unexpected reconciliation rows: %+v", pending)
	}

	// The session is gone, so a retry cannot pay twice.
	f.ledger.failCredit = false
	if _, err := f.service.StopMining(ctx, "alice"); !errors.Is(err, rules.ErrNotMining) {
		t.Errorf("expected ErrNotMining on retry, got %v", err)
	}
}

func TestPlunderScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.service.StartMining(ctx, "alice", true); err != nil {
		t.Fatalf("StartMining returned error: %v", err)
	}

	f.clock.Advance(2*time.Hour + 10*time.Minute)
	result, err := f.service.Plunder(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("Plunder returned error: %v", err)
	}
	if result.Stolen != 15 || result.DefenderReward != 50 || result.NewBalance != 15 {
		t.Errorf("unexpected plunder result: %+v", result)
	}
	if result.PlundersLeft != 1 || result.EnergyLeft != models.DefaultMaxEnergy-1 {
		t.Errorf("unexpected attacker state in result: %+v", result)
	}
	if adj := f.stats(t, "alice").PendingRewardAdjustment; adj != -15 {
		t.Errorf("expected adjustment -15, got %d", adj)
	}

	f.clock.Advance(20 * time.Minute)
	stop, err := f.service.StopMining(ctx, "alice")
	if err != nil {
		t.Fatalf("StopMining returned error: %v", err)
	}
	if stop.Payout != 35 || stop.BaseReward != 50 || stop.Adjustment != -15 {
		t.Errorf("unexpected stop result: %+v", stop)
	}
	if f.balance(t, "alice") != 35 || f.balance(t, "bob") != 15 {
		t.Errorf("unexpected balances: alice %d, bob %d", f.balance(t, "alice"), f.balance(t, "bob"))
	}
}

func TestPlunderPayoutFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.service.StartMining(ctx, "alice", true)
	f.clock.Advance(2 * time.Hour)

	for _, attacker := range []string{"bob", "carol", "dave", "erin"} {
		if _, err := f.service.Plunder(ctx, attacker, "alice"); err != nil {
			t.Fatalf("Plunder by %s returned error: %v", attacker, err)
		}
	}

	stop, err := f.service.StopMining(ctx, "alice")
	if err != nil {
		t.Fatalf("StopMining returned error: %v", err)
	}
	if stop.Adjustment != -60 || stop.Payout != 0 {
		t.Errorf("expected payout floored at 0 with adjustment -60, got %+v", stop)
	}
}

func TestPlunderPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.service.Plunder(ctx, "bob", "bob"); !errors.Is(err, rules.ErrSelfTarget) {
		t.Errorf("expected ErrSelfTarget, got %v", err)
	}

	if _, err := f.service.Plunder(ctx, "bob", "alice"); !errors.Is(err, rules.ErrDefenderNotMining) {
		t.Errorf("expected ErrDefenderNotMining, got %v", err)
	}
	bob := f.stats(t, "bob")
	if bob.Energy != models.DefaultMaxEnergy || bob.PlunderCountToday != 0 {
		t.Errorf("rejected plunder must hand the attempt back: %+v", bob)
	}

	f.service.StartMining(ctx, "alice", true)
	f.clock.Advance(time.Hour)
	if _, err := f.service.Plunder(ctx, "bob", "alice"); !errors.Is(err, rules.ErrInsufficientMiningProgress) {
		t.Errorf("expected ErrInsufficientMiningProgress, got %v", err)
	}

	f.setEnergy(t, "carol", 0)
	f.clock.Advance(time.Hour)
	if _, err := f.service.Plunder(ctx, "carol", "alice"); !errors.Is(err, rules.ErrInsufficientEnergy) {
		t.Errorf("expected ErrInsufficientEnergy, got %v", err)
	}
}

// hookedPlayers runs callbacks before reads and updates reach the store, so
// tests can interleave work at exact points of an action.
type hookedPlayers struct {
	PlayerStore
	beforeGet    func(playerID string)
	beforeUpdate func(playerID string)
}

func (h *hookedPlayers) Get(ctx context.Context, playerID string) (models.PlayerStats, error) {
	if h.beforeGet != nil {
		h.beforeGet(playerID)
	}
	return h.PlayerStore.Get(ctx, playerID)
}

func (h *hookedPlayers) AtomicUpdate(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, models.PlayerStats, error) {
	if h.beforeUpdate != nil {
		h.beforeUpdate(playerID)
	}
	return h.PlayerStore.AtomicUpdate(ctx, playerID, fn)
}

func (f *fixture) hookedService(hooked *hookedPlayers) *Service {
	hooked.PlayerStore = f.players
	return NewService(hooked, f.ledger, f.recs, WithClock(f.clock))
}

func TestRejectedPlunderDoesNotBlockValidPlunder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.setEnergy(t, "bandit", 1)
	f.service.StartMining(ctx, "miner", true)
	f.clock.Advance(2*time.Hour + 10*time.Minute)

	hooked := &hookedPlayers{}
	service := f.hookedService(hooked)

	var (
		fired      bool
		minerSteal PlunderResult
		minerErr   error
	)
	interleave := func(playerID string) {
		if playerID != "idle" || fired {
			return
		}
		fired = true
		minerSteal, minerErr = service.Plunder(ctx, "bandit", "miner")
	}
	hooked.beforeGet = interleave
	hooked.beforeUpdate = interleave

	if _, err := service.Plunder(ctx, "bandit", "idle"); !errors.Is(err, rules.ErrDefenderNotMining) {
		t.Fatalf("expected ErrDefenderNotMining, got %v", err)
	}
	if !fired {
		t.Fatalf("expected the idle target to be looked up")
	}
	if minerErr != nil {
		t.Fatalf("overlapping plunder returned error: %v", minerErr)
	}
	if minerSteal.Stolen != 15 {
		t.Errorf("expected 15 stolen, got %d", minerSteal.Stolen)
	}

	bandit := f.stats(t, "bandit")
	if bandit.Energy != 0 || bandit.PlunderCountToday != 1 {
		t.Errorf("expected only the successful plunder to be charged: %+v", bandit)
	}
}

func TestPlunderRefundKeepsRegenTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.setEnergy(t, "bandit", models.DefaultMaxEnergy)
	f.service.StartMining(ctx, "miner", true)
	f.clock.Advance(2*time.Hour + 10*time.Minute)

	hooked := &hookedPlayers{}
	service := f.hookedService(hooked)

	fired := false
	hooked.beforeUpdate = func(playerID string) {
		if playerID != "miner" || fired {
			return
		}
		fired = true

		// The miner stops and a regen tick refills the bandit while the
		// attempt is reserved.
		if _, err := f.service.StopMining(ctx, "miner"); err != nil {
			t.Errorf("StopMining returned error: %v", err)
		}
		f.setEnergy(t, "bandit", models.DefaultMaxEnergy)
	}

	if _, err := service.Plunder(ctx, "bandit", "miner"); !errors.Is(err, rules.ErrDefenderNotMining) {
		t.Fatalf("expected ErrDefenderNotMining, got %v", err)
	}

	bandit := f.stats(t, "bandit")
	if bandit.Energy != models.DefaultMaxEnergy+1 {
		t.Errorf("expected the reserved point back on top of the tick, got energy %d", bandit.Energy)
	}
	if bandit.PlunderCountToday != 0 {
		t.Errorf("expected the daily count handed back, got %d", bandit.PlunderCountToday)
	}
}

func TestPlunderDailyLimitAndRollover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.service.StartMining(ctx, "alice", true)
	f.clock.Advance(2 * time.Hour)

	for i := 0; i < rules.MaxPlundersPerDay; i++ {
		if _, err := f.service.Plunder(ctx, "bob", "alice"); err != nil {
			t.Fatalf("plunder %d returned error: %v", i+1, err)
		}
	}
	if _, err := f.service.Plunder(ctx, "bob", "alice"); !errors.Is(err, rules.ErrDailyLimitReached) {
		t.Fatalf("expected ErrDailyLimitReached, got %v", err)
	}

	// 23:59 UTC is still the same day.
	f.clock.Advance(12*time.Hour + 59*time.Minute)
	if _, err := f.service.Plunder(ctx, "bob", "alice"); !errors.Is(err, rules.ErrDailyLimitReached) {
		t.Fatalf("expected ErrDailyLimitReached before rollover, got %v", err)
	}

	f.clock.Advance(time.Minute)
	result, err := f.service.Plunder(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("plunder after rollover returned error: %v", err)
	}
	if result.PlundersLeft != 1 {
		t.Errorf("expected 1 plunder left after rollover, got %d", result.PlundersLeft)
	}
}

func TestPlunderCreditFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.service.StartMining(ctx, "alice", true)
	f.clock.Advance(4 * time.Hour)
	f.ledger.failCredit = true

	_, err := f.service.Plunder(ctx, "bob", "alice")
	if !errors.Is(err, rules.ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}

	pending, _ := f.recs.Pending(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected one reconciliation row, got %d", len(pending))
	}
	rec := pending[0]
	if rec.Kind != models.ReconcilePlunderCredit || rec.PlayerID != "bob" || rec.CounterpartyID != "alice" || rec.Amount != 30 {
		t.Errorf("unexpected reconciliation: %+v", rec)
	}
	if adj := f.stats(t, "alice").PendingRewardAdjustment; adj != -30 {
		t.Errorf("defender adjustment should stand, got %d", adj)
	}
}

func TestConcurrentPlundersAgainstOneMiner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.service.StartMining(ctx, "alice", true)
	f.clock.Advance(6 * time.Hour)

	attackers := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	var wg sync.WaitGroup
	for _, id := range attackers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			f.service.Plunder(ctx, id, "alice")
		}(id)
	}
	wg.Wait()

	var stolen int64
	for _, id := range attackers {
		stolen += f.balance(t, id)
	}
	if stolen != 6*45 {
		t.Errorf("expected 270 stolen in total, got %d", stolen)
	}
	if adj := f.stats(t, "alice").PendingRewardAdjustment; adj != -stolen {
		t.Errorf("adjustment %d does not match stolen %d", adj, stolen)
	}
}

func TestClaimDaily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.service.ClaimDaily(ctx, "alice")
	if err != nil {
		t.Fatalf("ClaimDaily returned error: %v", err)
	}
	if result.Base != 40 || result.Streak != 1 || result.Bonus != 4 || result.Total != 44 || result.NewBalance != 44 {
		t.Errorf("unexpected first claim: %+v", result)
	}

	f.clock.Advance(23 * time.Hour)
	if _, err := f.service.ClaimDaily(ctx, "alice"); !errors.Is(err, rules.ErrDailyNotReady) {
		t.Fatalf("expected ErrDailyNotReady, got %v", err)
	}

	f.clock.Advance(time.Hour)
	result, err = f.service.ClaimDaily(ctx, "alice")
	if err != nil {
		t.Fatalf("second ClaimDaily returned error: %v", err)
	}
	if result.Streak != 2 || result.Bonus != 8 {
		t.Errorf("unexpected second claim: %+v", result)
	}

	f.clock.Advance(72 * time.Hour)
	result, err = f.service.ClaimDaily(ctx, "alice")
	if err != nil {
		t.Fatalf("third ClaimDaily returned error: %v", err)
	}
	if result.Streak != 1 {
		t.Errorf("streak should reset after missed days, got %d", result.Streak)
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.ledger.Credit(ctx, "alice", 500, "seed"); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}

	result, err := f.service.Transfer(ctx, "alice", "bob", 100)
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if result.Tax != 5 || result.Net != 95 || result.SenderBalance != 400 {
		t.Errorf("unexpected transfer result: %+v", result)
	}
	if f.balance(t, "bob") != 95 {
		t.Errorf("receiver should get the net amount, got %d", f.balance(t, "bob"))
	}

	if _, err := f.service.Transfer(ctx, "alice", "bob", 10); !errors.Is(err, rules.ErrCooldown) {
		t.Errorf("expected ErrCooldown, got %v", err)
	}

	f.clock.Advance(rules.TransferCooldown)
	if _, err := f.service.Transfer(ctx, "alice", "bob", 1000); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := f.service.Transfer(ctx, "alice", "bob", 10); err != nil {
		t.Errorf("failed transfer should not start the cooldown, got %v", err)
	}
}

func TestTransferValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		receiver string
		amount   int64
		want     error
	}{
		{"bob", 0, models.ErrInvalidAmount},
		{"bob", 1001, rules.ErrTransferTooLarge},
		{"alice", 10, rules.ErrSelfTarget},
	}
	for _, tc := range cases {
		if _, err := f.service.Transfer(ctx, "alice", tc.receiver, tc.amount); !errors.Is(err, tc.want) {
			t.Errorf("Transfer(%s, %d): expected %v, got %v", tc.receiver, tc.amount, tc.want, err)
		}
	}
}
