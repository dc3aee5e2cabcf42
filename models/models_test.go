package models

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbase, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sql, err := dbase.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sql.SetMaxOpenConns(1)
	t.Cleanup(func() { sql.Close() })

	if err := RunMigrations(context.Background(), dbase); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return dbase
}

type recordingObserver struct {
	mu     sync.Mutex
	scores map[string]int64
	fail   bool
}

func (o *recordingObserver) UpdateScore(ctx context.Context, playerID string, balance int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fail {
		return errors.New("observer down")
	}
	if o.scores == nil {
		o.scores = map[string]int64{}
	}
	o.scores[playerID] = balance
	return nil
}

func TestLedgerCreditAndDebit(t *testing.T) {
	ctx := context.Background()
	observer := &recordingObserver{}
	ledger := NewLedger(newTestDB(t), clockwork.NewFakeClockAt(testStart)).WithObserver(observer)

	balance, err := ledger.Credit(ctx, "alice", 120, "mining")
	if err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if balance != 120 {
		t.Fatalf("expected balance 120, got %d", balance)
	}

	balance, err = ledger.Debit(ctx, "alice", 20, "transfer")
	if err != nil {
		t.Fatalf("Debit returned error: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}

	got, err := ledger.GetBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if got.Balance != 100 || got.TotalEarned != 120 {
		t.Errorf("unexpected balance: %+v", got)
	}
	if observer.scores["alice"] != 100 {
		t.Errorf("expected observer to see 100, got %d", observer.scores["alice"])
	}

	history, err := ledger.History(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(history))
	}
	if history[0].Delta != -20 || history[1].Delta != 120 {
		t.Errorf("unexpected history order: %+v", history)
	}
}

func TestLedgerRejectsInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if _, err := ledger.Credit(ctx, "alice", 0, "nothing"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for credit, got %v", err)
	}
	if _, err := ledger.Debit(ctx, "alice", -5, "nothing"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for debit, got %v", err)
	}
}

func TestLedgerDebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if _, err := ledger.Credit(ctx, "alice", 10, "seed"); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if _, err := ledger.Debit(ctx, "alice", 11, "overdraft"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	history, err := ledger.History(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("failed debit must not append a transaction, got %d entries", len(history))
	}
}

func TestLedgerConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if _, err := ledger.Credit(ctx, "alice", 50, "seed"); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Debit(ctx, "alice", 10, "race"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ledger.Credit(ctx, "alice", 30, "late")
	}()
	wg.Wait()

	balance, err := ledger.GetBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if balance.Balance < 0 {
		t.Fatalf("balance went negative: %d", balance.Balance)
	}
	if balance.Balance != 80-int64(succeeded*10) {
		t.Errorf("balance %d does not match %d successful debits", balance.Balance, succeeded)
	}

	history, err := ledger.History(ctx, "alice", 100)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	var sum int64
	for _, entry := range history {
		sum += entry.Delta
	}
	if sum != balance.Balance {
		t.Errorf("sum of deltas %d != balance %d", sum, balance.Balance)
	}
}

func TestLedgerLeaderboardBreaksTiesByCreation(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testStart)
	ledger := NewLedger(newTestDB(t), clock)

	for _, id := range []string{"carol", "alice", "bob"} {
		if _, err := ledger.Credit(ctx, id, 100, "seed"); err != nil {
			t.Fatalf("Credit returned error: %v", err)
		}
		clock.Advance(time.Minute)
	}
	if _, err := ledger.Credit(ctx, "dave", 500, "seed"); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}

	board, err := ledger.Leaderboard(ctx, 3)
	if err != nil {
		t.Fatalf("Leaderboard returned error: %v", err)
	}
	want := []string{"dave", "carol", "alice"}
	if len(board) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(board))
	}
	for i, id := range want {
		if board[i].PlayerID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, board[i].PlayerID)
		}
	}
}

func TestLedgerObserverFailureDoesNotFailCredit(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newTestDB(t), clockwork.NewFakeClockAt(testStart)).WithObserver(&recordingObserver{fail: true})

	if _, err := ledger.Credit(ctx, "alice", 5, "seed"); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
}

func TestPlayerStoreEnsureExistsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testStart)
	store := NewPlayerStore(newTestDB(t), clock)

	if err := store.EnsureExists(ctx, "alice"); err != nil {
		t.Fatalf("EnsureExists returned error: %v", err)
	}
	if _, _, err := store.AtomicUpdate(ctx, "alice", func(stats *PlayerStats) error {
		stats.Energy = 1
		return nil
	}); err != nil {
		t.Fatalf("AtomicUpdate returned error: %v", err)
	}
	if err := store.EnsureExists(ctx, "alice"); err != nil {
		t.Fatalf("second EnsureExists returned error: %v", err)
	}

	stats, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stats.Energy != 1 {
		t.Errorf("EnsureExists overwrote existing state: energy %d", stats.Energy)
	}
	if stats.HP != DefaultMaxHP || stats.MaxEnergy != DefaultMaxEnergy || stats.Mining() {
		t.Errorf("unexpected defaults: %+v", stats)
	}
	if !stats.LastEnergyRegenAt.Equal(testStart) {
		t.Errorf("expected regen timestamp %v, got %v", testStart, stats.LastEnergyRegenAt)
	}
}

func TestPlayerStoreAtomicUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if _, _, err := store.AtomicUpdate(ctx, "ghost", func(*PlayerStats) error { return nil }); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}

	if err := store.EnsureExists(ctx, "alice"); err != nil {
		t.Fatalf("EnsureExists returned error: %v", err)
	}

	started := testStart.Add(time.Minute)
	prev, next, err := store.AtomicUpdate(ctx, "alice", func(stats *PlayerStats) error {
		stats.MiningStartedAt = &started
		stats.PendingRewardAdjustment = -15
		return nil
	})
	if err != nil {
		t.Fatalf("AtomicUpdate returned error: %v", err)
	}
	if prev.Mining() || !next.Mining() {
		t.Errorf("expected prev idle and next mining, got %v / %v", prev.Mining(), next.Mining())
	}
	if next.Version != prev.Version+1 {
		t.Errorf("expected version bump, got %d -> %d", prev.Version, next.Version)
	}

	stats, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stats.MiningStartedAt == nil || !stats.MiningStartedAt.Equal(started) || stats.PendingRewardAdjustment != -15 {
		t.Errorf("update not persisted: %+v", stats)
	}
}

func TestPlayerStoreAtomicUpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if err := store.EnsureExists(ctx, "alice"); err != nil {
		t.Fatalf("EnsureExists returned error: %v", err)
	}

	boom := errors.New("precondition")
	_, _, err := store.AtomicUpdate(ctx, "alice", func(stats *PlayerStats) error {
		stats.Energy = 0
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to be returned, got %v", err)
	}

	stats, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stats.Energy != DefaultMaxEnergy || stats.Version != 0 {
		t.Errorf("aborted update was written: %+v", stats)
	}
}

func TestPlayerStoreConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if err := store.EnsureExists(ctx, "alice"); err != nil {
		t.Fatalf("EnsureExists returned error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.AtomicUpdate(ctx, "alice", func(stats *PlayerStats) error {
				stats.PendingRewardAdjustment -= 3
				return nil
			})
		}()
	}
	wg.Wait()

	stats, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stats.PendingRewardAdjustment != -30 || stats.Version != 10 {
		t.Errorf("expected -30 after 10 updates, got %d (version %d)", stats.PendingRewardAdjustment, stats.Version)
	}
}

func TestPlayerStoreRegenCandidates(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	for _, id := range []string{"alice", "bob", "carol"} {
		if err := store.EnsureExists(ctx, id); err != nil {
			t.Fatalf("EnsureExists returned error: %v", err)
		}
	}
	for _, id := range []string{"alice", "carol"} {
		if _, _, err := store.AtomicUpdate(ctx, id, func(stats *PlayerStats) error {
			stats.Energy--
			return nil
		}); err != nil {
			t.Fatalf("AtomicUpdate returned error: %v", err)
		}
	}

	ids, err := store.RegenCandidates(ctx)
	if err != nil {
		t.Fatalf("RegenCandidates returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "carol" {
		t.Errorf("unexpected candidates: %v", ids)
	}
}

func TestWeaponInventoryLatest(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testStart)
	weapons := NewWeaponInventory(newTestDB(t), clock)

	weapon, err := weapons.LatestWeapon(ctx, "alice")
	if err != nil || weapon != nil {
		t.Fatalf("expected no weapon, got %+v, %v", weapon, err)
	}

	if _, err := weapons.Grant(ctx, "alice", "Rusty Dagger", 40); err != nil {
		t.Fatalf("Grant returned error: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := weapons.Grant(ctx, "alice", "Iron Sword", 90); err != nil {
		t.Fatalf("Grant returned error: %v", err)
	}

	weapon, err = weapons.LatestWeapon(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestWeapon returned error: %v", err)
	}
	if weapon == nil || weapon.Name != "Iron Sword" || weapon.Attack != 90 {
		t.Errorf("expected newest weapon, got %+v", weapon)
	}
}

func TestAttackLogsRecent(t *testing.T) {
	ctx := context.Background()
	logs := NewAttackLogs(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if err := logs.Append(ctx, "alice", "bob", 40); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := logs.Append(ctx, "carol", "alice", 70); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := logs.Append(ctx, "carol", "bob", 10); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	entries, err := logs.Recent(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Damage != 70 || entries[1].Damage != 40 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestReconciliationsPending(t *testing.T) {
	ctx := context.Background()
	recs := NewReconciliations(newTestDB(t), clockwork.NewFakeClockAt(testStart))

	if err := recs.Record(ctx, Reconciliation{Kind: ReconcilePlunderCredit, PlayerID: "bob", CounterpartyID: "alice", Amount: 15}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	pending, err := recs.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(pending) != 1 || pending[0].Amount != 15 || pending[0].Kind != ReconcilePlunderCredit {
		t.Fatalf("unexpected pending: %+v", pending)
	}
	if pending[0].GUID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Errorf("expected a GUID to be assigned")
	}
}
