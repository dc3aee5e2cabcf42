package rankings

import (
	"context"
	"testing"
	"time"

	"github.com/Vintral/culling-realm/models/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func setup(t *testing.T) (*Rankings, *memory.Ledger, *clockwork.FakeClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	ledger := memory.NewLedger(clock)
	r := New(client, ledger)
	ledger.WithObserver(r)
	return r, ledger, clock
}

func TestLedgerChangesAreMirrored(t *testing.T) {
	ctx := context.Background()
	r, ledger, _ := setup(t)

	ledger.Credit(ctx, "alice", 100, "seed")
	ledger.Credit(ctx, "bob", 300, "seed")
	ledger.Credit(ctx, "carol", 200, "seed")
	ledger.Debit(ctx, "bob", 250, "spend")

	cases := map[string]int64{"carol": 1, "alice": 2, "bob": 3}
	for id, want := range cases {
		rank, ok, err := r.Rank(ctx, id)
		if err != nil || !ok {
			t.Fatalf("Rank(%s) returned %v, %v", id, ok, err)
		}
		if rank != want {
			t.Errorf("Rank(%s) = %d, want %d", id, rank, want)
		}
	}

	if _, ok, err := r.Rank(ctx, "nobody"); ok || err != nil {
		t.Errorf("unknown player should have no rank: %v, %v", ok, err)
	}
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	r, ledger, _ := setup(t)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		ledger.Credit(ctx, id, int64(10*(i+1)), "seed")
	}

	result, err := r.Retrieve(ctx, "b", 2)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(result.Top) != 2 || result.Top[0].PlayerID != "e" || result.Top[1].Rank != 2 {
		t.Errorf("unexpected top: %+v", result.Top)
	}
	if len(result.Near) != 2 || result.Near[0].PlayerID != "c" || result.Near[1].PlayerID != "b" || result.Near[1].Rank != 4 {
		t.Errorf("unexpected near: %+v", result.Near)
	}
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	r, ledger, clock := setup(t)

	ledger.Credit(ctx, "alice", 50, "seed")
	clock.Advance(time.Minute)
	ledger.Credit(ctx, "bob", 50, "seed")

	r.client.FlushAll(ctx)
	if err := r.Rebuild(ctx, 10); err != nil {
		t.Fatalf("Rebuild returned error: %v", err)
	}
	if _, ok, _ := r.Rank(ctx, "bob"); !ok {
		t.Errorf("rebuild should restore scores")
	}
}
