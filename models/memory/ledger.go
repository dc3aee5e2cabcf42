package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Vintral/culling-realm/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Ledger struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	observer     models.BalanceObserver
	accounts     map[string]*models.Account
	transactions []models.Transaction
}

func NewLedger(clock clockwork.Clock) *Ledger {
	return &Ledger{clock: clock, accounts: make(map[string]*models.Account)}
}

func (l *Ledger) WithObserver(observer models.BalanceObserver) *Ledger {
	l.observer = observer
	return l
}

// account must be called with l.mu held.
func (l *Ledger) account(playerID string) *models.Account {
	if a, ok := l.accounts[playerID]; ok {
		return a
	}

	now := l.clock.Now()
	a := &models.Account{PlayerID: playerID}
	a.ID = uint(len(l.accounts) + 1)
	a.CreatedAt = now
	a.UpdatedAt = now
	l.accounts[playerID] = a
	return a
}

// append must be called with l.mu held.
func (l *Ledger) append(playerID string, delta int64, reason string) {
	now := l.clock.Now()
	entry := models.Transaction{GUID: uuid.New(), PlayerID: playerID, Delta: delta, Reason: reason}
	entry.ID = uint(len(l.transactions) + 1)
	entry.CreatedAt = now
	entry.UpdatedAt = now
	l.transactions = append(l.transactions, entry)
}

func (l *Ledger) notify(ctx context.Context, playerID string, balance int64) {
	if l.observer == nil {
		return
	}

	if err := l.observer.UpdateScore(ctx, playerID, balance); err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("Error mirroring balance")
	}
}

func (l *Ledger) Credit(ctx context.Context, playerID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, models.ErrInvalidAmount
	}

	l.mu.Lock()
	a := l.account(playerID)
	a.Balance += amount
	a.TotalEarned += amount
	a.UpdatedAt = l.clock.Now()
	l.append(playerID, amount, reason)
	balance := a.Balance
	l.mu.Unlock()

	l.notify(ctx, playerID, balance)
	return balance, nil
}

func (l *Ledger) Debit(ctx context.Context, playerID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, models.ErrInvalidAmount
	}

	l.mu.Lock()
	a := l.account(playerID)
	if a.Balance < amount {
		l.mu.Unlock()
		return 0, models.ErrInsufficientFunds
	}
	a.Balance -= amount
	a.UpdatedAt = l.clock.Now()
	l.append(playerID, -amount, reason)
	balance := a.Balance
	l.mu.Unlock()

	l.notify(ctx, playerID, balance)
	return balance, nil
}

func (l *Ledger) GetBalance(ctx context.Context, playerID string) (models.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.account(playerID)
	return models.Balance{Balance: a.Balance, TotalEarned: a.TotalEarned}, nil
}

func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]models.Account, error) {
	l.mu.Lock()
	accounts := make([]models.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accounts = append(accounts, *a)
	}
	l.mu.Unlock()

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Balance != accounts[j].Balance {
			return accounts[i].Balance > accounts[j].Balance
		}
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].ID < accounts[j].ID
	})

	if limit >= 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (l *Ledger) History(ctx context.Context, playerID string, limit int) ([]models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []models.Transaction
	for i := len(l.transactions) - 1; i >= 0 && len(entries) < limit; i-- {
		if l.transactions[i].PlayerID == playerID {
			entries = append(entries, l.transactions[i])
		}
	}
	return entries, nil
}
