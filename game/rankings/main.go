package rankings

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const rankingsKey = "gems-rankings"

type Ledger interface {
	Leaderboard(ctx context.Context, limit int) ([]models.Account, error)
}

type Entry struct {
	Rank     int64   `json:"rank"`
	PlayerID string  `json:"player"`
	Score    float64 `json:"gems"`
}

type RankingsResult struct {
	Type string  `json:"type"`
	Top  []Entry `json:"top"`
	Near []Entry `json:"near"`
}

// Rankings mirrors balances into a redis sorted set for rank lookups. The
// ledger stays authoritative for the ordered leaderboard.
type Rankings struct {
	client *redis.Client
	ledger Ledger
}

func New(client *redis.Client, ledger Ledger) *Rankings {
	return &Rankings{client: client, ledger: ledger}
}

func (r *Rankings) UpdateScore(baseContext context.Context, playerID string, balance int64) error {
	ctx, span := utils.StartSpan(baseContext, "update-score")
	defer span.End()

	log.Trace().Str("player", playerID).Int64("gems", balance).Msg("UpdateScore")
	if err := r.client.ZAdd(ctx, rankingsKey, redis.Z{Score: float64(balance), Member: playerID}).Err(); err != nil {
		utils.FailSpan(ctx, err)
		return fmt.Errorf("rankings: update %s: %w", playerID, err)
	}
	return nil
}

// Rank is 1-based. ok is false when the player has no score yet.
func (r *Rankings) Rank(baseContext context.Context, playerID string) (int64, bool, error) {
	ctx, span := utils.StartSpan(baseContext, "get-rank")
	defer span.End()

	rank, err := r.client.ZRevRank(ctx, rankingsKey, playerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		utils.FailSpan(ctx, err)
		return 0, false, fmt.Errorf("rankings: rank %s: %w", playerID, err)
	}
	return rank + 1, true, nil
}

func (r *Rankings) window(ctx context.Context, start int64, count int64) ([]Entry, error) {
	result, err := r.client.ZRangeArgsWithScores(ctx, redis.ZRangeArgs{
		Key:   rankingsKey,
		Start: start,
		Stop:  start + count - 1,
		Rev:   true,
	}).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(result))
	for i, z := range result {
		member, _ := z.Member.(string)
		entries[i] = Entry{Rank: start + int64(i) + 1, PlayerID: member, Score: z.Score}
	}
	return entries, nil
}

// Retrieve returns the top of the board and the neighbourhood around the
// player.
func (r *Rankings) Retrieve(baseContext context.Context, playerID string, count int64) (RankingsResult, error) {
	ctx, span := utils.StartSpan(baseContext, "retrieve-rankings")
	defer span.End()

	result := RankingsResult{Type: "RANKINGS"}

	top, err := r.window(ctx, 0, count)
	if err != nil {
		utils.FailSpan(ctx, err)
		return result, fmt.Errorf("rankings: top: %w", err)
	}
	result.Top = top

	rank, ok, err := r.Rank(ctx, playerID)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, nil
	}

	start := rank - 1 - count/2
	if start < 0 {
		start = 0
	}
	near, err := r.window(ctx, start, count)
	if err != nil {
		utils.FailSpan(ctx, err)
		return result, fmt.Errorf("rankings: near: %w", err)
	}
	result.Near = near
	return result, nil
}

// Rebuild replaces the mirror with the ledger's top accounts.
func (r *Rankings) Rebuild(baseContext context.Context, limit int) error {
	ctx, span := utils.StartSpan(baseContext, "rebuild-rankings")
	defer span.End()

	accounts, err := r.ledger.Leaderboard(ctx, limit)
	if err != nil {
		utils.FailSpan(ctx, err)
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, rankingsKey)
	for _, account := range accounts {
		pipe.ZAdd(ctx, rankingsKey, redis.Z{Score: float64(account.Balance), Member: account.PlayerID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		utils.FailSpan(ctx, err)
		return fmt.Errorf("rankings: rebuild: %w", err)
	}

	log.Info().Int("accounts", len(accounts)).Msg("Rebuilt rankings")
	return nil
}
