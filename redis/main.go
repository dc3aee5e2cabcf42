package realmRedis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vintral/culling-realm/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var rdb *redis.Client

func Instance(cfg *utils.Config, tp trace.TracerProvider) (*redis.Client, error) {
	log.Trace().Msg("realmRedis: Instance")

	// Use cached value if we can
	if rdb != nil {
		return rdb, nil
	}

	ctx := context.Background()
	if tp != nil {
		var sp trace.Span
		ctx, sp = tp.Tracer("realm-redis").Start(ctx, "setup-redis")
		defer sp.End()
	}

	addr := cfg.RedisHost + ":" + cfg.RedisPort
	log.Info().Str("addr", addr).Msg("Connecting to redis")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realmRedis: ping %s: %w", addr, err)
	}

	rdb = client
	return rdb, nil
}

func Close() error {
	if rdb == nil {
		return nil
	}

	err := rdb.Close()
	rdb = nil
	return err
}

// Cooldown is a per-key lock that expires on its own, built on SET NX EX.
type Cooldown struct {
	client *redis.Client
	prefix string
}

func NewCooldown(client *redis.Client) *Cooldown {
	return &Cooldown{client: client, prefix: "cooldown:"}
}

func (c *Cooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+key, 1, ttl).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return ok, nil
}

func (c *Cooldown) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}
