package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/chat"
	appconfig "github.com/wolfman30/funcionariopro/internal/config"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/publish"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; falling back to in-memory state", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL. An empty URL or a failed ping
// returns nil and published agents stay in memory.
func BuildPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Warn("postgres not available; published agents kept in memory", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres ping failed; published agents kept in memory", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// Stores groups the state backends chosen for this process.
type Stores struct {
	Profiles    profile.Store
	AgentChat   chat.History
	Calibration chat.History
	Billing     billing.Store
	Agents      publish.Repository
}

// BuildStores prefers Redis and Postgres and falls back to process memory
// for whichever is missing.
func BuildStores(redisClient *redis.Client, pool *pgxpool.Pool) Stores {
	var s Stores
	if redisClient != nil {
		s.Profiles = profile.NewRedisStore(redisClient, nil)
		s.AgentChat = chat.NewRedisHistory(redisClient, nil)
		s.Calibration = s.AgentChat
		s.Billing = billing.NewRedisStore(redisClient, nil)
	} else {
		s.Profiles = profile.NewMemoryStore()
		s.AgentChat = chat.NewMemoryHistory()
		s.Calibration = s.AgentChat
		s.Billing = billing.NewMemoryStore()
	}
	if pool != nil {
		s.Agents = publish.NewPostgresRepository(pool)
	} else {
		s.Agents = publish.NewMemoryRepository()
	}
	return s
}
