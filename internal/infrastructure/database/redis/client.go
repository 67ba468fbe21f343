// Package redis provides the shared fingerprint cache backed by Redis, so
// that solver answers computed by one build are reused by the next.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/pkg/errors"
)

const pingTimeout = 5 * time.Second

// NewClient connects to the configured server and verifies it answers.
func NewClient(cfg config.RedisConfig, log logging.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, errors.CodeCacheError, "redis connection failed").WithDetailf("addr=%s", cfg.Addr)
	}

	logging.OrDefault(log).Info("Redis client connected", logging.String("addr", cfg.Addr), logging.Int("db", cfg.DB))
	return rdb, nil
}
