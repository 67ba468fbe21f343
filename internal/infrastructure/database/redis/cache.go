package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// FingerprintCache stores fingerprints under "<prefix><request key>".
type FingerprintCache struct {
	rdb     redis.Cmdable
	prefix  string
	ttl     time.Duration
	logger  logging.Logger
	metrics *prometheus.RepoMetrics
}

var _ molecule.FingerprintCache = (*FingerprintCache)(nil)

// CacheOption configures a FingerprintCache.
type CacheOption func(*FingerprintCache)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *FingerprintCache) { c.prefix = prefix }
}

// WithTTL expires entries after ttl.  Zero keeps them forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *FingerprintCache) { c.ttl = ttl }
}

// WithMetrics counts hits and misses.
func WithMetrics(m *prometheus.RepoMetrics) CacheOption {
	return func(c *FingerprintCache) { c.metrics = m }
}

// NewFingerprintCache returns a cache over rdb.
func NewFingerprintCache(rdb redis.Cmdable, log logging.Logger, opts ...CacheOption) *FingerprintCache {
	c := &FingerprintCache{
		rdb:    rdb,
		prefix: config.DefaultRedisKeyPrefix,
		logger: logging.OrDefault(log).Named("fpcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OptionsFrom converts the cache configuration.
func OptionsFrom(cfg config.RedisConfig) []CacheOption {
	opts := []CacheOption{WithTTL(cfg.TTL)}
	if cfg.KeyPrefix != "" {
		opts = append(opts, WithPrefix(cfg.KeyPrefix))
	}
	return opts
}

func (c *FingerprintCache) fullKey(key string) string {
	return c.prefix + key
}

// Get implements molecule.FingerprintCache.  A stored value that is not a
// fingerprint counts as a miss and is logged.
func (c *FingerprintCache) Get(ctx context.Context, key string) (molecule.Fingerprint, bool, error) {
	val, err := c.rdb.Get(ctx, c.fullKey(key)).Result()
	if err == redis.Nil {
		c.metrics.RecordCacheAccess("redis", false)
		return "", false, nil
	}
	if err != nil {
		c.metrics.RecordError("fpcache", err)
		return "", false, errors.Wrap(err, errors.CodeCacheError, "failed to get from cache")
	}
	fp := molecule.Fingerprint(val)
	if !fp.Valid() {
		c.logger.Warn("ignoring malformed cached fingerprint", logging.String("key", key))
		c.metrics.RecordCacheAccess("redis", false)
		return "", false, nil
	}
	c.metrics.RecordCacheAccess("redis", true)
	return fp, true, nil
}

// Set implements molecule.FingerprintCache.
func (c *FingerprintCache) Set(ctx context.Context, key string, fp molecule.Fingerprint) error {
	if err := c.rdb.Set(ctx, c.fullKey(key), string(fp), c.ttl).Err(); err != nil {
		c.metrics.RecordError("fpcache", err)
		return errors.Wrap(err, errors.CodeCacheError, "failed to set cache")
	}
	return nil
}
