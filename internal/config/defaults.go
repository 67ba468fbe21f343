package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultSolverExecutable = "dreadnaut"
	DefaultQuitTimeout      = time.Second
	DefaultReadChunkSize    = 1000

	DefaultShellMin    = 1
	DefaultShellMax    = 7
	DefaultFormat      = "lgf"
	DefaultArchivePath = "repo.zip"

	DefaultChunkSize       = 64
	DefaultReadConcurrency = 16

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "charge-archives"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisTimeout   = 3 * time.Second
	DefaultRedisKeyPrefix = "chargerepo:fp:"

	DefaultMetricsAddr      = ":9091"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "chargerepo"
)

// DefaultWorkers is the number of canonicalization workers when unset.
func DefaultWorkers() int {
	return runtime.NumCPU()
}

// ApplyDefaults fills zero-value fields in cfg.  Explicitly configured values
// are left untouched.  Shell sizes are only clamped here since zero is a
// valid setting for both; registerDefaults supplies them when loading from a
// file or the environment.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Solver ────────────────────────────────────────────────────────────────
	if cfg.Solver.Executable == "" {
		cfg.Solver.Executable = DefaultSolverExecutable
	}
	if cfg.Solver.QuitTimeout == 0 {
		cfg.Solver.QuitTimeout = DefaultQuitTimeout
	}
	if cfg.Solver.ReadChunkSize == 0 {
		cfg.Solver.ReadChunkSize = DefaultReadChunkSize
	}

	// ── Repository ────────────────────────────────────────────────────────────
	if cfg.Repository.ShellMin < 0 {
		cfg.Repository.ShellMin = 0
	}
	if cfg.Repository.Format == "" {
		cfg.Repository.Format = DefaultFormat
	}
	if cfg.Repository.ArchivePath == "" {
		cfg.Repository.ArchivePath = DefaultArchivePath
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Workers == 0 {
		cfg.Worker.Workers = DefaultWorkers()
	}
	if cfg.Worker.ReadConcurrency == 0 {
		cfg.Worker.ReadConcurrency = DefaultReadConcurrency
	}
	if cfg.Worker.ChunkSize == 0 {
		cfg.Worker.ChunkSize = DefaultChunkSize
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Storage / Cache / Metrics ─────────────────────────────────────────────
	if cfg.Storage.MinIO.Endpoint == "" {
		cfg.Storage.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.Storage.MinIO.Bucket == "" {
		cfg.Storage.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Cache.Redis.PoolSize == 0 {
		cfg.Cache.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Cache.Redis.DialTimeout == 0 {
		cfg.Cache.Redis.DialTimeout = DefaultRedisTimeout
	}
	if cfg.Cache.Redis.ReadTimeout == 0 {
		cfg.Cache.Redis.ReadTimeout = DefaultRedisTimeout
	}
	if cfg.Cache.Redis.WriteTimeout == 0 {
		cfg.Cache.Redis.WriteTimeout = DefaultRedisTimeout
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// registerDefaults tells viper about every key so that AutomaticEnv can bind
// CHARGE_* variables during Unmarshal even when no config file mentions them.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("solver.executable", DefaultSolverExecutable)
	v.SetDefault("solver.quit_timeout", DefaultQuitTimeout)
	v.SetDefault("solver.read_chunk_size", DefaultReadChunkSize)

	v.SetDefault("repository.shell_min", DefaultShellMin)
	v.SetDefault("repository.shell_max", DefaultShellMax)
	v.SetDefault("repository.traceable", false)
	v.SetDefault("repository.input_dir", "")
	v.SetDefault("repository.format", DefaultFormat)
	v.SetDefault("repository.archive_path", DefaultArchivePath)

	v.SetDefault("worker.workers", DefaultWorkers())
	v.SetDefault("worker.read_concurrency", DefaultReadConcurrency)
	v.SetDefault("worker.chunk_size", DefaultChunkSize)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("storage.minio.enabled", false)
	v.SetDefault("storage.minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.bucket", DefaultMinIOBucket)
	v.SetDefault("storage.minio.region", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.prefix", "")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.addr", DefaultRedisAddr)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", DefaultRedisPoolSize)
	v.SetDefault("cache.redis.dial_timeout", DefaultRedisTimeout)
	v.SetDefault("cache.redis.read_timeout", DefaultRedisTimeout)
	v.SetDefault("cache.redis.write_timeout", DefaultRedisTimeout)
	v.SetDefault("cache.redis.ttl", time.Duration(0))
	v.SetDefault("cache.redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)
	v.SetDefault("metrics.path", DefaultMetricsPath)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
}
