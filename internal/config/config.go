// Package config defines the configuration structures of the charge
// repository tools.  Loading lives in loader.go and defaults in defaults.go;
// this file holds only data types and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// SolverConfig configures the dreadnaut child process.
type SolverConfig struct {
	// Executable is the path to the dreadnaut binary.  A bare name is looked
	// up on PATH.
	Executable string `mapstructure:"executable"`

	// QuitTimeout bounds how long Close waits for dreadnaut to exit after the
	// quit command before killing it.
	QuitTimeout time.Duration `mapstructure:"quit_timeout"`

	// ReadChunkSize is the stdout read granularity.
	ReadChunkSize int `mapstructure:"read_chunk_size"`
}

// RepositoryConfig configures corpus builds and the local archive.
type RepositoryConfig struct {
	ShellMin  int  `mapstructure:"shell_min"`
	ShellMax  int  `mapstructure:"shell_max"`
	Traceable bool `mapstructure:"traceable"`

	// InputDir holds one molecule file per molecule, named <molid>.<format>.
	InputDir string `mapstructure:"input_dir"`

	// Format selects the molecule reader: "lgf" or "yaml".
	Format string `mapstructure:"format"`

	// ArchivePath is where build writes and the other commands read.
	ArchivePath string `mapstructure:"archive_path"`
}

// WorkerConfig sizes the build's worker pools.
type WorkerConfig struct {
	// Workers is the number of canonicalization workers, each owning one
	// solver process.
	Workers int `mapstructure:"workers"`

	// ReadConcurrency bounds concurrent molecule file reads.
	ReadConcurrency int `mapstructure:"read_concurrency"`

	// ChunkSize is the number of molecules per per-shell accumulation task.
	ChunkSize int `mapstructure:"chunk_size"`
}

// MinIOConfig holds the object storage parameters for remote archives.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// Prefix is prepended to every object name.
	Prefix string `mapstructure:"prefix"`
}

// StorageConfig groups remote storage backends.
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

// RedisConfig holds the connection parameters of the shared fingerprint
// cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// CacheConfig groups cache backends.
type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Solver     SolverConfig      `mapstructure:"solver"`
	Repository RepositoryConfig  `mapstructure:"repository"`
	Worker     WorkerConfig      `mapstructure:"worker"`
	Log        logging.LogConfig `mapstructure:"log"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Cache      CacheConfig       `mapstructure:"cache"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

var supportedFormats = map[string]bool{"lgf": true, "yaml": true}

// Validate checks cross-field constraints.  It assumes ApplyDefaults has run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Solver.Executable) == "" {
		return fmt.Errorf("config: solver.executable is required")
	}
	if c.Solver.ReadChunkSize <= 0 {
		return fmt.Errorf("config: solver.read_chunk_size must be positive, got %d", c.Solver.ReadChunkSize)
	}
	if c.Repository.ShellMax < 0 {
		return fmt.Errorf("config: repository.shell_max must not be negative, got %d", c.Repository.ShellMax)
	}
	if c.Repository.ShellMin > c.Repository.ShellMax {
		return fmt.Errorf("config: repository.shell_min (%d) exceeds shell_max (%d)",
			c.Repository.ShellMin, c.Repository.ShellMax)
	}
	if !supportedFormats[c.Repository.Format] {
		return fmt.Errorf("config: repository.format %q is not one of lgf, yaml", c.Repository.Format)
	}
	if c.Worker.Workers <= 0 {
		return fmt.Errorf("config: worker.workers must be positive, got %d", c.Worker.Workers)
	}
	if c.Worker.ChunkSize <= 0 {
		return fmt.Errorf("config: worker.chunk_size must be positive, got %d", c.Worker.ChunkSize)
	}
	if c.Storage.MinIO.Enabled {
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("config: storage.minio.endpoint and storage.minio.bucket are required when minio is enabled")
		}
	}
	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("config: cache.redis.addr is required when redis is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("config: metrics.addr is required when metrics are enabled")
	}
	return nil
}
