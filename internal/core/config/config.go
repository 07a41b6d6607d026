package config

import (
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/drand"
	redisclient "github.com/vietddude/keeper/internal/infra/redis"
	"github.com/vietddude/keeper/internal/infra/storage/postgres"
)

// Job types.
const (
	JobTypeVRF  = "vrf"
	JobTypeSpin = "spin"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Storage  StorageConfig      `yaml:"storage"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Chain    ChainConfig        `yaml:"chain"`
	Drand    drand.Config       `yaml:"drand"`
	Jobs     []JobConfig        `yaml:"jobs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StorageConfig selects where cursors and queues are persisted.
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, redis, postgres
}

// ChainConfig holds settings for the chain all jobs read from.
type ChainConfig struct {
	ID        domain.ChainID   `yaml:"id"`
	Timeout   time.Duration    `yaml:"timeout"`
	Multicall string           `yaml:"multicall"` // empty = canonical Multicall3 for the chain
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// JobConfig holds the settings of one fallback job.
type JobConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`     // vrf, spin
	Schedule string `yaml:"schedule"` // cron spec, e.g. "@every 1m"

	MaxRangeChunkWidth     uint64        `yaml:"max_range_chunk_width"`
	MaxChunksPerInvocation int           `yaml:"max_chunks_per_invocation"`
	MaxBatchSize           int           `yaml:"max_batch_size"`
	AgeThreshold           time.Duration `yaml:"age_threshold"`
	ConfirmationDelay      *uint64       `yaml:"confirmation_delay"` // nil = chain default
	FromPosition           *uint64       `yaml:"from_position"`

	Selection SelectionConfig `yaml:"selection"`

	SimulationAccount string `yaml:"simulation_account"`

	// vrf
	Consumer     string   `yaml:"consumer"`
	PruneReverts []string `yaml:"prune_reverts"`

	// spin
	Table    string `yaml:"table"`
	Roulette string `yaml:"roulette"`
	// DueWhenFunded makes rounds holding bets due without waiting for age_threshold
	DueWhenFunded bool `yaml:"due_when_funded"`
}

// SelectionConfig controls how eligible requests are attempted.
type SelectionConfig struct {
	Mode     string `yaml:"mode"` // single, exhaustive
	Window   int    `yaml:"window"`
	Attempts int    `yaml:"attempts"`
}
