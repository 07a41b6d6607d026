package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/fallback/selection"
	"github.com/vietddude/keeper/internal/infra/drand"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Chain.ID == 0 {
		c.Chain.ID = domain.ChainIDEthereum
	}
	if c.Chain.Timeout == 0 {
		c.Chain.Timeout = 10 * time.Second
	}

	if c.Drand.URL == "" {
		c.Drand.URL = drand.DefaultURL
	}
	if c.Drand.ChainHash == "" {
		c.Drand.ChainHash = drand.DefaultChainHash
	}
	if c.Drand.Genesis == 0 {
		c.Drand.Genesis = drand.DefaultGenesis
	}
	if c.Drand.Period == 0 {
		c.Drand.Period = drand.DefaultPeriod
	}
	if c.Drand.Timeout == 0 {
		c.Drand.Timeout = c.Chain.Timeout
	}

	for i := range c.Jobs {
		c.Jobs[i].applyDefaults(c.Chain.ID)
	}
}

func (j *JobConfig) applyDefaults(chainID domain.ChainID) {
	if j.Name == "" {
		j.Name = j.Type
	}
	if j.Schedule == "" {
		j.Schedule = "@every 1m"
	}
	if j.MaxRangeChunkWidth == 0 {
		j.MaxRangeChunkWidth = 1000
	}
	if j.MaxChunksPerInvocation == 0 {
		j.MaxChunksPerInvocation = 10
	}
	if j.MaxBatchSize == 0 {
		j.MaxBatchSize = 100
	}
	if j.Selection.Window == 0 {
		j.Selection.Window = j.MaxBatchSize
	}
	if j.Selection.Attempts == 0 {
		j.Selection.Attempts = 1
	}

	switch j.Type {
	case JobTypeVRF:
		if j.AgeThreshold == 0 {
			j.AgeThreshold = 60 * time.Second
		}
		if j.ConfirmationDelay == nil {
			delay := domain.DefaultConfirmationDelay(chainID)
			j.ConfirmationDelay = &delay
		}
		if j.Selection.Mode == "" {
			j.Selection.Mode = string(selection.ModeSingle)
		}
	case JobTypeSpin:
		if j.ConfirmationDelay == nil {
			var none uint64
			j.ConfirmationDelay = &none
		}
		if j.Selection.Mode == "" {
			j.Selection.Mode = string(selection.ModeExhaustive)
		}
	}
}

// Validate checks the configuration after defaults were applied.
func (c *AppConfig) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if len(c.Chain.Providers) == 0 {
		return errors.New("chain.providers must not be empty")
	}
	for _, p := range c.Chain.Providers {
		if p.URL == "" {
			return fmt.Errorf("provider %q has no url", p.Name)
		}
	}
	if c.Chain.Multicall != "" && !common.IsHexAddress(c.Chain.Multicall) {
		return fmt.Errorf("chain.multicall %q is not an address", c.Chain.Multicall)
	}

	seen := make(map[string]bool, len(c.Jobs))
	for _, j := range c.Jobs {
		if seen[j.Name] {
			return fmt.Errorf("duplicate job name %q", j.Name)
		}
		seen[j.Name] = true
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
	}
	return nil
}

// Validate checks one job's settings.
func (j *JobConfig) Validate() error {
	var required map[string]string
	switch j.Type {
	case JobTypeVRF:
		required = map[string]string{"consumer": j.Consumer}
	case JobTypeSpin:
		required = map[string]string{"table": j.Table, "roulette": j.Roulette}
	default:
		return fmt.Errorf("unknown job type %q", j.Type)
	}
	for key, addr := range required {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s %q is not an address", key, addr)
		}
	}
	if j.SimulationAccount != "" && !common.IsHexAddress(j.SimulationAccount) {
		return fmt.Errorf("simulation_account %q is not an address", j.SimulationAccount)
	}

	if _, err := selection.ParseMode(j.Selection.Mode); err != nil {
		return err
	}
	if j.Selection.Window < 0 || j.Selection.Attempts < 0 {
		return errors.New("selection window and attempts must not be negative")
	}
	return nil
}
