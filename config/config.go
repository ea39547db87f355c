package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AdjustConfig derives fields that aren't read from YAML directly.
func (cfg *Cache) AdjustConfig() {
	if cfg.Table.Shards < 1 {
		cfg.Table.Shards = 1
	}
	cfg.Table.SoftCapPerShard = cfg.Table.Capacity / cfg.Table.Shards
	if cfg.Table.SoftCapPerShard < 1 {
		cfg.Table.SoftCapPerShard = 1
	}

	if cfg.Table.SweepRatePerSec > 0 && cfg.Table.SweepBudgetPerShard < 1 {
		cfg.Table.SweepBudgetPerShard = 64
	}

	if cfg.Queue.PriorityLevels < 1 {
		cfg.Queue.PriorityLevels = 1
	}
	if cfg.Budget.MaxNumLevels < 1 {
		cfg.Budget.MaxNumLevels = cfg.Queue.PriorityLevels
	}
	if cfg.Fetcher.NumThreads < 1 {
		cfg.Fetcher.NumThreads = 1
	}
}

// LoadConfig reads and unmarshals a Cache config from a YAML file at path,
// then applies AdjustConfig.
func LoadConfig(path string) (*Cache, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Cache
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	cfg.AdjustConfig()

	return cfg, nil
}
