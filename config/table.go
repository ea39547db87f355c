package config

// TableCfg configures the weak/soft key->entry table (see internal/table).
type TableCfg struct {
	// Capacity is the total desired soft-tier size, across all shards.
	Capacity int `yaml:"capacity"`

	// Shards is the number of independent table shards. Rounded up to the
	// next power of two by internal/table.New.
	Shards int `yaml:"shards"`

	// WeakCapPerShard is handed to each table shard but not enforced: the
	// weak tier has no length bound, whatever this is set to.
	WeakCapPerShard int `yaml:"weak_cap_per_shard"`

	// SweepRatePerSec paces the background weak-tier sweep via a leaky
	// bucket, the same way internal/shared/rate.Jitter paces other
	// background work in this codebase.
	SweepRatePerSec int `yaml:"sweep_rate_per_sec"`

	// SweepBudgetPerShard caps how many weak-tier entries a single sweep
	// tick tombstones per shard.
	SweepBudgetPerShard int `yaml:"sweep_budget_per_shard"`

	// SoftCapPerShard is derived from Capacity and Shards during
	// AdjustConfig. It is not read from YAML.
	SoftCapPerShard int // virtual: computed during init
}
