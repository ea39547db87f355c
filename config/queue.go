package config

// QueueCfg configures the blocking fetch queue (see internal/queue).
type QueueCfg struct {
	// PriorityLevels is the number of priority bands, N in CacheHints'
	// Priority range 0..N-1.
	PriorityLevels int `yaml:"priority_levels"`
}
