package config

// BudgetCfg configures the per-scope I/O time budget (see internal/iostats).
type BudgetCfg struct {
	// MaxNumLevels is the number of priority levels a budget tracks.
	// Should match Queue.PriorityLevels.
	MaxNumLevels int `yaml:"max_num_levels"`

	// DefaultPartialNs, in nanoseconds per level, is applied with Reset to a
	// scope's budget when the BUDGETED path first creates it, so scopes the
	// caller never passes to InitIoTimeBudget still get a budget.
	DefaultPartialNs []int64 `yaml:"default_partial_ns"`
}
