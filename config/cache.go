// Package config loads and derives the cache's runtime configuration,
// following this codebase's convention of one YAML-tagged struct per
// subsystem, optional subsystems as nil-able pointers with an Enabled()
// nil-receiver method, and a post-load AdjustConfig derivation step.
package config

// Cache groups configuration of all cache subsystems. Table, Queue, Fetcher,
// and Budget are always active; Telemetry is optional and disabled by
// setting it to nil.
type Cache struct {
	Table   TableCfg   `yaml:"table"`
	Queue   QueueCfg   `yaml:"queue"`
	Fetcher FetcherCfg `yaml:"fetcher"`
	Budget  BudgetCfg  `yaml:"budget"`

	// Telemetry configures periodic structured-log snapshots of cache state.
	// If nil, no snapshots are logged.
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}
