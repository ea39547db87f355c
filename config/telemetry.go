package config

import "time"

// TelemetryCfg configures periodic structured-log snapshots of cache state:
// entries resident, soft vs weak counts, queue depth per band, budget
// exhaustion counts, fetcher busy/idle.
type TelemetryCfg struct {
	Interval time.Duration `yaml:"interval"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil
}
