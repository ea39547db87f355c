package config

// FetcherCfg configures the fetcher worker pool (see internal/fetcher).
type FetcherCfg struct {
	// NumThreads is the fixed number of fetcher worker goroutines.
	NumThreads int `yaml:"num_threads"`
}
