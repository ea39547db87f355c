package tilecache

import "github.com/volatileimg/tilecache/internal/iostats"

// BudgetScope identifies a renderer/caller group for I/O budget accounting —
// the Go-native stand-in for a JVM thread group identity. Any comparable
// value works.
type BudgetScope = iostats.Scope

// Hasher hashes a key into a uint64 for table sharding.
type Hasher[K comparable] func(K) uint64
