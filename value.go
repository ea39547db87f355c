package tilecache

import "context"

// Value is an opaque cached payload. IsValid must transition monotonically
// from false to true and never back; implementations may assume this holds.
type Value interface {
	IsValid() bool
}

// Loader produces values for a key. Load must return a valid V; CreateEmptyValue
// must return an invalid placeholder. Both must be safe for concurrent calls
// with the same key — the cache itself only serializes the first Load per key,
// but a caller may hold its own Loader across many keys.
type Loader[K comparable, V Value] interface {
	Load(ctx context.Context, key K) (V, error)
	CreateEmptyValue(key K) V
}
