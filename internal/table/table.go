// Package table implements the cache's weak/soft retention tier: a sharded
// key->entry map split into a capacity-bounded "soft" tier (valid entries
// actively retained) and an unbounded "weak" tier (never-loaded or
// capacity-evicted entries), standing in for the reachability-based
// soft/weak references the Java original relies on the garbage collector
// for. Go has no weak references, so retention here is explicit: a
// background sweep (sweep.go) tombstones stale weak-tier entries, and
// FinalizeRemovedCacheEntries drains those tombstones at a frame boundary.
package table

import (
	"context"
	"sync"

	"github.com/volatileimg/tilecache/internal/entry"
)

// tombstone is a candidate for removal from a shard's weak tier, recorded by
// the sweep and resolved (with an ABA guard) by FinalizeRemovedCacheEntries.
type tombstone[K comparable, V entry.Value] struct {
	key   K
	shard int
	e     *entry.Entry[K, V]
}

// Config controls sharding and per-shard capacity.
type Config struct {
	Shards          int
	SoftCapPerShard int
	WeakCapPerShard int
	SweepBudget     int // max weak-tier entries tombstoned per shard per sweep tick
}

// Table is the sharded weak/soft key->entry map.
type Table[K comparable, V entry.Value] struct {
	hash   func(K) uint64
	shards []*shardOf[K, V]
	mask   uint64

	tombMu sync.Mutex
	tombs  []tombstone[K, V]

	sweepBudget int
	stopSweep   context.CancelFunc
}

// New builds a Table with shardCount rounded up to the next power of two.
func New[K comparable, V entry.Value](cfg Config, hasher func(K) uint64) *Table[K, V] {
	n := nextPow2(cfg.Shards)
	t := &Table[K, V]{
		hash:        hasher,
		shards:      make([]*shardOf[K, V], n),
		mask:        uint64(n - 1),
		sweepBudget: cfg.SweepBudget,
	}
	for i := range t.shards {
		t.shards[i] = newShard[K, V](cfg.SoftCapPerShard, cfg.WeakCapPerShard)
	}
	return t
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (t *Table[K, V]) shardIndex(key K) (int, *shardOf[K, V]) {
	idx := int(t.hash(key) & t.mask)
	return idx, t.shards[idx]
}

// Get returns the entry bound to key, from either tier.
func (t *Table[K, V]) Get(key K) (*entry.Entry[K, V], bool) {
	_, sh := t.shardIndex(key)
	return sh.get(key)
}

// PutWeak binds a freshly created entry into the weak tier. Called once, at
// creation, before the entry has ever been loaded.
func (t *Table[K, V]) PutWeak(key K, e *entry.Entry[K, V]) {
	_, sh := t.shardIndex(key)
	sh.putWeak(key, e)
}

// PutSoft installs or upgrades key into the soft tier; it is the function
// passed as entry.New's promote callback. Any soft-tier entries displaced by
// the resulting capacity pressure are demoted back to weak, never dropped
// outright — only the sweep ever removes a binding entirely.
func (t *Table[K, V]) PutSoft(key K, e *entry.Entry[K, V]) {
	_, sh := t.shardIndex(key)
	sh.promoteToSoft(key, e)
}

// ClearCache drops every entry from every shard and returns the count
// removed. Scoped to this Table instance only — a second Table sharing
// nothing with this one is unaffected, resolving the single-process-wide
// cache ambiguity in favor of per-instance isolation.
func (t *Table[K, V]) ClearCache() int {
	total := 0
	for _, sh := range t.shards {
		total += sh.clear()
	}
	t.tombMu.Lock()
	t.tombs = nil
	t.tombMu.Unlock()
	return total
}

// Lens returns the total soft and weak tier occupancy across all shards.
func (t *Table[K, V]) Lens() (soft, weak int) {
	for _, sh := range t.shards {
		s, w := sh.lens()
		soft += s
		weak += w
	}
	return soft, weak
}

// sweepOnce scans every shard's weak tier for stale, never-loaded entries and
// records them as tombstones — see shardOf.sweepCandidates for the selection
// policy. It takes them off the weak tier's LRU bookkeeping but leaves their
// weak-tier bindings in place for FinalizeRemovedCacheEntries to remove.
func (t *Table[K, V]) sweepOnce() int {
	found := 0
	for i, sh := range t.shards {
		cands := sh.sweepCandidates(t.sweepBudget)
		if len(cands) == 0 {
			continue
		}
		t.tombMu.Lock()
		for _, c := range cands {
			c.shard = i
			t.tombs = append(t.tombs, c)
		}
		t.tombMu.Unlock()
		found += len(cands)
	}
	return found
}

// FinalizeRemovedCacheEntries drains the tombstone backlog accumulated since
// the last call and deletes each one from its shard's weak tier, but only if
// the shard's current binding for that key still points at the exact
// tombstoned entry — guarding against the ABA where a new Put rebound the key
// between the sweep marking it and this finalize call. Intended to run once
// per frame boundary, from the orchestrator's PrepareNextFrame.
func (t *Table[K, V]) FinalizeRemovedCacheEntries() int {
	t.tombMu.Lock()
	pending := t.tombs
	t.tombs = nil
	t.tombMu.Unlock()

	removed := 0
	for _, ts := range pending {
		if t.shards[ts.shard].finalize(ts.key, ts.e) {
			removed++
		}
	}
	return removed
}
