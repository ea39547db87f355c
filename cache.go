package tilecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/volatileimg/tilecache/config"
	"github.com/volatileimg/tilecache/internal/entry"
	"github.com/volatileimg/tilecache/internal/fetcher"
	"github.com/volatileimg/tilecache/internal/hash"
	"github.com/volatileimg/tilecache/internal/iostats"
	"github.com/volatileimg/tilecache/internal/queue"
	"github.com/volatileimg/tilecache/internal/table"
	"github.com/volatileimg/tilecache/internal/telemetry"
)

// Cache is the orchestrator tying together the entry state machine, the
// weak/soft table, the priority queue, and the fetcher pool: GetIfCached,
// CreateIfAbsent, PrepareNextFrame, InitIoTimeBudget, Clear, Close.
type Cache[K comparable, V Value] struct {
	log zerolog.Logger

	clock clock.Clock

	table    *table.Table[K, V]
	queue    *queue.Queue[K]
	fetchers *fetcher.Pool[K, V]
	stats    *iostats.Registry
	tel      *telemetry.Logs

	budgetMaxLevels      int
	defaultBudgetPartial []int64

	installMu         sync.Mutex
	currentQueueFrame atomic.Int64
	budgetExhausted   atomic.Int64

	sweepCancel context.CancelFunc
}

// New builds a Cache and starts its background workers (fetchers, the
// table's weak-tier sweep, and — if configured — telemetry). Close releases
// them all. metricsSink is optional (e.g. a *metrics/prom.Adapter); pass nil
// to skip Prometheus export and only log telemetry snapshots.
func New[K comparable, V Value](ctx context.Context, cfg *config.Cache, hasher Hasher[K], log zerolog.Logger, metricsSink telemetry.MetricsSink) *Cache[K, V] {
	if hasher == nil {
		hasher = hash.Default[K]
	}

	tbl := table.New[K, V](table.Config{
		Shards:          cfg.Table.Shards,
		SoftCapPerShard: cfg.Table.SoftCapPerShard,
		WeakCapPerShard: cfg.Table.WeakCapPerShard,
		SweepBudget:     cfg.Table.SweepBudgetPerShard,
	}, hasher)

	q := queue.New[K](cfg.Queue.PriorityLevels)

	c := &Cache[K, V]{
		log:                  log,
		clock:                clock.New(),
		table:                tbl,
		queue:                q,
		stats:                iostats.NewRegistry(nil),
		budgetMaxLevels:      cfg.Budget.MaxNumLevels,
		defaultBudgetPartial: cfg.Budget.DefaultPartialNs,
	}

	c.fetchers = fetcher.New[K, V](cfg.Fetcher.NumThreads, q, c.lookup, log)
	c.fetchers.Start(ctx)

	if cfg.Table.SweepRatePerSec > 0 {
		c.sweepCancel = tbl.RunSweep(ctx, cfg.Table.SweepRatePerSec)
	}

	if cfg.Telemetry.Enabled() {
		c.tel = telemetry.New(ctx, log, c, metricsSink, cfg.Telemetry.Interval)
	}

	return c
}

func (c *Cache[K, V]) lookup(key K) (*entry.Entry[K, V], bool) {
	return c.table.Get(key)
}

// GetIfCached looks up key; if present, applies hints and returns its
// current value (possibly still invalid) and true. An absent key returns the
// zero value and false without creating anything.
func (c *Cache[K, V]) GetIfCached(ctx context.Context, key K, hints Hints) (V, bool) {
	e, ok := c.table.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.applyHints(ctx, e, hints)
	return e.Value(), true
}

// CreateIfAbsent installs an invalid placeholder for key if absent — under
// the install lock, so no two entries are ever created for the same key
// (Invariant 4) — then applies hints and returns the entry's current value.
func (c *Cache[K, V]) CreateIfAbsent(ctx context.Context, key K, hints Hints, loader Loader[K, V]) V {
	c.installMu.Lock()
	e, ok := c.table.Get(key)
	if !ok {
		placeholder := loader.CreateEmptyValue(key)
		e = entry.New[K, V](key, placeholder, loader, c.table.PutSoft, c.clock)
		c.table.PutWeak(key, e)
	}
	c.installMu.Unlock()

	c.applyHints(ctx, e, hints)
	return e.Value()
}

func (c *Cache[K, V]) applyHints(ctx context.Context, e *entry.Entry[K, V], hints Hints) {
	switch hints.Strategy {
	case Volatile:
		c.enqueueIfNotThisFrame(e, hints.Priority, hints.EnqueueToFront)

	case Blocking:
		for {
			err := e.LoadIfNotValid(ctx)
			if err == nil || !errors.Is(err, context.Canceled) {
				return
			}
			// the original retries on InterruptedException; ctx cancellation
			// is this codebase's equivalent, so we just loop again.
		}

	case Budgeted:
		if !e.Value().IsValid() {
			c.loadOrEnqueue(ctx, e, hints.Priority, hints.EnqueueToFront)
		}

	case DontLoad:
		// never loads, enqueues, or waits.
	}
}

// enqueueIfNotThisFrame guarantees at most one enqueue per entry per frame,
// regardless of how many callers request it concurrently: exactly one
// caller's CompareAndSetEnqueueFrame wins the race and performs the Put.
func (c *Cache[K, V]) enqueueIfNotThisFrame(e *entry.Entry[K, V], priority int, toFront bool) {
	cur := c.currentQueueFrame.Load()
	if e.CompareAndSetEnqueueFrame(cur) {
		c.queue.Put(e.Key(), priority, toFront)
	}
}

// loadOrEnqueue consults the scope's IoTimeBudget: with time left at this
// priority, it enqueues (so a fetcher may race in) and waits up to the
// remaining budget, charging the actually-elapsed time; with none left, it
// just enqueues without waiting.
func (c *Cache[K, V]) loadOrEnqueue(ctx context.Context, e *entry.Entry[K, V], priority int, toFront bool) {
	scope, _ := ctx.Value(budgetScopeKey{}).(BudgetScope)
	if scope == nil {
		c.enqueueIfNotThisFrame(e, priority, toFront)
		return
	}

	budget := c.stats.GetOrCreate(scope).Budget(c.budgetMaxLevels, c.defaultBudgetPartial)
	timeLeft := budget.TimeLeft(priority)
	if timeLeft <= 0 {
		c.budgetExhausted.Add(1)
		c.enqueueIfNotThisFrame(e, priority, toFront)
		return
	}

	c.enqueueIfNotThisFrame(e, priority, toFront)

	start := c.clock.Now()
	e.Wait(ctx, time.Duration(timeLeft))
	budget.Use(c.clock.Now().Sub(start).Nanoseconds(), priority)
}

// budgetScopeKey is the context key under which WithBudgetScope stores a
// BudgetScope, so loadOrEnqueue can recover the calling renderer's scope
// without threading it through every call's argument list.
type budgetScopeKey struct{}

// WithBudgetScope attaches scope to ctx for the BUDGETED strategy to find.
func WithBudgetScope(ctx context.Context, scope BudgetScope) context.Context {
	return context.WithValue(ctx, budgetScopeKey{}, scope)
}

// PrepareNextFrame moves live queue contents to the prefetch buffer,
// finalizes any tombstoned weak-tier entries, then advances the frame
// counter — in that order, so any fetcher that dequeues right now is still
// servicing last frame's requests.
func (c *Cache[K, V]) PrepareNextFrame() {
	c.queue.ClearToPrefetch()
	c.table.FinalizeRemovedCacheEntries()
	c.currentQueueFrame.Add(1)
}

// InitIoTimeBudget resets scope's I/O time budget to partial.
func (c *Cache[K, V]) InitIoTimeBudget(scope BudgetScope, partial []int64) {
	c.stats.GetOrCreate(scope).Budget(c.budgetMaxLevels, nil).Reset(partial)
}

// Clear drops every entry from this cache's own table, discards every
// pending queue request (live and prefetch alike, nothing is moved to the
// prefetch buffer), then advances the frame counter — scoped to this
// instance only, since the table is never shared globally.
func (c *Cache[K, V]) Clear() {
	c.table.ClearCache()
	c.queue.Clear()
	c.currentQueueFrame.Add(1)
}

// Close shuts down the fetcher pool and releases background goroutines
// (the weak-tier sweep, telemetry).
func (c *Cache[K, V]) Close() error {
	if c.sweepCancel != nil {
		c.sweepCancel()
	}
	if c.tel != nil {
		_ = c.tel.Close()
	}
	return c.fetchers.Shutdown(context.Background())
}

// Fetchers returns the fetcher pool, for pause/wake control.
func (c *Cache[K, V]) Fetchers() *fetcher.Pool[K, V] { return c.fetchers }

// Stats returns the per-scope I/O statistics registry.
func (c *Cache[K, V]) Stats() *iostats.Registry { return c.stats }

// TableLens, QueueLen, FetcherBusy, and BudgetExhaustedCount satisfy
// telemetry.Snapshotter.
func (c *Cache[K, V]) TableLens() (soft, weak int) { return c.table.Lens() }

func (c *Cache[K, V]) QueueLen() (total int, perBand []int) {
	return c.queue.Len(), c.queue.BandLens()
}

func (c *Cache[K, V]) FetcherBusy() (busy, size int) {
	return c.fetchers.Busy(), c.fetchers.Size()
}

func (c *Cache[K, V]) BudgetExhaustedCount() int64 {
	return c.budgetExhausted.Load()
}
