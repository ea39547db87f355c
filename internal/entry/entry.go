// Package entry implements the per-key state machine at the core of the
// cache: a key, a possibly-invalid value, the loader that can make it valid,
// and the frame marker used to deduplicate enqueues.
package entry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrLoaderFailed wraps an error returned by a Loader. The entry stays
// invalid; the caller's next request simply retries via the fetcher.
var ErrLoaderFailed = errors.New("entry: loader failed")

// Value mirrors tilecache.Value. Declared locally so this package never
// imports the root package (which imports this one) — any type satisfying
// tilecache.Value automatically satisfies this identical method set.
type Value interface {
	IsValid() bool
}

// Loader mirrors tilecache.Loader[K, V] for the same reason.
type Loader[K comparable, V Value] interface {
	Load(ctx context.Context, key K) (V, error)
	CreateEmptyValue(key K) V
}

// box indirects V behind a pointer so it can be swapped atomically without
// requiring V to itself be a pointer or implement any atomic-friendly shape.
type box[V any] struct{ v V }

// Entry is the cache's unit of retention: a key, its current value (valid or
// not), the loader that can produce a valid value, and the frame marker used
// by the orchestrator to guarantee at most one enqueue per entry per frame.
type Entry[K comparable, V Value] struct {
	key     K
	loader  Loader[K, V]
	promote func(K, *Entry[K, V])
	clk     clock.Clock

	mu      sync.Mutex
	value   atomic.Pointer[box[V]]
	readyCh chan struct{}

	enqueueFrame atomic.Int64
}

// New builds a fresh entry holding initial (which must be invalid). promote is
// called exactly once, while the entry's own lock is held, the moment the
// value becomes valid — the table uses it to move the entry from weak to
// soft retention (Invariant 3 / "soft promotion"). clk times Wait's deadline;
// a nil clk defaults to the real wall clock, so tests can pass a
// *clock.Mock and drive the BUDGETED timed-wait path without real sleeps.
func New[K comparable, V Value](key K, initial V, loader Loader[K, V], promote func(K, *Entry[K, V]), clk clock.Clock) *Entry[K, V] {
	if clk == nil {
		clk = clock.New()
	}
	e := &Entry[K, V]{
		key:     key,
		loader:  loader,
		promote: promote,
		clk:     clk,
		readyCh: make(chan struct{}),
	}
	e.value.Store(&box[V]{v: initial})
	e.enqueueFrame.Store(-1)
	return e
}

// Key returns the entry's key.
func (e *Entry[K, V]) Key() K { return e.key }

// Value returns the current value. Safe for lock-free concurrent reads: it is
// published via an atomic store paired with this atomic load, so observing a
// valid value implies observing its fully populated payload.
func (e *Entry[K, V]) Value() V { return e.value.Load().v }

// EnqueueFrame returns the frame number this entry was last enqueued for, or
// -1 if never enqueued, or math.MaxInt64 once the value is valid.
func (e *Entry[K, V]) EnqueueFrame() int64 { return e.enqueueFrame.Load() }

// SetEnqueueFrame records the frame this entry is being enqueued for.
func (e *Entry[K, V]) SetEnqueueFrame(f int64) { e.enqueueFrame.Store(f) }

// CompareAndSetEnqueueFrame atomically sets the frame marker to newFrame iff
// it is currently less than newFrame, returning whether it did so. This is
// the primitive behind "at most one enqueue per entry per frame": the
// orchestrator calls it before pushing to the queue, so concurrent callers
// racing on the same entry in the same frame have exactly one winner.
func (e *Entry[K, V]) CompareAndSetEnqueueFrame(newFrame int64) bool {
	for {
		cur := e.enqueueFrame.Load()
		if cur >= newFrame {
			return false
		}
		if e.enqueueFrame.CompareAndSwap(cur, newFrame) {
			return true
		}
	}
}

// Ready returns a channel that is closed exactly once, the moment the value
// becomes valid. Used by the BUDGETED wait path alongside a timeout/ctx select.
func (e *Entry[K, V]) Ready() <-chan struct{} { return e.readyCh }

// LoadIfNotValid loads the entry's value if it isn't already valid. Multiple
// concurrent callers race to acquire the entry's own lock; the double-checked
// validity test after acquiring it is safe because IsValid() is monotonic —
// a caller that loses the race simply observes the winner's now-valid value.
func (e *Entry[K, V]) LoadIfNotValid(ctx context.Context) error {
	if e.Value().IsValid() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Value().IsValid() {
		return nil
	}

	v, err := e.loader.Load(ctx, e.key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoaderFailed, err)
	}

	e.value.Store(&box[V]{v: v})
	e.enqueueFrame.Store(math.MaxInt64)
	if e.promote != nil {
		e.promote(e.key, e)
	}
	close(e.readyCh)

	return nil
}

// Wait blocks until the value becomes valid, timeout elapses, or ctx is
// cancelled — whichever comes first. The caller must re-check Value().IsValid()
// afterwards; a timeout or cancellation is not an error, just a boundary.
func (e *Entry[K, V]) Wait(ctx context.Context, timeout time.Duration) {
	if e.Value().IsValid() {
		return
	}
	timer := e.clk.Timer(timeout)
	defer timer.Stop()
	select {
	case <-e.readyCh:
	case <-timer.C:
	case <-ctx.Done():
	}
}
