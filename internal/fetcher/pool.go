// Package fetcher implements the fixed-size worker pool that drains the
// fetch queue and drives each popped key's loader to completion.
package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/volatileimg/tilecache/internal/entry"
	"github.com/volatileimg/tilecache/internal/queue"
)

// Lookup resolves a bare key popped from the queue back to its entry. The
// queue only ever carries keys; the key->entry binding lives in the table.
type Lookup[K comparable, V entry.Value] func(key K) (*entry.Entry[K, V], bool)

// Pool is a fixed-size set of worker goroutines, each looping:
// wait-if-paused, Take a key, wait again if a pause began meanwhile, look it
// up, LoadIfNotValid. Supervised with
// errgroup the same way this codebase's other background worker pools are.
type Pool[K comparable, V entry.Value] struct {
	q      *queue.Queue[K]
	lookup Lookup[K, V]
	log    zerolog.Logger
	n      int

	eg     *errgroup.Group
	cancel context.CancelFunc
	busy   atomic.Int32

	pauseMu    sync.Mutex
	pauseCond  *sync.Cond
	pauseUntil time.Time
}

// New builds a Pool of n workers draining q, resolving keys via lookup.
func New[K comparable, V entry.Value](n int, q *queue.Queue[K], lookup Lookup[K, V], log zerolog.Logger) *Pool[K, V] {
	if n < 1 {
		n = 1
	}
	p := &Pool[K, V]{q: q, lookup: lookup, log: log, n: n}
	p.pauseCond = sync.NewCond(&p.pauseMu)
	return p
}

// Start launches the worker goroutines. It must be called at most once.
func (p *Pool[K, V]) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	eg, egCtx := errgroup.WithContext(runCtx)
	p.eg = eg

	context.AfterFunc(egCtx, func() {
		p.pauseMu.Lock()
		p.pauseCond.Broadcast()
		p.pauseMu.Unlock()
	})

	for i := 0; i < p.n; i++ {
		eg.Go(func() error {
			p.run(egCtx)
			return nil
		})
	}
}

func (p *Pool[K, V]) run(ctx context.Context) {
	for {
		p.waitWhilePaused(ctx)
		if ctx.Err() != nil {
			return
		}

		key, err := p.q.Take(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrShutdown) || ctx.Err() != nil {
				return
			}
			continue
		}

		// a pause that began while this worker was blocked in Take still
		// holds the popped key until the pause ends.
		p.waitWhilePaused(ctx)
		if ctx.Err() != nil {
			return
		}

		e, ok := p.lookup(key)
		if !ok {
			continue
		}

		p.busy.Add(1)
		if err := e.LoadIfNotValid(ctx); err != nil {
			p.log.Debug().Err(err).Any("key", key).Msg("fetcher: loader failed, entry stays invalid")
		}
		p.busy.Add(-1)
	}
}

// Busy reports how many workers are currently inside a loader call, for
// telemetry snapshots.
func (p *Pool[K, V]) Busy() int { return int(p.busy.Load()) }

// Size reports the configured worker count.
func (p *Pool[K, V]) Size() int { return p.n }

// waitWhilePaused blocks the calling worker until the pause deadline passes,
// Wake is called, or ctx is done — a condition variable with a deadline,
// never an interrupted blocking call.
func (p *Pool[K, V]) waitWhilePaused(ctx context.Context) {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	for {
		remaining := time.Until(p.pauseUntil)
		if remaining <= 0 || ctx.Err() != nil {
			return
		}
		timer := time.AfterFunc(remaining, func() {
			p.pauseMu.Lock()
			p.pauseCond.Broadcast()
			p.pauseMu.Unlock()
		})
		p.pauseCond.Wait()
		timer.Stop()
	}
}

// PauseFetchersFor pauses every worker until d elapses or Wake is called.
func (p *Pool[K, V]) PauseFetchersFor(d time.Duration) {
	p.pauseMu.Lock()
	p.pauseUntil = time.Now().Add(d)
	p.pauseCond.Broadcast()
	p.pauseMu.Unlock()
}

// PauseFetchersUntil pauses every worker until the wall-clock deadline or
// Wake is called, whichever comes first.
func (p *Pool[K, V]) PauseFetchersUntil(deadline time.Time) {
	p.pauseMu.Lock()
	p.pauseUntil = deadline
	p.pauseCond.Broadcast()
	p.pauseMu.Unlock()
}

// Wake ends any current pause immediately.
func (p *Pool[K, V]) Wake() {
	p.pauseMu.Lock()
	p.pauseUntil = time.Time{}
	p.pauseCond.Broadcast()
	p.pauseMu.Unlock()
}

// Shutdown closes the queue, cancels the workers' context, and waits for
// every worker to exit or ctx to expire, whichever comes first.
func (p *Pool[K, V]) Shutdown(ctx context.Context) error {
	p.q.Shutdown()
	if p.cancel != nil {
		p.cancel()
	}
	if p.eg == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.eg.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
