// Package queue implements the priority-banded blocking fetch queue that
// sits between GetIfCached/CreateIfAbsent's VOLATILE enqueue decisions and
// the fetcher pool that drains them.
package queue

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrShutdown is returned by Take once the queue has been shut down.
var ErrShutdown = errors.New("queue: shut down")

// Queue is an N-priority-band deque plus a prefetch swap buffer. Band 0 is
// highest priority. Take always prefers a live band over the prefetch
// buffer, and within a band serves FIFO from the front.
type Queue[K comparable] struct {
	mu   sync.Mutex
	cond *sync.Cond

	bands    []*list.List
	prefetch *list.List

	shutdown bool
}

// New builds a Queue with the given number of priority bands.
func New[K comparable](bands int) *Queue[K] {
	if bands < 1 {
		bands = 1
	}
	q := &Queue[K]{
		bands:    make([]*list.List, bands),
		prefetch: list.New(),
	}
	for i := range q.bands {
		q.bands[i] = list.New()
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends key to the chosen end of band priority. Bands outside
// [0, len(bands)) clamp to the nearest valid band.
func (q *Queue[K]) Put(key K, priority int, toFront bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return
	}
	b := q.bandFor(priority)
	if toFront {
		b.PushFront(key)
	} else {
		b.PushBack(key)
	}
	q.cond.Signal()
}

func (q *Queue[K]) bandFor(priority int) *list.List {
	if priority < 0 {
		priority = 0
	}
	if priority >= len(q.bands) {
		priority = len(q.bands) - 1
	}
	return q.bands[priority]
}

// Take blocks until a key is available, the queue is shut down, or ctx is
// cancelled. It returns a key from the highest-priority non-empty live band,
// falling back to the prefetch buffer only when every live band is empty.
func (q *Queue[K]) Take(ctx context.Context) (K, error) {
	var zero K

	// ctx cancellation wakes a blocked cond.Wait by running in its own
	// goroutine and broadcasting — cond has no native ctx support.
	done := make(chan struct{})
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer stop()
		defer close(done)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if key, ok := q.popLocked(); ok {
			return key, nil
		}
		if q.shutdown {
			return zero, ErrShutdown
		}
		if ctx != nil {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			default:
			}
		}
		q.cond.Wait()
	}
}

func (q *Queue[K]) popLocked() (K, bool) {
	var zero K
	for _, b := range q.bands {
		if b.Len() > 0 {
			el := b.Front()
			b.Remove(el)
			return el.Value.(K), true
		}
	}
	if q.prefetch.Len() > 0 {
		el := q.prefetch.Front()
		q.prefetch.Remove(el)
		return el.Value.(K), true
	}
	return zero, false
}

// ClearToPrefetch drains all live bands into the prefetch buffer, preserving
// band order (highest priority first) and within-band order. New Puts still
// go to the live bands and are served ahead of the prefetch buffer.
func (q *Queue[K]) ClearToPrefetch() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.bands {
		for el := b.Front(); el != nil; {
			next := el.Next()
			b.Remove(el)
			q.prefetch.PushBack(el.Value)
			el = next
		}
	}
}

// Clear drops every pending request, live and prefetch alike, discarding
// them outright rather than moving them anywhere.
func (q *Queue[K]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.bands {
		b.Init()
	}
	q.prefetch.Init()
}

// Shutdown closes the queue; every blocked and future Take returns
// ErrShutdown.
func (q *Queue[K]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdown = true
	q.cond.Broadcast()
}

// Len reports the total number of pending keys across live bands and the
// prefetch buffer, for telemetry snapshots.
func (q *Queue[K]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := q.prefetch.Len()
	for _, b := range q.bands {
		total += b.Len()
	}
	return total
}

// BandLens reports the pending count of each live priority band, for
// telemetry snapshots.
func (q *Queue[K]) BandLens() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.bands))
	for i, b := range q.bands {
		out[i] = b.Len()
	}
	return out
}
