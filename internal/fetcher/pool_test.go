package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/volatileimg/tilecache/internal/entry"
	"github.com/volatileimg/tilecache/internal/queue"
)

type testValue struct{ valid atomic.Bool }

func (v *testValue) IsValid() bool { return v.valid.Load() }

type instantLoader struct{ invokes atomic.Int64 }

func (l *instantLoader) Load(ctx context.Context, key string) (*testValue, error) {
	l.invokes.Add(1)
	v := &testValue{}
	v.valid.Store(true)
	return v, nil
}
func (*instantLoader) CreateEmptyValue(key string) *testValue { return &testValue{} }

func newTestPool(n int) (*Pool[string, *testValue], *queue.Queue[string], map[string]*entry.Entry[string, *testValue], *sync.Mutex) {
	q := queue.New[string](3)
	var mu sync.Mutex
	entries := make(map[string]*entry.Entry[string, *testValue])
	lookup := func(key string) (*entry.Entry[string, *testValue], bool) {
		mu.Lock()
		defer mu.Unlock()
		e, ok := entries[key]
		return e, ok
	}
	p := New[string, *testValue](n, q, lookup, zerolog.Nop())
	return p, q, entries, &mu
}

func TestPool_DrainsQueueAndLoadsEntries(t *testing.T) {
	p, q, entries, mu := newTestPool(2)
	loader := &instantLoader{}
	mu.Lock()
	e := entry.New[string, *testValue]("k", &testValue{}, loader, nil, nil)
	entries["k"] = e
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Start(ctx)
	q.Put("k", 0, false)

	require.Eventually(t, func() bool { return e.Value().IsValid() }, time.Second, time.Millisecond)
	require.Equal(t, int64(1), loader.invokes.Load())
}

func TestPool_UnknownKeyIsSkippedNotFatal(t *testing.T) {
	p, q, _, _ := newTestPool(1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	p.Start(ctx)
	q.Put("ghost", 0, false)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPauseFetchersFor_DelaysProcessingUntilElapsed(t *testing.T) {
	p, q, entries, mu := newTestPool(1)
	loader := &instantLoader{}
	mu.Lock()
	e := entry.New[string, *testValue]("k", &testValue{}, loader, nil, nil)
	entries["k"] = e
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.PauseFetchersFor(100 * time.Millisecond)
	p.Start(ctx)
	q.Put("k", 0, false)

	time.Sleep(20 * time.Millisecond)
	require.False(t, e.Value().IsValid(), "loader must not run while paused")

	require.Eventually(t, func() bool { return e.Value().IsValid() }, time.Second, time.Millisecond)
}

func TestPauseFetchersUntil_DelaysProcessingUntilDeadline(t *testing.T) {
	p, q, entries, mu := newTestPool(1)
	loader := &instantLoader{}
	mu.Lock()
	e := entry.New[string, *testValue]("k", &testValue{}, loader, nil, nil)
	entries["k"] = e
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.PauseFetchersUntil(time.Now().Add(100 * time.Millisecond))
	p.Start(ctx)
	q.Put("k", 0, false)

	time.Sleep(20 * time.Millisecond)
	require.False(t, e.Value().IsValid(), "loader must not run while paused")

	require.Eventually(t, func() bool { return e.Value().IsValid() }, time.Second, time.Millisecond)
}

func TestWake_EndsPauseImmediately(t *testing.T) {
	p, q, entries, mu := newTestPool(1)
	loader := &instantLoader{}
	mu.Lock()
	e := entry.New[string, *testValue]("k", &testValue{}, loader, nil, nil)
	entries["k"] = e
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.PauseFetchersFor(time.Hour)
	p.Start(ctx)
	q.Put("k", 0, false)
	p.Wake()

	require.Eventually(t, func() bool { return e.Value().IsValid() }, time.Second, time.Millisecond)
}

func TestShutdown_StopsWorkersAndQueue(t *testing.T) {
	p, q, _, _ := newTestPool(3)
	p.Start(context.Background())

	require.NoError(t, p.Shutdown(context.Background()))

	_, err := q.Take(context.Background())
	require.ErrorIs(t, err, queue.ErrShutdown)
}
