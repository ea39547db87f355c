package table

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volatileimg/tilecache/internal/entry"
)

type testValue struct {
	valid atomic.Bool
}

func (v *testValue) IsValid() bool { return v.valid.Load() }

type noopLoader struct{}

func (noopLoader) Load(ctx context.Context, key string) (*testValue, error) {
	v := &testValue{}
	v.valid.Store(true)
	return v, nil
}
func (noopLoader) CreateEmptyValue(key string) *testValue { return &testValue{} }

func hashKey(k string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(k); i++ {
		h ^= uint64(k[i])
		h *= 1099511628211
	}
	return h
}

func newTestTable(softCap int) *Table[string, *testValue] {
	return New[string, *testValue](Config{
		Shards:          4,
		SoftCapPerShard: softCap,
		WeakCapPerShard: 0,
		SweepBudget:     64,
	}, hashKey)
}

func TestPutWeak_ThenGet(t *testing.T) {
	tbl := newTestTable(10)
	e := entry.New[string, *testValue]("a", &testValue{}, noopLoader{}, tbl.PutSoft, nil)
	tbl.PutWeak("a", e)

	got, ok := tbl.Get("a")
	require.True(t, ok)
	require.Equal(t, e, got)

	soft, weak := tbl.Lens()
	require.Equal(t, 0, soft)
	require.Equal(t, 1, weak)
}

func TestPromote_MovesToSoftTier(t *testing.T) {
	tbl := newTestTable(10)
	e := entry.New[string, *testValue]("a", &testValue{}, noopLoader{}, tbl.PutSoft, nil)
	tbl.PutWeak("a", e)

	require.NoError(t, e.LoadIfNotValid(context.Background()))

	soft, weak := tbl.Lens()
	require.Equal(t, 1, soft)
	require.Equal(t, 0, weak)
}

func TestPromote_EvictsColdestUnderCapacityPressure(t *testing.T) {
	tbl := New[string, *testValue](Config{Shards: 1, SoftCapPerShard: 2, SweepBudget: 64}, hashKey)

	keys := []string{"a", "b", "c"}
	entries := make(map[string]*entry.Entry[string, *testValue])
	for _, k := range keys {
		e := entry.New[string, *testValue](k, &testValue{}, noopLoader{}, tbl.PutSoft, nil)
		tbl.PutWeak(k, e)
		entries[k] = e
		require.NoError(t, e.LoadIfNotValid(context.Background()))
	}

	soft, weak := tbl.Lens()
	require.Equal(t, 2, soft)
	require.Equal(t, 1, weak)

	// "a" was promoted first, so under a 2-slot soft tier it's the coldest
	// and should have been the one demoted back to weak.
	got, ok := tbl.Get("a")
	require.True(t, ok)
	require.Equal(t, entries["a"], got)
}

func TestClearCache_RemovesEverything(t *testing.T) {
	tbl := newTestTable(10)
	e := entry.New[string, *testValue]("a", &testValue{}, noopLoader{}, tbl.PutSoft, nil)
	tbl.PutWeak("a", e)
	require.NoError(t, e.LoadIfNotValid(context.Background()))

	removed := tbl.ClearCache()
	require.Equal(t, 1, removed)

	_, ok := tbl.Get("a")
	require.False(t, ok)
}

func TestSweepAndFinalize_RemovesStaleNeverLoadedEntries(t *testing.T) {
	tbl := newTestTable(10)
	e := entry.New[string, *testValue]("a", &testValue{}, noopLoader{}, tbl.PutSoft, nil)
	tbl.PutWeak("a", e)

	found := tbl.sweepOnce()
	require.Equal(t, 1, found)

	removed := tbl.FinalizeRemovedCacheEntries()
	require.Equal(t, 1, removed)

	_, ok := tbl.Get("a")
	require.False(t, ok)
}

func TestSweepAndFinalize_SkipsReboundKey(t *testing.T) {
	tbl := newTestTable(10)
	e1 := entry.New[string, *testValue]("a", &testValue{}, noopLoader{}, tbl.PutSoft, nil)
	tbl.PutWeak("a", e1)

	require.Equal(t, 1, tbl.sweepOnce())

	// a new Put rebinds "a" to a fresh entry before finalize drains the
	// tombstone recorded above — finalize must not remove the new binding.
	e2 := entry.New[string, *testValue]("a", &testValue{}, noopLoader{}, tbl.PutSoft, nil)
	tbl.PutWeak("a", e2)

	removed := tbl.FinalizeRemovedCacheEntries()
	require.Equal(t, 0, removed)

	got, ok := tbl.Get("a")
	require.True(t, ok)
	require.Equal(t, e2, got)
}

func TestRunSweep_TombstonesOnATick(t *testing.T) {
	tbl := newTestTable(10)
	e := entry.New[string, *testValue]("a", &testValue{}, noopLoader{}, tbl.PutSoft, nil)
	tbl.PutWeak("a", e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tbl.RunSweep(ctx, 1000)

	require.Eventually(t, func() bool {
		return tbl.FinalizeRemovedCacheEntries() > 0 || func() bool {
			_, ok := tbl.Get("a")
			return !ok
		}()
	}, time.Second, 5*time.Millisecond)
}
