package telemetry

// Snapshotter is the structural interface telemetry polls for its periodic
// snapshot log line. The orchestrator (tilecache.Cache) satisfies it; this
// package never imports that package, the same way internal/entry and
// internal/table avoid importing their callers.
type Snapshotter interface {
	TableLens() (soft, weak int)
	QueueLen() (total int, perBand []int)
	FetcherBusy() (busy, size int)
	BudgetExhaustedCount() int64
}

// MetricsSink receives the same per-tick snapshot as the log line, for a
// caller that wants it as live gauges (metrics/prom.Adapter) rather than log
// lines. Structural, like Snapshotter: this package never imports metrics/prom.
type MetricsSink interface {
	SetTableLens(soft, weak int)
	SetQueueLen(total int, perBand []int)
	SetFetcherBusy(busy, size int)
	SetBudgetExhausted(count int64)
}

// snapshot holds the counters sampled from one tick. soft/weak/queue depth
// are gauges; budgetExhausted is cumulative (delta'd against the previous
// sample, same as this codebase's eviction/lifetime counters).
type snapshot struct {
	soft, weak      int
	queueTotal      int
	queuePerBand    []int
	fetcherBusy     int
	fetcherSize     int
	budgetExhausted int64
}

func sample(s Snapshotter) snapshot {
	soft, weak := s.TableLens()
	total, perBand := s.QueueLen()
	busy, size := s.FetcherBusy()
	return snapshot{
		soft:            soft,
		weak:            weak,
		queueTotal:      total,
		queuePerBand:    perBand,
		fetcherBusy:     busy,
		fetcherSize:     size,
		budgetExhausted: s.BudgetExhaustedCount(),
	}
}

func deltaBudgetExhausted(prev, cur snapshot) int64 {
	if cur.budgetExhausted >= prev.budgetExhausted {
		return cur.budgetExhausted - prev.budgetExhausted
	}
	return cur.budgetExhausted
}
