// Package telemetry emits periodic structured-log snapshots of cache state,
// the same way this codebase's cache packages log periodic eviction/lifetime
// counters: a ticking goroutine, a sampler that turns live state into a
// snapshot, and cumulative counters reported as deltas.
package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Logs runs the periodic snapshot loop until Close or ctx is cancelled.
type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	log      zerolog.Logger
	target   Snapshotter
	sink     MetricsSink
	interval time.Duration
}

// New builds and starts a Logs. A zero or negative interval disables the
// loop entirely — telemetry is ambient, not mandatory. sink may be nil; when
// set (a metrics/prom.Adapter), every tick that logs a snapshot also pushes
// it into the sink's gauges.
func New(ctx context.Context, log zerolog.Logger, target Snapshotter, sink MetricsSink, interval time.Duration) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	l := &Logs{ctx: ctx, cancel: cancel, log: log, target: target, sink: sink, interval: interval}
	if interval > 0 {
		go l.loop()
	}
	return l
}

// Close stops the snapshot loop.
func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	prev := sample(l.target)
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			cur := sample(l.target)
			exhausted := deltaBudgetExhausted(prev, cur)
			prev = cur

			l.log.Info().
				Int("soft_entries", cur.soft).
				Int("weak_entries", cur.weak).
				Int("queue_depth", cur.queueTotal).
				Ints("queue_depth_per_band", cur.queuePerBand).
				Int("fetchers_busy", cur.fetcherBusy).
				Int("fetchers_total", cur.fetcherSize).
				Int64("budget_exhausted", exhausted).
				Msg("tilecache snapshot")

			if l.sink != nil {
				l.sink.SetTableLens(cur.soft, cur.weak)
				l.sink.SetQueueLen(cur.queueTotal, cur.queuePerBand)
				l.sink.SetFetcherBusy(cur.fetcherBusy, cur.fetcherSize)
				l.sink.SetBudgetExhausted(cur.budgetExhausted)
			}
		}
	}
}
