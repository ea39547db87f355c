// Command tilebench runs a synthetic multi-frame rendering workload against
// a tilecache.Cache, serves Prometheus metrics over HTTP and, optionally,
// pprof endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/volatileimg/tilecache"
	"github.com/volatileimg/tilecache/config"
	"github.com/volatileimg/tilecache/metrics/prom"
)

// tile is the benchmark's stand-in Value: a fixed-size payload that becomes
// valid the instant tileLoader.Load fills it in.
type tile struct {
	valid atomic.Bool
	data  [256]byte
}

func (t *tile) IsValid() bool { return t.valid.Load() }

// tileLoader simulates an upstream fetch (disk/network) with a configurable
// latency, standing in for the real decode-and-resample work a tile pyramid
// loader would do.
type tileLoader struct {
	latency time.Duration
	loads   atomic.Int64
}

func (l *tileLoader) Load(ctx context.Context, key string) (*tile, error) {
	l.loads.Add(1)
	select {
	case <-time.After(l.latency):
	case <-ctx.Done():
	}
	t := &tile{}
	t.valid.Store(true)
	return t, nil
}

func (l *tileLoader) CreateEmptyValue(key string) *tile { return &tile{} }

func main() {
	var (
		capacity   = flag.Int("cap", 100_000, "table soft-tier capacity (entries)")
		shards     = flag.Int("shards", 0, "number of table shards (0=auto via GOMAXPROCS)")
		fetchers   = flag.Int("fetchers", 2*runtime.GOMAXPROCS(0), "fetcher worker goroutines")
		priorities = flag.Int("priorities", 4, "number of priority bands")
		sweepRate  = flag.Int("sweep_rate", 50, "weak-tier sweep ticks per second")

		workers  = flag.Int("workers", runtime.GOMAXPROCS(0), "simulated renderer goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		frameDur = flag.Duration("frame", 16*time.Millisecond, "simulated frame period")

		keys    = flag.Int("keys", 200_000, "tile keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		latency = flag.Duration("latency", 2*time.Millisecond, "simulated loader latency")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		blockingPct = flag.Int("blocking_pct", 5, "percentage of requests using the Blocking strategy")
		budgetedPct = flag.Int("budgeted_pct", 15, "percentage of requests using the Budgeted strategy")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()
	if *shards <= 0 {
		*shards = runtime.GOMAXPROCS(0)
	}

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	metrics := prom.New(nil, "tilecache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	cfg := &config.Cache{
		Table: config.TableCfg{
			Capacity:        *capacity,
			Shards:          *shards,
			SweepRatePerSec: *sweepRate,
		},
		Queue:   config.QueueCfg{PriorityLevels: *priorities},
		Fetcher: config.FetcherCfg{NumThreads: *fetchers},
		Budget: config.BudgetCfg{
			MaxNumLevels:     *priorities,
			DefaultPartialNs: []int64{int64(5 * time.Millisecond), int64(2 * time.Millisecond)},
		},
		Telemetry: &config.TelemetryCfg{Interval: time.Second},
	}
	cfg.AdjustConfig()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	loader := &tileLoader{latency: *latency}
	cache := tilecache.New[string, *tile](ctx, cfg, nil, logger, metrics)
	defer func() { _ = cache.Close() }()

	go func() {
		ticker := time.NewTicker(*frameDur)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cache.PrepareNextFrame()
			}
		}
	}()

	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	keysMax := uint64(*keys - 1)
	blockingPctVal, budgetedPctVal := *blockingPct, *budgetedPct
	prioritiesN := *priorities

	var requests, blocking, budgeted, volatile atomic.Int64

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			localR := rand.New(rand.NewSource(*seed + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, 1.0, keysMax)
			scope := "renderer-" + strconv.Itoa(id)
			cache.InitIoTimeBudget(scope, cfg.Budget.DefaultPartialNs)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				requests.Add(1)
				key := "tile:" + strconv.FormatUint(localZipf.Uint64(), 10)
				priority := int(localZipf.Uint64()) % prioritiesN
				roll := int(localR.Int31n(100))

				switch {
				case roll < blockingPctVal:
					blocking.Add(1)
					cache.CreateIfAbsent(context.Background(), key, tilecache.Hints{Strategy: tilecache.Blocking}, loader)
				case roll < blockingPctVal+budgetedPctVal:
					budgeted.Add(1)
					rctx := tilecache.WithBudgetScope(context.Background(), scope)
					cache.CreateIfAbsent(rctx, key, tilecache.Hints{Strategy: tilecache.Budgeted, Priority: priority}, loader)
				default:
					volatile.Add(1)
					cache.CreateIfAbsent(context.Background(), key, tilecache.Hints{Strategy: tilecache.Volatile, Priority: priority}, loader)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	reqN := requests.Load()
	fmt.Printf("cap=%d shards=%d fetchers=%d workers=%d keys=%d dur=%v seed=%d\n",
		*capacity, *shards, *fetchers, workersN, *keys, elapsed, *seed)
	fmt.Printf("requests=%d (%.0f req/s)  blocking=%d  budgeted=%d  volatile=%d  loads=%d\n",
		reqN, float64(reqN)/elapsed.Seconds(), blocking.Load(), budgeted.Load(), volatile.Load(), loader.loads.Load())

	soft, weak := cache.TableLens()
	queueTotal, _ := cache.QueueLen()
	fmt.Printf("soft=%d  weak=%d  queue_depth=%d  budget_exhausted=%d\n",
		soft, weak, queueTotal, cache.BudgetExhaustedCount())
}
