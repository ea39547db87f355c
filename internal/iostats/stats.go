package iostats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Statistics is one scope's I/O bookkeeping: a cumulative elapsed-I/O-time
// counter plus an optional Budget. Start/Stop bracket a measured I/O
// operation; IoNanoTime reports the running total.
type Statistics struct {
	clk clock.Clock

	cumulativeIoTime atomic.Int64

	mu      sync.Mutex
	started time.Time
	running bool
	budget  *Budget
}

// NewStatistics builds a Statistics record using clk for timestamps. A nil
// clk defaults to the real wall clock; tests inject a *clock.Mock so
// Start/Stop bracketing can be driven deterministically instead of by real
// sleeps.
func NewStatistics(clk clock.Clock) *Statistics {
	if clk == nil {
		clk = clock.New()
	}
	return &Statistics{clk: clk}
}

// Start begins measuring an I/O operation. Calling Start while already
// running is a no-op — nested measurement isn't meaningful here.
func (s *Statistics) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = s.clk.Now()
}

// Stop ends measurement and adds the elapsed time to the cumulative total.
// Calling Stop without a matching Start is a no-op.
func (s *Statistics) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cumulativeIoTime.Add(s.clk.Now().Sub(s.started).Nanoseconds())
}

// IoNanoTime returns the accumulated elapsed I/O time across all completed
// Start/Stop brackets.
func (s *Statistics) IoNanoTime() int64 {
	return s.cumulativeIoTime.Load()
}

// Budget returns this scope's time budget, creating one sized maxNumLevels
// if it doesn't already have one. On first creation only, if defaultPartial
// is non-nil, the new budget is immediately Reset to it — this is how a
// scope the caller never explicitly ran InitIoTimeBudget against still gets
// a usable default instead of a permanently-zero budget.
func (s *Statistics) Budget(maxNumLevels int, defaultPartial []int64) *Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budget == nil {
		s.budget = NewBudget(maxNumLevels)
		if defaultPartial != nil {
			s.budget.Reset(defaultPartial)
		}
	}
	return s.budget
}
