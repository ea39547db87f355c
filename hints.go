package tilecache

// Strategy selects how a request for a possibly-invalid entry is serviced.
type Strategy int

const (
	// Volatile enqueues the key for asynchronous loading, once per frame, and
	// returns whatever value is currently held (valid or not).
	Volatile Strategy = iota
	// Blocking loads the value synchronously on the calling goroutine,
	// retrying while the load fails with context.Canceled; any other loader
	// error ends the call and leaves the value invalid.
	Blocking
	// Budgeted enqueues the key and waits for it up to the time left at this
	// priority in the caller's BudgetScope budget, charging the time waited.
	// With no budget left, or no BudgetScope on the context, it only
	// enqueues, like Volatile.
	Budgeted
	// DontLoad never loads or enqueues; it only ever reads the current value.
	DontLoad
)

func (s Strategy) String() string {
	switch s {
	case Volatile:
		return "volatile"
	case Blocking:
		return "blocking"
	case Budgeted:
		return "budgeted"
	case DontLoad:
		return "dontload"
	default:
		return "unknown"
	}
}

// Hints carry the per-request loading policy. They are never stored on the
// entry itself — only the derived enqueue-frame marker persists there.
type Hints struct {
	Strategy       Strategy
	Priority       int
	EnqueueToFront bool
}
