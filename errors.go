package tilecache

import (
	"github.com/volatileimg/tilecache/internal/entry"
	"github.com/volatileimg/tilecache/internal/queue"
)

// ErrLoaderFailed wraps an error returned by a Loader; the entry stays
// invalid and the next request simply retries it.
var ErrLoaderFailed = entry.ErrLoaderFailed

// ErrQueueShutdown is returned by blocked or future fetcher Take calls once
// the cache has been closed.
var ErrQueueShutdown = queue.ErrShutdown
