// Package tilecache implements a volatile loading cache for tiles (cells) of
// multi-resolution image pyramids.
//
// Values start out invalid and transition to valid exactly once, asynchronously,
// via a pool of fetcher goroutines draining a priority queue. Callers that can't
// wait get back whatever is currently cached, valid or not; callers that can
// wait either block outright or spend a per-scope nanosecond I/O budget.
//
// The four moving parts are internal/entry (the per-key state machine),
// internal/table (the weak/soft retained key->entry map), internal/queue (the
// priority blocking queue) and internal/fetcher (the worker pool). Cache ties
// them together behind GetIfCached/CreateIfAbsent/PrepareNextFrame.
package tilecache
