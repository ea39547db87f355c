package iostats

import (
	"sync"

	"github.com/benbjohnson/clock"
)

// Scope is an opaque handle identifying a renderer/caller group — the
// Go-native stand-in for a JVM thread group identity (§9). Any comparable
// value works: a small integer handed out per renderer, a context key, a
// pointer. The registry panics if given an incomparable Scope, same as any
// Go map would.
type Scope any

// Registry maps Scope to its Statistics record, lock-free on the lookup fast
// path via sync.Map — suitable for scope sets that aren't known up front.
type Registry struct {
	clk clock.Clock
	m   sync.Map // Scope -> *Statistics
}

// NewRegistry builds an empty Registry. clk is forwarded to every Statistics
// record it creates; nil defaults to the real wall clock. Pass a
// *clock.Mock in tests to drive budget accounting deterministically.
func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{clk: clk}
}

// GetOrCreate returns scope's Statistics record, creating one if absent.
func (r *Registry) GetOrCreate(scope Scope) *Statistics {
	if v, ok := r.m.Load(scope); ok {
		return v.(*Statistics)
	}
	s := NewStatistics(r.clk)
	actual, _ := r.m.LoadOrStore(scope, s)
	return actual.(*Statistics)
}

// Get returns scope's Statistics record without creating one.
func (r *Registry) Get(scope Scope) (*Statistics, bool) {
	v, ok := r.m.Load(scope)
	if !ok {
		return nil, false
	}
	return v.(*Statistics), true
}

// Delete drops scope's record entirely, releasing its Budget.
func (r *Registry) Delete(scope Scope) {
	r.m.Delete(scope)
}

// Range calls fn for every registered scope; fn returning false stops
// iteration early, matching sync.Map.Range's contract.
func (r *Registry) Range(fn func(scope Scope, stats *Statistics) bool) {
	r.m.Range(func(k, v any) bool {
		return fn(k.(Scope), v.(*Statistics))
	})
}
