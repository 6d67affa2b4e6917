// Package reactive implements a dependency-tracked signal graph: mutable
// Signal leaves, derived Computed nodes that memoize and recompute
// synchronously, and Effect subscriptions that fire when a computed's
// value changes. Grounded on
// _examples/original_source/reactive/graph.py's ReactiveGraph (which wires
// reaktiv Signal/Computed/Effect around Storable fields).
//
// Per SPEC_FULL §4.2/§9, the graph is cooperative and single-threaded per
// instance — no internal locking — mirroring the source's reaktiv core
// directly rather than the asyncio event-loop shim graph.py layers on top
// of it (that loop exists only because reaktiv schedules effects on a
// future tick; here a signal write drains its dependents on the calling
// goroutine before returning, so there is nothing to schedule).
package reactive

// Signal is a mutable leaf value. Every Graph field is backed by one.
type Signal struct {
	val  any
	subs []*Computed // computeds that read this signal and must be invalidated on Set
}

// NewSignal returns a Signal holding the given initial value.
func NewSignal(initial any) *Signal {
	return &Signal{val: initial}
}

// Get returns the signal's current value, registering a dependency if a
// Computed is currently evaluating.
func (s *Signal) Get() any {
	recordDependency(s)
	return s.val
}

// Set replaces the signal's value and invalidates every dependent Computed,
// re-running their effects if their memoized value actually changes. Not
// valid mid-batch; use Graph.BatchUpdate for coalesced writes.
func (s *Signal) Set(v any) {
	s.val = v
	for _, c := range s.subs {
		c.invalidate()
	}
}

// setSilent replaces the value without draining dependents; used inside a
// batch, which drains once at the end instead of per-field.
func (s *Signal) setSilent(v any) {
	s.val = v
}

func (s *Signal) addSubscriber(c *Computed) {
	for _, existing := range s.subs {
		if existing == c {
			return
		}
	}
	s.subs = append(s.subs, c)
}
