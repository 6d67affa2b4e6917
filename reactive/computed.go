package reactive

import (
	"context"
	"fmt"

	"github.com/r3e-network/objectstore/infrastructure/logging"
)

// evaluating is the stack of Computeds currently mid-recompute, used both
// for dependency tracking (Signal.Get registers against its top) and cycle
// detection (a Computed may not transitively depend on itself).
var evaluating []*Computed

// Computed is a derived value that memoizes its result and recomputes only
// when a Signal it previously read has changed. A failing compute function
// propagates as a nil value per SPEC_FULL §4.2's failure semantics;
// dependents observe nil rather than panicking.
type Computed struct {
	fn      func() (any, error)
	val     any
	dirty   bool
	started bool
	effects []*Effect
}

// NewComputed returns a Computed wrapping fn. fn is not evaluated until the
// first Get call.
func NewComputed(fn func() (any, error)) *Computed {
	return &Computed{fn: fn, dirty: true}
}

// Get returns the computed's current value, recomputing if dirty.
func (c *Computed) Get() any {
	if c.dirty || !c.started {
		c.recompute()
	}
	return c.val
}

// recompute runs fn with dependency tracking enabled, recording every
// Signal read during evaluation as a dependency.
func (c *Computed) recompute() {
	for _, active := range evaluating {
		if active == c {
			panic(fmt.Sprintf("reactive: cycle detected: computed depends on itself"))
		}
	}
	evaluating = append(evaluating, c)

	newVal, err := c.fn()
	if err != nil {
		newVal = nil
	}

	evaluating = evaluating[:len(evaluating)-1]

	c.val = newVal
	c.dirty = false
	c.started = true
}

// recordDependency is called by Signal.Get when a Computed evaluation is in
// progress.
func recordDependency(s *Signal) {
	if len(evaluating) == 0 {
		return
	}
	s.addSubscriber(evaluating[len(evaluating)-1])
}

// invalidate marks c dirty and recomputes immediately, firing attached
// Effects if the memoized value changed.
func (c *Computed) invalidate() {
	old := c.val
	hadValue := c.started
	c.dirty = true
	c.recompute()
	if !hadValue || !valuesEqual(old, c.val) {
		for _, e := range c.effects {
			e.run(c.val)
		}
	}
}

// addEffect attaches an Effect to fire on future value changes.
func (c *Computed) addEffect(e *Effect) {
	c.effects = append(c.effects, e)
}

// removeEffect detaches e.
func (c *Computed) removeEffect(e *Effect) {
	for i, existing := range c.effects {
		if existing == e {
			c.effects = append(c.effects[:i], c.effects[i+1:]...)
			return
		}
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Effect is a callback that fires whenever its Computed's memoized value
// changes. A callback that panics is isolated per SPEC_FULL §4.2: other
// effects still run and the graph does not abort.
type Effect struct {
	callback func(val any)
	computed *Computed
}

// NewEffect attaches callback to computed, invokes it once immediately with
// the current value (establishing dependencies, matching graph.py), and
// returns the Effect handle for later removal.
func NewEffect(computed *Computed, callback func(val any)) *Effect {
	e := &Effect{callback: callback, computed: computed}
	computed.addEffect(e)
	e.run(computed.Get())
	return e
}

func (e *Effect) run(val any) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorDefault(context.Background(), "reactive effect callback panicked", fmt.Errorf("%v", r))
		}
	}()
	e.callback(val)
}

// Dispose detaches the effect so it no longer fires.
func (e *Effect) Dispose() {
	e.computed.removeEffect(e)
}
