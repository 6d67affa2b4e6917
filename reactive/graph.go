package reactive

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/entity"
	"github.com/r3e-network/objectstore/expr"
)

// Handle identifies a tracked node within a Graph.
type Handle string

// node is the internal state for one tracked entity.
type node struct {
	signals   map[string]*Signal
	computeds map[string]*Computed
	effects   map[string]*Effect
}

// group is the internal state for a cross-entity group_computed or
// multi_computed.
type group struct {
	computed     *Computed
	membership   *Signal // nil for multi_computed
	computedName string
	effects      []*Effect
}

// Graph is a dependency-tracked signal/computed/effect graph over tracked
// entities, per SPEC_FULL §4.2. Not safe for concurrent use — it is owned
// by one goroutine, matching the source's single-threaded reactive core.
type Graph struct {
	nodes  map[Handle]*node
	groups map[string]*group
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{nodes: map[Handle]*node{}, groups: map[string]*group{}}
}

// Track registers an entity's field data, returning a process-unique
// handle. Each field becomes a writable Signal; metadata (version, owner,
// etc. — anything not in data) is not part of the graph.
func (g *Graph) Track(data entity.Data) Handle {
	h := Handle(uuid.New().String())
	n := &node{
		signals:   make(map[string]*Signal, len(data)),
		computeds: map[string]*Computed{},
		effects:   map[string]*Effect{},
	}
	for k, v := range data {
		n.signals[k] = NewSignal(v)
	}
	g.nodes[h] = n
	return h
}

func (g *Graph) mustNode(h Handle) *node {
	n, ok := g.nodes[h]
	if !ok {
		panic(fmt.Sprintf("reactive: node %s not tracked", h))
	}
	return n
}

// Computed installs a named derived cell whose value is e.Eval(ctx), ctx
// mapping each field name to its signal's current value. Dependencies are
// inferred from whichever signals the evaluation reads.
func (g *Graph) Computed(h Handle, name string, e expr.Node) {
	n := g.mustNode(h)
	n.computeds[name] = NewComputed(func() (any, error) {
		ctx := make(expr.Context, len(n.signals))
		for field, sig := range n.signals {
			ctx[field] = sig.Get()
		}
		return e.Eval(ctx)
	})
}

// Effect registers a subscriber fired with (name, value) whenever the named
// computed re-evaluates to a new value. Fires once immediately to
// establish dependencies.
func (g *Graph) Effect(h Handle, computedName string, callback func(name string, value any)) {
	n := g.mustNode(h)
	c, ok := n.computeds[computedName]
	if !ok {
		panic(fmt.Sprintf("reactive: no computed %q on node %s", computedName, h))
	}
	n.effects[computedName] = NewEffect(c, func(val any) { callback(computedName, val) })
}

// Update sets a single field's signal, propagating to dependent computeds
// and effects. The entity.Data map passed to Track is not written to;
// the new value lives only in the signal.
func (g *Graph) Update(h Handle, field string, value any) {
	n := g.mustNode(h)
	sig, ok := n.signals[field]
	if !ok {
		panic(fmt.Sprintf("reactive: no field %q on node %s", field, h))
	}
	sig.Set(value)
}

// BatchUpdate atomically sets multiple fields; dependent effects fire at
// most once per affected computed, not once per field, per SPEC_FULL §4.2.
func (g *Graph) BatchUpdate(h Handle, updates map[string]any) {
	n := g.mustNode(h)
	var touched []*Signal
	for field, value := range updates {
		sig, ok := n.signals[field]
		if !ok {
			panic(fmt.Sprintf("reactive: no field %q on node %s", field, h))
		}
		sig.setSilent(value)
		touched = append(touched, sig)
	}
	seen := make(map[*Computed]bool)
	for _, sig := range touched {
		for _, c := range sig.subs {
			if !seen[c] {
				seen[c] = true
				c.invalidate()
			}
		}
	}
}

// Get reads the current value of a named computed.
func (g *Graph) Get(h Handle, name string) any {
	n := g.mustNode(h)
	c, ok := n.computeds[name]
	if !ok {
		panic(fmt.Sprintf("reactive: no computed %q on node %s", name, h))
	}
	return c.Get()
}

// GetField reads the current value of a field signal.
func (g *Graph) GetField(h Handle, field string) any {
	n := g.mustNode(h)
	sig, ok := n.signals[field]
	if !ok {
		panic(fmt.Sprintf("reactive: no field %q on node %s", field, h))
	}
	return sig.Get()
}

// RemoveEffect detaches a named effect from a node.
func (g *Graph) RemoveEffect(h Handle, name string) {
	n := g.mustNode(h)
	if e, ok := n.effects[name]; ok {
		e.Dispose()
		delete(n.effects, name)
	}
}

// Untrack removes a node from the graph, disposing all its effects.
func (g *Graph) Untrack(h Handle) {
	n, ok := g.nodes[h]
	if !ok {
		return
	}
	for _, e := range n.effects {
		e.Dispose()
	}
	delete(g.nodes, h)
}

// GroupComputed aggregates a named computed value across a dynamic set of
// tracked nodes. Recomputes whenever any member's computed changes, or
// membership is mutated via AddToGroup/RemoveFromGroup.
func (g *Graph) GroupComputed(name string, handles []Handle, computedName string, reduce func(values []any) any) {
	if _, exists := g.groups[name]; exists {
		panic(fmt.Sprintf("reactive: group %q already exists", name))
	}
	membership := NewSignal(append([]Handle(nil), handles...))
	gr := &group{membership: membership, computedName: computedName}
	gr.computed = NewComputed(func() (any, error) {
		members, _ := membership.Get().([]Handle)
		values := make([]any, 0, len(members))
		for _, h := range members {
			n, ok := g.nodes[h]
			if !ok {
				continue
			}
			c, ok := n.computeds[computedName]
			if !ok {
				continue
			}
			// Read the member's computed first, then every one of its
			// node's backing field signals directly: recordDependency only
			// fires from Signal.Get, never from a nested Computed.Get, so
			// a raw c.Get() alone would leave this group computed
			// subscribed to nothing but membership. Reading c.Get() before
			// the raw signals also fixes the subscription order a signal
			// records its invalidation targets in — c's own subscription
			// to the signal (established the first time c itself
			// evaluates, here or earlier) is always registered before this
			// group computed's, so a later Signal.Set recomputes c ahead
			// of the group that reads it instead of the group reading a
			// stale cached c.val.
			values = append(values, c.Get())
			for _, sig := range n.signals {
				sig.Get()
			}
		}
		return reduce(values), nil
	})
	g.groups[name] = gr
}

// MultiComputed defines an arbitrary cross-node computed: fn is called with
// the Graph itself, and whatever signals/computeds it reads through g
// become its dependencies. Membership cannot be mutated on a
// multi_computed.
func (g *Graph) MultiComputed(name string, fn func(g *Graph) any) {
	if _, exists := g.groups[name]; exists {
		panic(fmt.Sprintf("reactive: group %q already exists", name))
	}
	gr := &group{}
	gr.computed = NewComputed(func() (any, error) { return fn(g), nil })
	g.groups[name] = gr
}

// GetGroup reads the current value of a group or multi computed.
func (g *Graph) GetGroup(name string) any {
	gr, ok := g.groups[name]
	if !ok {
		panic(fmt.Sprintf("reactive: no group %q", name))
	}
	return gr.computed.Get()
}

// GroupEffect attaches a side-effect firing when a group computed changes.
func (g *Graph) GroupEffect(name string, callback func(name string, value any)) {
	gr, ok := g.groups[name]
	if !ok {
		panic(fmt.Sprintf("reactive: no group %q", name))
	}
	e := NewEffect(gr.computed, func(val any) { callback(name, val) })
	gr.effects = append(gr.effects, e)
}

// AddToGroup dynamically adds a node to a group_computed's membership.
// Invalid on a multi_computed.
func (g *Graph) AddToGroup(name string, h Handle) {
	gr := g.mustGroup(name)
	current := append([]Handle(nil), gr.membership.Get().([]Handle)...)
	for _, existing := range current {
		if existing == h {
			return
		}
	}
	gr.membership.Set(append(current, h))
}

// RemoveFromGroup dynamically removes a node from a group_computed's
// membership. Invalid on a multi_computed.
func (g *Graph) RemoveFromGroup(name string, h Handle) {
	gr := g.mustGroup(name)
	current := gr.membership.Get().([]Handle)
	out := make([]Handle, 0, len(current))
	for _, existing := range current {
		if existing != h {
			out = append(out, existing)
		}
	}
	gr.membership.Set(out)
}

func (g *Graph) mustGroup(name string) *group {
	gr, ok := g.groups[name]
	if !ok {
		panic(fmt.Sprintf("reactive: no group %q", name))
	}
	if gr.membership == nil {
		panic(fmt.Sprintf("reactive: group %q is a multi_computed — membership is fixed", name))
	}
	return gr
}

// RemoveGroup tears down a group computed and its effects.
func (g *Graph) RemoveGroup(name string) {
	gr, ok := g.groups[name]
	if !ok {
		return
	}
	for _, e := range gr.effects {
		e.Dispose()
	}
	delete(g.groups, name)
}
