package workflow

import (
	"context"

	"github.com/r3e-network/objectstore/store"
)

// Transitioner is the narrow slice of store.Client a Dispatcher needs —
// just enough to drive a state transition without importing the store
// package's full Client (which itself may depend on workflow for its own
// Tier-3 async side-effect dispatch, so the dependency stays one-way).
type Transitioner interface {
	Transition(ctx context.Context, req store.TransitionRequest) (store.Event, error)
}

// Dispatcher pairs an Engine with a Transitioner so state-machine side
// effects can run as durable steps. Grounded on
// original_source/workflow/dispatcher.py's WorkflowDispatcher, whose
// durable_transition wraps a client.transition call in engine.step for
// exactly-once semantics on crash recovery.
type Dispatcher struct {
	engine Engine
	client Transitioner
}

// NewDispatcher builds a Dispatcher over engine and client.
func NewDispatcher(engine Engine, client Transitioner) *Dispatcher {
	return &Dispatcher{engine: engine, client: client}
}

// DurableTransition runs req as a checkpointed step, so a crash between
// the step completing and its caller observing the result replays the
// recorded outcome rather than re-applying the transition.
func (d *Dispatcher) DurableTransition(ctx context.Context, req store.TransitionRequest) (store.Event, error) {
	result, err := d.engine.Step(ctx, func(ctx context.Context) (any, error) {
		return d.client.Transition(ctx, req)
	})
	if err != nil {
		return store.Event{}, err
	}
	ev, _ := result.(store.Event)
	return ev, nil
}
