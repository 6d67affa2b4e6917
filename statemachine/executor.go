package statemachine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/infrastructure/resilience"
	"github.com/r3e-network/objectstore/store"
)

// Executor drives transitions for one Machine against a store.Repository,
// running the tiered side-effects in order. Breaker guards Tier 3's
// workflow-start dispatch: a durable workflow engine that is down turns
// every transition's fire-and-forget dispatch into a timeout, and without
// a breaker every single transition would eat that timeout in turn.
type Executor struct {
	Repo    store.Repository
	Machine Machine
	Logger  *logging.Logger
	Breaker *resilience.CircuitBreaker
}

// NewExecutor returns an Executor wired to repo and machine, using the
// package-default logger if logger is nil and a default-configured
// circuit breaker around Tier 3 dispatch.
func NewExecutor(repo store.Repository, machine Machine, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{
		Repo:    repo,
		Machine: machine,
		Logger:  logger,
		Breaker: resilience.New(resilience.DefaultConfig()),
	}
}

// Transition validates and executes one edge for entityID: Tier 1's Action
// (if any) runs before the state change is persisted — an Action error
// aborts the transition entirely, leaving the entity in fromState. On
// success, Tier 2 (OnEnter/OnExit) and Tier 3 (StartWorkflow) run against
// the persisted event's data, each isolated so a failure in one does not
// suppress the others.
func (e *Executor) Transition(ctx context.Context, typeName string, entityID uuid.UUID, caller store.Principal, toState string, expectedVersion *int64) (store.Event, error) {
	cur, ok, err := e.Repo.Read(ctx, typeName, entityID, caller)
	if err != nil {
		return store.Event{}, err
	}
	if !ok {
		return store.Event{}, infraerrors.NotFound(typeName, entityID.String())
	}

	t, err := e.Machine.Validate(cur.State, toState, cur.Data, caller)
	if err != nil {
		return store.Event{}, err
	}

	newData := cur.Data
	if t.Action != nil {
		newData, err = t.Action(cur.Data)
		if err != nil {
			return store.Event{}, err
		}
	}

	ev, err := e.Repo.Transition(ctx, store.TransitionRequest{
		EntityID:        entityID,
		Caller:          caller,
		NewState:        toState,
		Data:            newData,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return store.Event{}, err
	}

	if t.OnExit != nil {
		e.runTier2("on_exit", cur.State, toState, func() { t.OnExit(newData, cur.State, toState) })
	}
	if t.OnEnter != nil {
		e.runTier2("on_enter", cur.State, toState, func() { t.OnEnter(newData, cur.State, toState) })
	}
	if t.StartWorkflow != nil {
		e.runTier3(cur.State, toState, func() error { return t.StartWorkflow(newData, cur.State, toState) })
	}

	return ev, nil
}

// runTier2 runs a fire-and-forget hook, catching both panics and logging
// any non-panic path the hook itself chooses to report via its closure.
func (e *Executor) runTier2(hook, fromState, toState string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error(context.Background(),
				fmt.Sprintf("statemachine: %s hook panicked on %s -> %s", hook, fromState, toState),
				fmt.Errorf("%v", r), nil)
		}
	}()
	fn()
}

// runTier3 dispatches a workflow start through Breaker, logging but
// swallowing a dispatch failure — the workflow engine's own durability
// guarantees cover everything after a successful dispatch. Once the
// engine has failed consecutively enough to trip the breaker, further
// transitions skip the dispatch attempt entirely until it resets.
func (e *Executor) runTier3(fromState, toState string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error(context.Background(),
				fmt.Sprintf("statemachine: start_workflow panicked on %s -> %s", fromState, toState),
				fmt.Errorf("%v", r), nil)
		}
	}()
	breaker := e.Breaker
	if breaker == nil {
		breaker = resilience.New(resilience.DefaultConfig())
	}
	if err := breaker.Execute(context.Background(), fn); err != nil {
		e.Logger.Error(context.Background(),
			fmt.Sprintf("statemachine: start_workflow dispatch failed on %s -> %s", fromState, toState),
			err, nil)
	}
}
