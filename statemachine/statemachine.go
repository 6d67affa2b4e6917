// Package statemachine implements declarative entity lifecycles: typed
// transition edges with a guard expression, three tiers of side-effects,
// and RBAC, per SPEC_FULL §4.3. Grounded on
// _examples/original_source/store/state_machine.py's StateMachine/
// Transition/validate_transition. The source's class-attribute registry
// (`Order._state_machine = OrderLifecycle`) is replaced per the redesign
// note on global mutable state: a Machine value is passed explicitly to
// Executor.Transition by the caller instead of being looked up off the
// entity's class.
package statemachine

import (
	"github.com/r3e-network/objectstore/entity"
	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/expr"
	"github.com/r3e-network/objectstore/store"
)

// Transition is one state machine edge with three tiers of side-effects.
//
//   - Guard: evaluated against the entity's current field values; must be
//     truthy (nil Guard always passes).
//   - Action (Tier 1): runs atomically with the state change — if it
//     errors, the transition is never persisted.
//   - OnExit/OnEnter (Tier 2): run after the commit, best-effort; failures
//     are caught and logged, never propagated.
//   - StartWorkflow (Tier 3): dispatched after the commit; dispatch
//     failures are caught and logged — the workflow engine itself
//     guarantees durability once dispatch succeeds.
//   - AllowedBy: principals who may trigger this edge. Nil means open to
//     any principal with write capability on the entity.
type Transition struct {
	FromState     string
	ToState       string
	Guard         expr.Node
	Action        func(data entity.Data) (entity.Data, error)
	OnExit        func(data entity.Data, fromState, toState string)
	OnEnter       func(data entity.Data, fromState, toState string)
	StartWorkflow func(data entity.Data, fromState, toState string) error
	AllowedBy     []store.Principal
}

func (t Transition) permits(p store.Principal) bool {
	if t.AllowedBy == nil {
		return true
	}
	for _, allowed := range t.AllowedBy {
		if allowed == p {
			return true
		}
	}
	return false
}

// Machine declares a state machine for one entity type: an initial state
// and its transition edges.
type Machine struct {
	Initial     string
	Transitions []Transition
}

// GetTransition returns the edge for (fromState, toState), or nil if none
// exists.
func (m Machine) GetTransition(fromState, toState string) *Transition {
	for i := range m.Transitions {
		if m.Transitions[i].FromState == fromState && m.Transitions[i].ToState == toState {
			return &m.Transitions[i]
		}
	}
	return nil
}

// AllowedTransitions returns the successor states reachable from
// fromState, without evaluating any guard.
func (m Machine) AllowedTransitions(fromState string) []string {
	var out []string
	for _, t := range m.Transitions {
		if t.FromState == fromState {
			out = append(out, t.ToState)
		}
	}
	return out
}

// Validate checks the three-step validation order of SPEC_FULL §4.3 and
// returns the matched Transition on success:
//
//  1. An edge must exist for (fromState, toState) — else InvalidTransition.
//  2. The edge's guard (if any) must evaluate truthy against data — else
//     GuardFailure. An unknown field referenced by the guard evaluates to
//     null, which is falsy, so this also covers that edge case.
//  3. caller must be in AllowedBy (if set) — else TransitionNotPermitted.
func (m Machine) Validate(fromState, toState string, data entity.Data, caller store.Principal) (*Transition, error) {
	t := m.GetTransition(fromState, toState)
	if t == nil {
		return nil, infraerrors.InvalidTransition(fromState, toState, m.AllowedTransitions(fromState))
	}

	if t.Guard != nil {
		ctx := make(expr.Context, len(data))
		for k, v := range data {
			ctx[k] = v
		}
		val, err := t.Guard.Eval(ctx)
		if err != nil || !truthy(val) {
			return nil, infraerrors.GuardFailure(fromState, toState, expr.ToJSON(t.Guard))
		}
	}

	if !t.permits(caller) {
		return nil, infraerrors.TransitionNotPermitted(string(caller), fromState, toState)
	}

	return t, nil
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != ""
	default:
		return true
	}
}
