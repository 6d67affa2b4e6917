// Package workflow specifies the backend-swappable durable-workflow
// contract spec.md §4.7 names (workflow/step/queue/sleep/send/recv/
// get_workflow_status/get_workflow_result). Per spec.md §1's Non-goals,
// the durable engine itself is specified only — no durable backend
// (Temporal, DBOS, etc.) is wired. Grounded on
// original_source/workflow/engine.py's WorkflowEngine ABC, with
// arg-taking Python closures replaced by Go closures of the form
// func(context.Context) (any, error), the idiomatic substitute for
// "arbitrary callable plus its args" in a statically typed language.
package workflow

import (
	"context"
	"time"
)

// Status is a workflow execution's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
)

// Func is the unit of work a workflow, step, or queued job executes.
type Func func(ctx context.Context) (any, error)

// Handle is an opaque reference to a running or completed workflow,
// mirroring original_source/workflow/engine.py's WorkflowHandle dataclass.
type Handle interface {
	// ID returns the workflow's identifier.
	ID() string
	// Status returns the workflow's current lifecycle state.
	Status(ctx context.Context) (Status, error)
	// Result blocks until the workflow completes and returns its output.
	// Returns context.DeadlineExceeded if ctx's deadline elapses first,
	// and the workflow's own error if it ended in StatusError.
	Result(ctx context.Context) (any, error)
}

// Engine is the only interface application code depends on; it must never
// depend on a concrete backend. Implementations must support every
// method below.
type Engine interface {
	// Workflow executes fn as a durable workflow and returns a Handle to
	// poll status or await the result.
	Workflow(fn Func) Handle

	// Run executes fn as a durable workflow synchronously, blocking for
	// the result. Equivalent to Workflow(fn).Result(ctx) on a backend
	// that supports it more efficiently in-process.
	Run(ctx context.Context, fn Func) (any, error)

	// Step executes fn as a checkpointed step inside the current
	// workflow. On recovery the step replays its recorded output instead
	// of re-executing fn, guaranteeing exactly-once semantics.
	Step(ctx context.Context, fn Func) (any, error)

	// Queue enqueues fn for background execution on the named queue. At
	// most the queue's configured concurrency runs at once.
	Queue(queueName string, fn Func) Handle

	// Sleep durably sleeps for d — survives process restarts on a
	// durable backend. May only be called inside a workflow.
	Sleep(ctx context.Context, d time.Duration) error

	// Send delivers value on topic to the workflow identified by
	// workflowID.
	Send(ctx context.Context, workflowID, topic string, value any) error

	// Recv waits for a value on topic inside the current workflow,
	// returning (nil, false) if timeout elapses first.
	Recv(ctx context.Context, topic string, timeout time.Duration) (any, bool, error)

	// WorkflowStatus returns workflowID's current lifecycle state.
	WorkflowStatus(ctx context.Context, workflowID string) (Status, error)

	// WorkflowResult blocks until workflowID completes and returns its
	// output, or until timeout elapses.
	WorkflowResult(ctx context.Context, workflowID string, timeout time.Duration) (any, error)
}
