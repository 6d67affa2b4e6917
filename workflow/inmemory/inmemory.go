// Package inmemory is a synchronous, non-durable workflow.Engine reference
// implementation: nothing survives a process restart, Step does not
// checkpoint, and Queue runs on a bounded goroutine pool. It exists so
// statemachine's Tier-3 async dispatch and store's façade have a concrete
// Engine to call in tests and in deployments that don't need durability.
// Grounded on original_source/workflow/dispatcher.py's queueing shape
// (WorkflowDispatcher wraps an engine and dispatches named work) translated
// to Go's goroutine-and-channel idiom in place of Python's async/await.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/workflow"
)

// DefaultQueueConcurrency bounds how many queued jobs run at once per
// named queue when Engine is built with NewEngine's zero value.
const DefaultQueueConcurrency = 4

// workflowIDKey carries the running workflow's ID on the context passed to
// its Func, so Recv can resolve "the current workflow" without requiring
// every caller to thread an ID through by hand.
type workflowIDKey struct{}

func withWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey{}, id)
}

func workflowIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(workflowIDKey{}).(string)
	return id, ok
}

type run struct {
	mu     sync.Mutex
	status workflow.Status
	result any
	err    error
	done   chan struct{}
}

func newRun() *run {
	return &run{status: workflow.StatusPending, done: make(chan struct{})}
}

func (r *run) finish(result any, err error) {
	r.mu.Lock()
	if r.status == workflow.StatusSuccess || r.status == workflow.StatusError {
		r.mu.Unlock()
		return
	}
	r.result, r.err = result, err
	if err != nil {
		r.status = workflow.StatusError
	} else {
		r.status = workflow.StatusSuccess
	}
	r.mu.Unlock()
	close(r.done)
}

func (r *run) snapshot() (workflow.Status, any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.result, r.err
}

// handle is the Engine's workflow.Handle implementation.
type handle struct {
	id string
	r  *run
}

func (h *handle) ID() string { return h.id }

func (h *handle) Status(ctx context.Context) (workflow.Status, error) {
	status, _, _ := h.r.snapshot()
	return status, nil
}

func (h *handle) Result(ctx context.Context) (any, error) {
	select {
	case <-h.r.done:
		_, result, err := h.r.snapshot()
		return result, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type mailbox struct {
	mu   sync.Mutex
	subs map[string]chan any
}

func newMailbox() *mailbox {
	return &mailbox{subs: make(map[string]chan any)}
}

func (m *mailbox) subscriberKey(workflowID, topic string) string {
	return workflowID + "\x00" + topic
}

func (m *mailbox) channel(workflowID, topic string) chan any {
	key := m.subscriberKey(workflowID, topic)
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.subs[key]
	if !ok {
		ch = make(chan any, 16)
		m.subs[key] = ch
	}
	return ch
}

// Engine is a synchronous, in-process workflow.Engine. Workflow and Queue
// both execute fn on a goroutine immediately; Step executes fn inline with
// no checkpointing, since there is no durable log to checkpoint into.
type Engine struct {
	logger *logging.Logger

	mu    sync.Mutex
	runs  map[string]*run
	mail  *mailbox
	queue map[string]chan struct{}
	qCap  int
}

// NewEngine builds an Engine. queueConcurrency of 0 uses
// DefaultQueueConcurrency.
func NewEngine(logger *logging.Logger, queueConcurrency int) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if queueConcurrency <= 0 {
		queueConcurrency = DefaultQueueConcurrency
	}
	return &Engine{
		logger: logger,
		runs:   make(map[string]*run),
		mail:   newMailbox(),
		queue:  make(map[string]chan struct{}),
		qCap:   queueConcurrency,
	}
}

func (e *Engine) register(r *run) string {
	id := uuid.NewString()
	e.mu.Lock()
	e.runs[id] = r
	e.mu.Unlock()
	return id
}

func (e *Engine) lookup(id string) (*run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[id]
	return r, ok
}

// Workflow starts fn on its own goroutine and returns a Handle immediately.
func (e *Engine) Workflow(fn workflow.Func) workflow.Handle {
	r := newRun()
	id := e.register(r)
	r.mu.Lock()
	r.status = workflow.StatusRunning
	r.mu.Unlock()

	go func() {
		result, err := fn(withWorkflowID(context.Background(), id))
		if err != nil {
			e.logger.WithFields(map[string]interface{}{"workflow_id": id}).WithError(err).Warn("workflow failed")
		}
		r.finish(result, err)
	}()

	return &handle{id: id, r: r}
}

// Run executes fn as a workflow and blocks for its result.
func (e *Engine) Run(ctx context.Context, fn workflow.Func) (any, error) {
	return e.Workflow(fn).Result(ctx)
}

// Step executes fn inline; there is no durable log to checkpoint into, so
// a crash mid-step re-executes fn in full on retry — callers that need
// exactly-once semantics across restarts need a durable Engine.
func (e *Engine) Step(ctx context.Context, fn workflow.Func) (any, error) {
	return fn(ctx)
}

// Queue returns immediately; fn runs on queueName's bounded goroutine pool
// once a slot is free, and its status stays StatusPending until then.
func (e *Engine) Queue(queueName string, fn workflow.Func) workflow.Handle {
	e.mu.Lock()
	sem, ok := e.queue[queueName]
	if !ok {
		sem = make(chan struct{}, e.qCap)
		e.queue[queueName] = sem
	}
	e.mu.Unlock()

	r := newRun()
	id := e.register(r)

	go func() {
		sem <- struct{}{}
		defer func() { <-sem }()
		r.mu.Lock()
		r.status = workflow.StatusRunning
		r.mu.Unlock()
		result, err := fn(withWorkflowID(context.Background(), id))
		if err != nil {
			e.logger.WithFields(map[string]interface{}{"workflow_id": id, "queue": queueName}).WithError(err).Warn("queued job failed")
		}
		r.finish(result, err)
	}()

	return &handle{id: id, r: r}
}

// Sleep sleeps for d or until ctx is cancelled.
func (e *Engine) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers value to workflowID on topic.
func (e *Engine) Send(ctx context.Context, workflowID, topic string, value any) error {
	ch := e.mail.channel(workflowID, topic)
	select {
	case ch <- value:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv waits for a value on topic sent to the calling workflow. The
// workflow ID is resolved from ctx, which Workflow/Queue stamp before
// invoking fn; Recv returns an error if called with a ctx that never
// passed through one of them (e.g. outside any running workflow).
func (e *Engine) Recv(ctx context.Context, topic string, timeout time.Duration) (any, bool, error) {
	id, ok := workflowIDFromContext(ctx)
	if !ok {
		return nil, false, infraerrors.Internal("inmemory.Engine.Recv called outside a running workflow", nil)
	}
	return e.RecvFor(ctx, id, topic, timeout)
}

// RecvFor waits up to timeout for a value sent to workflowID on topic.
func (e *Engine) RecvFor(ctx context.Context, workflowID, topic string, timeout time.Duration) (any, bool, error) {
	ch := e.mail.channel(workflowID, topic)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// WorkflowStatus returns workflowID's current lifecycle state.
func (e *Engine) WorkflowStatus(ctx context.Context, workflowID string) (workflow.Status, error) {
	r, ok := e.lookup(workflowID)
	if !ok {
		return "", infraerrors.NotFound("workflow", workflowID)
	}
	status, _, _ := r.snapshot()
	return status, nil
}

// WorkflowResult blocks until workflowID completes or timeout elapses.
func (e *Engine) WorkflowResult(ctx context.Context, workflowID string, timeout time.Duration) (any, error) {
	r, ok := e.lookup(workflowID)
	if !ok {
		return nil, infraerrors.NotFound("workflow", workflowID)
	}
	select {
	case <-r.done:
		_, result, err := r.snapshot()
		return result, err
	case <-time.After(timeout):
		return nil, infraerrors.Internal(fmt.Sprintf("workflow %s did not complete within %s", workflowID, timeout), nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ workflow.Engine = (*Engine)(nil)
