package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/r3e-network/objectstore/workflow"
)

func TestWorkflowRunsAndReturnsResult(t *testing.T) {
	e := NewEngine(nil, 0)
	h := e.Workflow(func(ctx context.Context) (any, error) {
		return 42, nil
	})

	result, err := h.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %v, want 42", result)
	}

	status, err := h.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("status = %v, want StatusSuccess", status)
	}
}

func TestWorkflowPropagatesError(t *testing.T) {
	e := NewEngine(nil, 0)
	wantErr := errors.New("boom")
	h := e.Workflow(func(ctx context.Context) (any, error) {
		return nil, wantErr
	})

	_, err := h.Result(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	status, _ := h.Status(context.Background())
	if status != workflow.StatusError {
		t.Fatalf("status = %v, want StatusError", status)
	}
}

func TestRunBlocksForResult(t *testing.T) {
	e := NewEngine(nil, 0)
	result, err := e.Run(context.Background(), func(ctx context.Context) (any, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != "done" {
		t.Fatalf("result = %v, want done", result)
	}
}

func TestStepExecutesInline(t *testing.T) {
	e := NewEngine(nil, 0)
	called := false
	result, err := e.Step(context.Background(), func(ctx context.Context) (any, error) {
		called = true
		return "stepped", nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !called {
		t.Fatal("expected fn to have been called")
	}
	if result != "stepped" {
		t.Fatalf("result = %v, want stepped", result)
	}
}

func TestQueueBoundsConcurrency(t *testing.T) {
	e := NewEngine(nil, 1)
	started := make(chan struct{})
	release := make(chan struct{})

	h1 := e.Queue("serial", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "first", nil
	})

	<-started
	h2 := e.Queue("serial", func(ctx context.Context) (any, error) {
		return "second", nil
	})

	// h2 must not be able to complete before h1 releases, since the queue
	// has capacity 1.
	select {
	case <-time.After(20 * time.Millisecond):
	case <-waitDone(h2):
		t.Fatal("second queued job completed before the first released its slot")
	}

	close(release)

	r1, err := h1.Result(context.Background())
	if err != nil || r1 != "first" {
		t.Fatalf("h1 result = (%v, %v)", r1, err)
	}
	r2, err := h2.Result(context.Background())
	if err != nil || r2 != "second" {
		t.Fatalf("h2 result = (%v, %v)", r2, err)
	}
}

func waitDone(h workflow.Handle) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_, _ = h.Result(context.Background())
		close(done)
	}()
	return done
}

func TestSendRecvForDeliversValue(t *testing.T) {
	e := NewEngine(nil, 0)
	id := "wf-1"

	go func() {
		_ = e.Send(context.Background(), id, "greeting", "hello")
	}()

	value, ok, err := e.RecvFor(context.Background(), id, "greeting", time.Second)
	if err != nil {
		t.Fatalf("RecvFor: %v", err)
	}
	if !ok {
		t.Fatal("expected a value to be received")
	}
	if value != "hello" {
		t.Fatalf("value = %v, want hello", value)
	}
}

func TestRecvResolvesWorkflowIDFromContext(t *testing.T) {
	e := NewEngine(nil, 0)
	var engine workflow.Engine = e

	h := engine.Workflow(func(ctx context.Context) (any, error) {
		value, ok, err := engine.Recv(ctx, "greeting", time.Second)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("no value received")
		}
		return value, nil
	})

	go func() {
		_ = engine.Send(context.Background(), h.ID(), "greeting", "hello")
	}()

	result, err := h.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result != "hello" {
		t.Fatalf("result = %v, want hello", result)
	}
}

func TestRecvOutsideWorkflowErrors(t *testing.T) {
	e := NewEngine(nil, 0)
	var engine workflow.Engine = e

	_, _, err := engine.Recv(context.Background(), "greeting", 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected Recv to error when ctx carries no workflow ID")
	}
}

func TestRecvForTimesOutWithoutSend(t *testing.T) {
	e := NewEngine(nil, 0)
	_, ok, err := e.RecvFor(context.Background(), "wf-2", "nothing", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("RecvFor: %v", err)
	}
	if ok {
		t.Fatal("expected no value within the timeout")
	}
}

func TestSleepRespectsContextCancellation(t *testing.T) {
	e := NewEngine(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Sleep(ctx, time.Second); err == nil {
		t.Fatal("expected Sleep to return an error for a cancelled context")
	}
}

func TestWorkflowStatusAndResultUnknownID(t *testing.T) {
	e := NewEngine(nil, 0)
	if _, err := e.WorkflowStatus(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for an unknown workflow ID")
	}
	if _, err := e.WorkflowResult(context.Background(), "missing", time.Second); err == nil {
		t.Fatal("expected an error for an unknown workflow ID")
	}
}

func TestWorkflowResultTimesOut(t *testing.T) {
	e := NewEngine(nil, 0)
	h := e.Workflow(func(ctx context.Context) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	})
	if _, err := e.WorkflowResult(context.Background(), h.ID(), time.Millisecond); err == nil {
		t.Fatal("expected WorkflowResult to time out before the workflow finishes")
	}
}
