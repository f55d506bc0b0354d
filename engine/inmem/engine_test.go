package inmem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowplane/flowplane/engine"
)

func TestActionActivityTypedExecution(t *testing.T) {
	eng := New()
	ctx := context.Background()

	err := eng.RegisterActionActivity(ctx, "invoke_action", engine.ActivityOptions{}, func(ctx context.Context, input *engine.ActionInput) (*engine.ActionResult, error) {
		return &engine.ActionResult{
			Status:     "SUCCESS",
			Data:       map[string]any{"echo": input.ActionName},
			ActionName: input.ActionName,
		}, nil
	})
	if err != nil {
		t.Fatalf("register action activity: %v", err)
	}

	err = eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input *engine.RunInput) (*engine.RunOutput, error) {
			out, err2 := wfCtx.ExecuteAction(engine.ActionCall{
				Name: "invoke_action",
				Input: &engine.ActionInput{
					ExecutionID: input.ExecutionID,
					StepName:    "step-1",
					ActionName:  "send_email",
				},
			})
			if err2 != nil {
				return nil, err2
			}
			if out == nil || out.Status != "SUCCESS" || out.Data["echo"] != "send_email" {
				t.Errorf("unexpected action result: %+v", out)
			}
			return &engine.RunOutput{Status: "COMPLETED"}, nil
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-1",
		Workflow: "test_workflow",
		Input:    &engine.RunInput{ExecutionID: "exec-1"},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	out, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("workflow failed: %v", err)
	}
	if out.Status != "COMPLETED" {
		t.Errorf("unexpected run output: %+v", out)
	}
}

func TestQueryRunStatusLifecycle(t *testing.T) {
	eng := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	started := make(chan struct{})
	err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input *engine.RunInput) (*engine.RunOutput, error) {
			close(started)
			<-release
			return &engine.RunOutput{Status: "COMPLETED"}, nil
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-1",
		Workflow: "test_workflow",
		Input:    &engine.RunInput{},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	<-started
	status, err := eng.QueryRunStatus(ctx, "test-run-1", "")
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != engine.RunStatusRunning {
		t.Errorf("expected running, got %s", status)
	}

	close(release)
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("workflow failed: %v", err)
	}

	status, err = eng.QueryRunStatus(ctx, "test-run-1", "")
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != engine.RunStatusCompleted {
		t.Errorf("expected completed, got %s", status)
	}
}

func TestQueryRunStatusUnknownWorkflow(t *testing.T) {
	eng := New()
	_, err := eng.QueryRunStatus(context.Background(), "missing", "")
	if !errors.Is(err, engine.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestCancelByIDMarksRunCanceled(t *testing.T) {
	eng := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	blocked := make(chan struct{})
	err := eng.RegisterActionActivity(ctx, "block", engine.ActivityOptions{}, func(actx context.Context, input *engine.ActionInput) (*engine.ActionResult, error) {
		close(blocked)
		<-actx.Done()
		return nil, actx.Err()
	})
	if err != nil {
		t.Fatalf("register action activity: %v", err)
	}

	err = eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input *engine.RunInput) (*engine.RunOutput, error) {
			_, err2 := wfCtx.ExecuteAction(engine.ActionCall{
				Name:  "block",
				Input: &engine.ActionInput{StepName: "step-1"},
			})
			return nil, err2
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-1",
		Workflow: "test_workflow",
		Input:    &engine.RunInput{},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	<-blocked
	canceler, ok := eng.(engine.Canceler)
	if !ok {
		t.Fatal("in-memory engine does not implement Canceler")
	}
	if err := canceler.CancelByID(ctx, "test-run-1", ""); err != nil {
		t.Fatalf("cancel workflow: %v", err)
	}

	if _, err := handle.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	status, err := eng.QueryRunStatus(ctx, "test-run-1", "")
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != engine.RunStatusCanceled {
		t.Errorf("expected canceled, got %s", status)
	}
}

func TestOutcomeRunsAfterCancel(t *testing.T) {
	eng := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu       sync.Mutex
		outcomes []*engine.OutcomeInput
	)
	err := eng.RegisterOutcomeActivity(ctx, "record_outcome", engine.ActivityOptions{}, func(_ context.Context, input *engine.OutcomeInput) error {
		mu.Lock()
		outcomes = append(outcomes, input)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("register outcome activity: %v", err)
	}

	blocked := make(chan struct{})
	err = eng.RegisterActionActivity(ctx, "block", engine.ActivityOptions{}, func(actx context.Context, input *engine.ActionInput) (*engine.ActionResult, error) {
		close(blocked)
		<-actx.Done()
		return nil, actx.Err()
	})
	if err != nil {
		t.Fatalf("register action activity: %v", err)
	}

	err = eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input *engine.RunInput) (*engine.RunOutput, error) {
			_, err2 := wfCtx.ExecuteAction(engine.ActionCall{
				Name:  "block",
				Input: &engine.ActionInput{StepName: "step-1"},
			})
			if err2 != nil {
				if perr := wfCtx.PublishOutcome(engine.OutcomeCall{
					Name:  "record_outcome",
					Input: &engine.OutcomeInput{ExecutionID: input.ExecutionID, Status: "CANCELLED"},
				}); perr != nil {
					return nil, perr
				}
				return nil, err2
			}
			return &engine.RunOutput{Status: "COMPLETED"}, nil
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-1",
		Workflow: "test_workflow",
		Input:    &engine.RunInput{ExecutionID: "exec-1"},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	<-blocked
	if err := handle.Cancel(ctx); err != nil {
		t.Fatalf("cancel workflow: %v", err)
	}
	if _, err := handle.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(outcomes))
	}
	if outcomes[0].ExecutionID != "exec-1" || outcomes[0].Status != "CANCELLED" {
		t.Errorf("unexpected outcome: %+v", outcomes[0])
	}
}

func TestStartRejectsDuplicateRunningWorkflow(t *testing.T) {
	eng := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input *engine.RunInput) (*engine.RunOutput, error) {
			<-release
			return &engine.RunOutput{Status: "COMPLETED"}, nil
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-1",
		Workflow: "test_workflow",
		Input:    &engine.RunInput{},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	if _, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-1",
		Workflow: "test_workflow",
		Input:    &engine.RunInput{},
	}); err == nil {
		t.Fatal("expected duplicate start to fail")
	}

	close(release)
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("workflow failed: %v", err)
	}
}
