package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/engine"
	"github.com/flowplane/flowplane/workflow"
)

type (
	// WorkflowSource loads workflow records to execute.
	WorkflowSource interface {
		GetWorkflow(ctx context.Context, id string) (*workflow.Record, error)
	}

	// ExecutionStore persists execution lifecycle transitions. InsertExecution
	// assigns ex.ID. CloseExecution is expected to leave already-terminal
	// records untouched.
	ExecutionStore interface {
		InsertExecution(ctx context.Context, ex *Execution) error
		GetExecution(ctx context.Context, id string) (*Execution, error)
		SetRuntimeRunID(ctx context.Context, id, runID string) error
		CloseExecution(ctx context.Context, id, status string, outputs map[string]any, errMsg string) error
	}

	// Runtime is the engine surface the service drives: start, cancel, and
	// authoritative status.
	Runtime interface {
		StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error)
		QueryRunStatus(ctx context.Context, workflowID, runID string) (engine.RunStatus, error)
		CancelByID(ctx context.Context, workflowID, runID string) error
	}

	// Options configures a Service.
	Options struct {
		// WorkflowName is the registered executor workflow to start.
		WorkflowName string
		// TaskQueue is the queue executions are scheduled on. Empty uses the
		// workflow definition's queue.
		TaskQueue string
		// RunTimeout bounds a single execution at the engine level. Zero
		// disables the bound.
		RunTimeout time.Duration
	}

	// Service drives the execution lifecycle: launch on the engine, cancel,
	// and reconcile status.
	Service struct {
		workflows WorkflowSource
		execs     ExecutionStore
		runtime   Runtime
		opts      Options
	}
)

// NewService returns a Service wired to the given stores and engine.
func NewService(workflows WorkflowSource, execs ExecutionStore, runtime Runtime, opts Options) (*Service, error) {
	if workflows == nil || execs == nil || runtime == nil {
		return nil, errors.New("runs: workflow source, execution store and runtime are required")
	}
	if opts.WorkflowName == "" {
		return nil, errors.New("runs: workflow name is required")
	}
	return &Service{workflows: workflows, execs: execs, runtime: runtime, opts: opts}, nil
}

// Start launches an execution of the stored workflow and returns the RUNNING
// execution record. The record is inserted before the engine start so step
// logs appended by activities always reference an existing execution; if the
// start itself fails the record is closed as FAILED.
func (s *Service) Start(ctx context.Context, workflowID string, inputs map[string]any) (*Execution, error) {
	wf, err := s.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	runtimeID := fmt.Sprintf("workflow-%s-%s", wf.ID, uuid.NewString())
	ex := &Execution{
		WorkflowID:        wf.ID,
		WorkflowName:      wf.Name,
		RuntimeWorkflowID: runtimeID,
		Status:            StatusRunning,
		Inputs:            inputs,
		StartedAt:         time.Now().UTC(),
	}
	if err := s.execs.InsertExecution(ctx, ex); err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}

	handle, err := s.runtime.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        runtimeID,
		Workflow:  s.opts.WorkflowName,
		TaskQueue: s.opts.TaskQueue,
		Input: &engine.RunInput{
			ExecutionID: ex.ID,
			WorkflowID:  wf.ID,
			Definition:  wf.Config,
			Inputs:      inputs,
		},
		RunTimeout: s.opts.RunTimeout,
		Memo: map[string]any{
			"execution_id":  ex.ID,
			"workflow_id":   wf.ID,
			"workflow_name": wf.Name,
		},
		// A deterministic failure would fail identically on a restart, so
		// the workflow itself never retries. Activities carry their own
		// retry policies.
		RetryPolicy: engine.RetryPolicy{MaxAttempts: 1},
	})
	if err != nil {
		if cerr := s.execs.CloseExecution(ctx, ex.ID, StatusFailed, nil, fmt.Sprintf("failed to start workflow: %v", err)); cerr != nil {
			log.Errorf(ctx, cerr, "closing execution %s after failed start", ex.ID)
		}
		return nil, fmt.Errorf("start workflow: %w", err)
	}

	ex.RuntimeRunID = handle.RunID()
	if err := s.execs.SetRuntimeRunID(ctx, ex.ID, ex.RuntimeRunID); err != nil {
		log.Warnf(ctx, "recording run id for execution %s: %v", ex.ID, err)
	}
	log.Printf(ctx, "started execution %s for workflow %s as %s", ex.ID, wf.ID, runtimeID)
	return ex, nil
}

// Cancel stops a RUNNING execution and returns the updated record. The record
// is marked CANCELLED even when the engine no longer knows the run, so stale
// executions can always be resolved.
func (s *Service) Cancel(ctx context.Context, executionID string) (*Execution, error) {
	ex, err := s.execs.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if ex.Status != StatusRunning {
		return nil, &StateConflictError{Op: "cancel", Status: ex.Status}
	}

	if err := s.runtime.CancelByID(ctx, ex.RuntimeWorkflowID, ex.RuntimeRunID); err != nil && !errors.Is(err, engine.ErrWorkflowNotFound) {
		return nil, fmt.Errorf("cancel workflow: %w", err)
	}

	if err := s.execs.CloseExecution(ctx, ex.ID, StatusCancelled, nil, ""); err != nil {
		return nil, fmt.Errorf("close execution: %w", err)
	}
	log.Printf(ctx, "cancelled execution %s", ex.ID)
	now := time.Now().UTC()
	ex.Status = StatusCancelled
	ex.CompletedAt = &now
	return ex, nil
}

// Sync folds the engine's authoritative run status into the stored record and
// returns it. Terminal local statuses are never overwritten, and engine
// errors leave the record untouched so the API can still serve the last known
// state.
func (s *Service) Sync(ctx context.Context, executionID string) (*Execution, error) {
	ex, err := s.execs.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(ex.Status) {
		return ex, nil
	}

	status, err := s.runtime.QueryRunStatus(ctx, ex.RuntimeWorkflowID, ex.RuntimeRunID)
	if err != nil {
		log.Warnf(ctx, "querying run status for execution %s: %v", ex.ID, err)
		return ex, nil
	}

	mapped, terminal := executionStatus(status)
	if !terminal || mapped == ex.Status {
		return ex, nil
	}

	if err := s.execs.CloseExecution(ctx, ex.ID, mapped, nil, ""); err != nil {
		return nil, fmt.Errorf("close execution: %w", err)
	}
	log.Printf(ctx, "synced execution %s to %s", ex.ID, mapped)
	now := time.Now().UTC()
	ex.Status = mapped
	ex.CompletedAt = &now
	return ex, nil
}

// executionStatus maps an engine run status onto the execution vocabulary.
// Only terminal engine statuses map; a running or pending run keeps the
// stored status.
func executionStatus(s engine.RunStatus) (string, bool) {
	switch s {
	case engine.RunStatusCompleted:
		return StatusCompleted, true
	case engine.RunStatusFailed:
		return StatusFailed, true
	case engine.RunStatusCanceled:
		return StatusCancelled, true
	default:
		return "", false
	}
}
