// Package engine defines the durable-runtime abstraction the workflow
// executor runs on. It provides pluggable interfaces so the executor and the
// control plane can target Temporal in production and an in-memory backend in
// tests without modification.
//
// The package defines:
//
//   - Engine: registers the executor workflow and its activities, starts
//     executions, and reports authoritative run status.
//
//   - WorkflowContext: deterministic operations available inside the workflow
//     handler. All I/O goes through the three activity kinds; the handler
//     itself must be replay-safe (no wall clock, no randomness, stable
//     iteration order).
//
//   - WorkflowHandle: interaction with a started execution (wait, cancel).
//
// Two implementations ship with this module: temporal (production, durable)
// and inmem (synchronous, for tests and development).
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/flowplane/flowplane/workflow"
)

// RunStatus represents the lifecycle state of a workflow execution as the
// engine reports it.
type RunStatus string

const (
	// RunStatusPending indicates the execution has been accepted but not started yet.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates the execution is actively running.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the execution finished successfully.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the execution failed permanently.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCanceled indicates the execution was canceled externally.
	RunStatusCanceled RunStatus = "canceled"
)

// Terminal reports whether the status is absorbing: no engine transition can
// move an execution out of it.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// Action result statuses reported by the action activity in
// ActionResult.Status.
const (
	ActionStatusSuccess = "SUCCESS"
	ActionStatusFailed  = "FAILED"
)

// ErrWorkflowNotFound indicates that no workflow execution exists for the
// given identifier.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrRunCanceled is wrapped into errors returned from WorkflowContext calls
// when the underlying run was canceled, so workflow handlers can distinguish
// cancellation from infrastructure failure without engine-specific imports.
var ErrRunCanceled = errors.New("workflow run canceled")

type (
	// Engine abstracts workflow registration and execution so adapters
	// (Temporal, in-memory) can be swapped without touching executor code.
	// Implementations translate these generic types into backend primitives.
	Engine interface {
		// RegisterWorkflow registers the executor workflow with the engine.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActionActivity registers the typed activity that invokes an
		// external action over HTTP and reports its terminal per-node result.
		RegisterActionActivity(ctx context.Context, name string, opts ActivityOptions, fn func(context.Context, *ActionInput) (*ActionResult, error)) error

		// RegisterStepLogActivity registers the typed activity that appends a
		// step log outside of the deterministic workflow thread.
		RegisterStepLogActivity(ctx context.Context, name string, opts ActivityOptions, fn func(context.Context, *StepLogInput) error) error

		// RegisterOutcomeActivity registers the typed activity that records the
		// terminal outcome of an execution outside of the workflow thread.
		RegisterOutcomeActivity(ctx context.Context, name string, opts ActivityOptions, fn func(context.Context, *OutcomeInput) error) error

		// StartWorkflow initiates a new execution and returns a handle for
		// interacting with it. The workflow ID in req must be unique for the
		// engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)

		// QueryRunStatus returns the authoritative lifecycle status for the
		// execution identified by workflowID (and optionally runID). Returns
		// ErrWorkflowNotFound if the engine does not know the execution.
		QueryRunStatus(ctx context.Context, workflowID, runID string) (RunStatus, error)
	}

	// Canceler cancels executions by workflow ID without relying on in-process
	// handles, so cancellation survives control-plane restarts.
	Canceler interface {
		// CancelByID requests cancellation of the given execution. The
		// workflow's context is canceled and in-flight activities may be
		// canceled depending on the engine.
		CancelByID(ctx context.Context, workflowID, runID string) error
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		// Name is the logical identifier registered with the engine.
		Name string
		// TaskQueue is the default queue used when starting new executions.
		// Workers subscribe to this queue to receive workflow tasks.
		TaskQueue string
		// Handler is the workflow function invoked when the workflow executes.
		Handler WorkflowFunc
	}

	// WorkflowFunc is the executor entry point. It must be deterministic with
	// respect to activity results.
	WorkflowFunc func(ctx WorkflowContext, input *RunInput) (*RunOutput, error)

	// RunInput is the payload handed to the executor workflow when an
	// execution starts.
	RunInput struct {
		// ExecutionID is the control-plane execution record id.
		ExecutionID string `json:"execution_id"`
		// WorkflowID is the persisted workflow id the definition came from.
		WorkflowID string `json:"workflow_id"`
		// Definition is the validated node/edge graph to execute.
		Definition workflow.Definition `json:"definition"`
		// Inputs are the caller-supplied workflow inputs.
		Inputs map[string]any `json:"inputs,omitempty"`
	}

	// RunOutput is the terminal result of the executor workflow: the
	// accumulated per-node results plus the collected failure messages.
	RunOutput struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data,omitempty"`
		Errors []string       `json:"errors"`
	}

	// ActionInput is the payload of the action invocation activity.
	ActionInput struct {
		ExecutionID string         `json:"execution_id"`
		StepName    string         `json:"step_name"`
		ActionName  string         `json:"action_name"`
		Config      map[string]any `json:"config,omitempty"`
		State       map[string]any `json:"state,omitempty"`
	}

	// ActionResult is the terminal per-node result of an action invocation.
	// A failed invocation is a value, not an activity error: the activity only
	// errors on infrastructure problems the retry policy should see.
	ActionResult struct {
		Status     string         `json:"status"`
		Data       map[string]any `json:"data,omitempty"`
		Error      string         `json:"error,omitempty"`
		ActionName string         `json:"action_name"`
	}

	// StepLogInput is the payload of the step log activity.
	StepLogInput struct {
		ExecutionID string         `json:"execution_id"`
		StepName    string         `json:"step_name"`
		ActionName  string         `json:"action_name,omitempty"`
		Status      string         `json:"status"`
		Inputs      map[string]any `json:"inputs,omitempty"`
		Outputs     map[string]any `json:"outputs,omitempty"`
		Error       string         `json:"error,omitempty"`
	}

	// OutcomeInput is the payload of the outcome activity that closes the
	// execution record.
	OutcomeInput struct {
		ExecutionID string         `json:"execution_id"`
		Status      string         `json:"status"`
		Outputs     map[string]any `json:"outputs,omitempty"`
		Error       string         `json:"error,omitempty"`
	}

	// WorkflowContext exposes engine operations to the workflow handler within
	// its deterministic execution environment. It wraps engine-specific
	// contexts (Temporal workflow.Context, in-memory contexts) and provides a
	// uniform API for activity execution and workflow time.
	//
	// WorkflowContext is bound to a single execution and must not be shared
	// across goroutines.
	WorkflowContext interface {
		// WorkflowID returns the unique identifier of this execution.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// Now returns the current workflow time in a replay-safe manner.
		Now() time.Time

		// Logger returns a replay-safe logger. Log calls are suppressed during
		// replay so side effects stay deterministic.
		Logger() Logger

		// ExecuteAction schedules the action invocation activity and blocks
		// until it completes. Cancellation propagates through the engine, so
		// the call takes no context.
		ExecuteAction(call ActionCall) (*ActionResult, error)

		// RecordStepLog schedules the step log activity and blocks until it
		// completes. Implementations run it outside the deterministic
		// workflow thread so the append can perform I/O.
		RecordStepLog(call StepLogCall) error

		// PublishOutcome schedules the outcome activity and blocks until it
		// completes.
		PublishOutcome(call OutcomeCall) error
	}

	// Logger emits workflow and worker logs with alternating key/value pairs.
	// The method set matches Temporal's workflow logger so adapters can pass
	// engine loggers through without wrapping.
	Logger interface {
		Debug(msg string, keyvals ...any)
		Info(msg string, keyvals ...any)
		Warn(msg string, keyvals ...any)
		Error(msg string, keyvals ...any)
	}

	// ActionCall describes a single invocation of the action activity from
	// inside workflow code.
	ActionCall struct {
		// Name identifies the registered action activity.
		Name string
		// Input is the typed payload passed to the activity handler.
		Input *ActionInput
		// Options overrides the registered activity defaults for this call.
		Options ActivityOptions
	}

	// StepLogCall describes a single invocation of the step log activity.
	StepLogCall struct {
		Name    string
		Input   *StepLogInput
		Options ActivityOptions
	}

	// OutcomeCall describes a single invocation of the outcome activity.
	OutcomeCall struct {
		Name    string
		Input   *OutcomeInput
		Options ActivityOptions
	}

	// ActivityOptions configures retry and timeouts for an activity.
	ActivityOptions struct {
		// Queue overrides the default activity queue. If empty, the activity
		// inherits the workflow's task queue.
		Queue string
		// RetryPolicy controls retry behavior for this activity. If
		// zero-valued, the engine uses its default policy.
		RetryPolicy RetryPolicy
		// Timeout bounds a single activity execution attempt (start to close).
		// Zero means the engine default.
		Timeout time.Duration
	}

	// RetryPolicy defines retry semantics shared by workflows and activities.
	// Zero-valued fields mean the engine uses its defaults.
	RetryPolicy struct {
		// MaxAttempts caps the total number of attempts. Zero means unlimited.
		MaxAttempts int
		// InitialInterval is the delay before the first retry.
		InitialInterval time.Duration
		// MaxInterval caps the delay between retries.
		MaxInterval time.Duration
		// BackoffCoefficient multiplies the delay after each retry. Values < 1
		// are treated as 1; 2 gives exponential backoff.
		BackoffCoefficient float64
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		// ID is the workflow identifier, unique within the engine scope.
		ID string
		// Workflow names the registered workflow definition to execute.
		Workflow string
		// TaskQueue selects the queue to schedule the execution on. Empty
		// means the definition's queue.
		TaskQueue string
		// Input is the typed payload passed to the workflow handler.
		Input *RunInput
		// RunTimeout bounds the total execution time at the engine level.
		// Zero means no engine-level bound.
		RunTimeout time.Duration
		// Memo stores small diagnostic payloads alongside the execution for
		// visibility tooling. Nil means no memo.
		Memo map[string]any
		// RetryPolicy controls automatic restarts of the workflow itself.
		// Not to be confused with activity retries.
		RetryPolicy RetryPolicy
	}

	// WorkflowHandle allows callers to interact with a started execution.
	WorkflowHandle interface {
		// ID returns the workflow identifier of the execution.
		ID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// Wait blocks until the execution completes and returns its result.
		// Returns an error if the execution fails or is canceled.
		Wait(ctx context.Context) (*RunOutput, error)

		// Cancel requests cancellation of the execution.
		Cancel(ctx context.Context) error
	}
)

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
