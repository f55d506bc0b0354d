package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/flowplane/flowplane/engine"
)

// temporalWorkflowContext adapts a Temporal workflow.Context to the engine's
// WorkflowContext. All activity scheduling goes through the deterministic
// workflow APIs; cancellation flows through Temporal itself and surfaces as
// errors on the blocking calls.
type temporalWorkflowContext struct {
	engine     *Engine
	ctx        workflow.Context
	workflowID string
	runID      string
}

func newTemporalWorkflowContext(e *Engine, ctx workflow.Context) *temporalWorkflowContext {
	info := workflow.GetInfo(ctx)
	return &temporalWorkflowContext{
		engine:     e,
		ctx:        ctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
	}
}

func (w *temporalWorkflowContext) WorkflowID() string {
	return w.workflowID
}

func (w *temporalWorkflowContext) RunID() string {
	return w.runID
}

// Now returns the workflow time recorded in history, so it is stable across
// replays.
func (w *temporalWorkflowContext) Now() time.Time {
	return workflow.Now(w.ctx)
}

// Logger returns Temporal's replay-aware workflow logger, which satisfies
// engine.Logger directly.
func (w *temporalWorkflowContext) Logger() engine.Logger {
	return workflow.GetLogger(w.ctx)
}

// ExecuteAction schedules the action activity and blocks the workflow until
// it reports a result or exhausts its retry policy.
func (w *temporalWorkflowContext) ExecuteAction(call engine.ActionCall) (*engine.ActionResult, error) {
	if call.Name == "" {
		return nil, fmt.Errorf("temporal engine: action activity name is required")
	}
	if call.Input == nil {
		return nil, fmt.Errorf("temporal engine: action input is required")
	}
	actx := workflow.WithActivityOptions(w.ctx, w.activityOptionsFor(call.Name, call.Options))
	var out engine.ActionResult
	if err := workflow.ExecuteActivity(actx, call.Name, call.Input).Get(actx, &out); err != nil {
		return nil, translateActivityError(err)
	}
	return &out, nil
}

// RecordStepLog schedules the step log activity and blocks until the append
// is durable.
func (w *temporalWorkflowContext) RecordStepLog(call engine.StepLogCall) error {
	if call.Name == "" {
		return fmt.Errorf("temporal engine: step log activity name is required")
	}
	if call.Input == nil {
		return fmt.Errorf("temporal engine: step log input is required")
	}
	actx := workflow.WithActivityOptions(w.ctx, w.activityOptionsFor(call.Name, call.Options))
	return translateActivityError(workflow.ExecuteActivity(actx, call.Name, call.Input).Get(actx, nil))
}

// PublishOutcome schedules the outcome activity and blocks until the
// execution record is closed. It runs on a disconnected context so the close
// still lands when the workflow itself was canceled.
func (w *temporalWorkflowContext) PublishOutcome(call engine.OutcomeCall) error {
	if call.Name == "" {
		return fmt.Errorf("temporal engine: outcome activity name is required")
	}
	if call.Input == nil {
		return fmt.Errorf("temporal engine: outcome input is required")
	}
	dctx, cancel := workflow.NewDisconnectedContext(w.ctx)
	defer cancel()
	actx := workflow.WithActivityOptions(dctx, w.activityOptionsFor(call.Name, call.Options))
	return workflow.ExecuteActivity(actx, call.Name, call.Input).Get(actx, nil)
}

// activityOptionsFor resolves the effective activity options for a call:
// per-call overrides win over registration defaults, which win over engine
// defaults.
func (w *temporalWorkflowContext) activityOptionsFor(name string, override engine.ActivityOptions) workflow.ActivityOptions {
	defaults := w.engine.activityDefaultsFor(name)

	queue := defaults.Queue
	if override.Queue != "" {
		queue = override.Queue
	}
	if queue == "" {
		queue = w.engine.defaultQueue
	}

	timeout := defaults.Timeout
	if override.Timeout > 0 {
		timeout = override.Timeout
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	retry := mergeRetryPolicies(defaults.RetryPolicy, override.RetryPolicy)

	opts := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		TaskQueue:           queue,
	}
	if rp := convertRetryPolicy(retry); rp != nil {
		opts.RetryPolicy = rp
	}
	return opts
}

// translateActivityError maps Temporal cancellation errors onto the engine
// sentinel so workflow handlers stay engine-agnostic.
func translateActivityError(err error) error {
	if err == nil {
		return nil
	}
	if temporal.IsCanceledError(err) {
		return fmt.Errorf("%w: %w", engine.ErrRunCanceled, err)
	}
	return err
}

// mergeRetryPolicies overlays non-zero override fields on the base policy.
func mergeRetryPolicies(base, override engine.RetryPolicy) engine.RetryPolicy {
	merged := base
	if override.MaxAttempts > 0 {
		merged.MaxAttempts = override.MaxAttempts
	}
	if override.InitialInterval > 0 {
		merged.InitialInterval = override.InitialInterval
	}
	if override.MaxInterval > 0 {
		merged.MaxInterval = override.MaxInterval
	}
	if override.BackoffCoefficient > 0 {
		merged.BackoffCoefficient = override.BackoffCoefficient
	}
	return merged
}

// convertRetryPolicy maps the engine retry policy to Temporal's. It returns
// nil for a zero-valued policy so Temporal applies its own defaults.
func convertRetryPolicy(rp engine.RetryPolicy) *temporal.RetryPolicy {
	if rp.MaxAttempts == 0 && rp.InitialInterval == 0 && rp.MaxInterval == 0 && rp.BackoffCoefficient == 0 {
		return nil
	}
	policy := &temporal.RetryPolicy{}
	if rp.MaxAttempts > 0 {
		policy.MaximumAttempts = int32(rp.MaxAttempts)
	}
	if rp.InitialInterval > 0 {
		policy.InitialInterval = rp.InitialInterval
	}
	if rp.MaxInterval > 0 {
		policy.MaximumInterval = rp.MaxInterval
	}
	if rp.BackoffCoefficient > 0 {
		policy.BackoffCoefficient = rp.BackoffCoefficient
	}
	return policy
}
