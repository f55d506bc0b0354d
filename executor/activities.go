package executor

import (
	"context"

	"goa.design/clue/log"

	"github.com/flowplane/flowplane/actionsvc"
	"github.com/flowplane/flowplane/engine"
	"github.com/flowplane/flowplane/runs"
)

type (
	// ActionInvoker calls a named action on the external action service and
	// reports the outcome as a value.
	ActionInvoker interface {
		Invoke(ctx context.Context, actionName string, config map[string]any) *actionsvc.Result
	}

	// ExecutionWriter persists per-step logs and the terminal outcome of an
	// execution.
	ExecutionWriter interface {
		AppendStepLog(ctx context.Context, entry *runs.StepLog) error
		CloseExecution(ctx context.Context, executionID, status string, outputs map[string]any, errMsg string) error
	}

	// Activities bundles the worker-side activity handlers with their
	// dependencies. All handlers run outside the deterministic workflow
	// thread and are free to perform I/O.
	Activities struct {
		invoker ActionInvoker
		store   ExecutionWriter
	}
)

// NewActivities returns the activity handlers registered by Register.
func NewActivities(invoker ActionInvoker, store ExecutionWriter) *Activities {
	return &Activities{invoker: invoker, store: store}
}

// ExecuteAction invokes the named action over HTTP and appends the step log
// for the node. An action that fails is reported in the result, never as an
// activity error, so the workflow keeps executing subsequent nodes; activity
// errors are reserved for infrastructure problems the retry policy should
// see.
func (a *Activities) ExecuteAction(ctx context.Context, in *engine.ActionInput) (*engine.ActionResult, error) {
	log.Debugf(ctx, "executing action %q for step %s", in.ActionName, in.StepName)

	var res *actionsvc.Result
	if in.ActionName == "" {
		res = &actionsvc.Result{Status: actionsvc.StatusFailed, Error: "action node is missing an action name"}
	} else {
		res = a.invoker.Invoke(ctx, in.ActionName, in.Config)
	}

	stepStatus := runs.StepStatusSuccess
	if res.Status != actionsvc.StatusSuccess {
		stepStatus = runs.StepStatusFailed
	}
	entry := &runs.StepLog{
		ExecutionID: in.ExecutionID,
		StepName:    in.StepName,
		ActionName:  in.ActionName,
		Status:      stepStatus,
		Inputs:      in.Config,
		Outputs:     res.Data,
		Error:       res.Error,
	}
	if err := a.store.AppendStepLog(ctx, entry); err != nil {
		// The invocation already happened; losing the log line must not
		// trigger a re-invocation through the retry policy.
		log.Errorf(ctx, err, "appending step log for execution %s step %s", in.ExecutionID, in.StepName)
	}

	return &engine.ActionResult{
		Status:     res.Status,
		Data:       res.Data,
		Error:      res.Error,
		ActionName: in.ActionName,
	}, nil
}

// AppendStepLog persists a step log emitted by the workflow for non-action
// nodes.
func (a *Activities) AppendStepLog(ctx context.Context, in *engine.StepLogInput) error {
	return a.store.AppendStepLog(ctx, &runs.StepLog{
		ExecutionID: in.ExecutionID,
		StepName:    in.StepName,
		ActionName:  in.ActionName,
		Status:      in.Status,
		Inputs:      in.Inputs,
		Outputs:     in.Outputs,
		Error:       in.Error,
	})
}

// CloseExecution records the terminal status, outputs and error of an
// execution.
func (a *Activities) CloseExecution(ctx context.Context, in *engine.OutcomeInput) error {
	log.Debugf(ctx, "closing execution %s with status %s", in.ExecutionID, in.Status)
	return a.store.CloseExecution(ctx, in.ExecutionID, in.Status, in.Outputs, in.Error)
}
