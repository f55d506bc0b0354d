package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowplane/flowplane/engine"
	"github.com/flowplane/flowplane/runs"
	"github.com/flowplane/flowplane/workflow"
)

// Engine registration names. They are wire-visible identifiers recorded in
// workflow histories, so the worker and the run service must agree on them.
const (
	WorkflowName = "DynamicWorkflow"

	ActionActivityName  = "execute_action"
	StepLogActivityName = "append_step_log"
	OutcomeActivityName = "close_execution"

	// DefaultTaskQueue is the queue the worker subscribes to unless
	// configured otherwise.
	DefaultTaskQueue = "workflow-builder-queue"
)

// Register wires the executor workflow and its activities into eng. The
// worker binary calls it once at startup.
func Register(ctx context.Context, eng engine.Engine, acts *Activities) error {
	def := engine.WorkflowDefinition{
		Name:      WorkflowName,
		TaskQueue: DefaultTaskQueue,
		Handler:   Run,
	}
	if err := eng.RegisterWorkflow(ctx, def); err != nil {
		return err
	}
	if err := eng.RegisterActionActivity(ctx, ActionActivityName, actionActivityOptions(), acts.ExecuteAction); err != nil {
		return err
	}
	if err := eng.RegisterStepLogActivity(ctx, StepLogActivityName, recordActivityOptions(), acts.AppendStepLog); err != nil {
		return err
	}
	return eng.RegisterOutcomeActivity(ctx, OutcomeActivityName, recordActivityOptions(), acts.CloseExecution)
}

// Run executes a workflow definition node by node in topological order. It is
// the deterministic workflow body: every side effect goes through an activity.
//
// Per-node action failures do not stop the run. The failure is recorded and
// execution continues so independent branches still complete; the terminal
// outcome is FAILED and names the first failed node.
func Run(wctx engine.WorkflowContext, in *engine.RunInput) (*engine.RunOutput, error) {
	logger := wctx.Logger()
	logger.Info("starting dynamic workflow", "execution_id", in.ExecutionID, "nodes", len(in.Definition.Nodes))

	state := NewState(in.Inputs)
	results := state["results"].(map[string]any)

	order, complete := workflow.Order(in.Definition)
	if !complete {
		logger.Warn("not all nodes could be ordered, possible cycle", "execution_id", in.ExecutionID)
	}

	failures := []string{}
	for _, node := range order {
		logger.Info("executing node", "node_id", node.ID, "type", node.Type)

		switch node.Type {
		case workflow.NodeTypeAction:
			res, err := invokeAction(wctx, in, node, state)
			if err != nil {
				return nil, abortRun(wctx, in, results, node.ID, err)
			}
			results[node.ID] = actionResultState(res)
			if res.Status != engine.ActionStatusSuccess {
				failures = append(failures, fmt.Sprintf("node %s failed: %s", node.ID, res.Error))
			}

		case workflow.NodeTypeCondition:
			outcome := EvalCondition(node.Condition(), state)
			results[node.ID] = outcome
			err := recordStep(wctx, in, &engine.StepLogInput{
				ExecutionID: in.ExecutionID,
				StepName:    node.ID,
				Status:      runs.StepStatusSuccess,
				Inputs:      map[string]any{"condition": node.Condition()},
				Outputs:     map[string]any{"result": outcome},
			})
			if err != nil {
				return nil, abortRun(wctx, in, results, node.ID, err)
			}

		case workflow.NodeTypeLoop:
			items := loopItems(wctx, node, state)
			results[node.ID] = items
			err := recordStep(wctx, in, &engine.StepLogInput{
				ExecutionID: in.ExecutionID,
				StepName:    node.ID,
				Status:      runs.StepStatusSuccess,
				Inputs:      map[string]any{"collection": node.Collection()},
				Outputs:     map[string]any{"items": items},
			})
			if err != nil {
				return nil, abortRun(wctx, in, results, node.ID, err)
			}

		default:
			err := recordStep(wctx, in, &engine.StepLogInput{
				ExecutionID: in.ExecutionID,
				StepName:    node.ID,
				Status:      runs.StepStatusSkipped,
				Error:       fmt.Sprintf("unsupported node type %q", node.Type),
			})
			if err != nil {
				return nil, abortRun(wctx, in, results, node.ID, err)
			}
		}
	}

	status := runs.StatusCompleted
	var errMsg string
	if len(failures) > 0 {
		status = runs.StatusFailed
		errMsg = failures[0]
	}
	if err := publishOutcome(wctx, in, status, results, errMsg); err != nil {
		return nil, err
	}

	logger.Info("dynamic workflow closed", "execution_id", in.ExecutionID, "status", status)
	return &engine.RunOutput{Status: status, Data: results, Errors: failures}, nil
}

func actionActivityOptions() engine.ActivityOptions {
	return engine.ActivityOptions{
		Timeout: 5 * time.Minute,
		RetryPolicy: engine.RetryPolicy{
			MaxAttempts:        3,
			InitialInterval:    time.Second,
			MaxInterval:        10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	}
}

func recordActivityOptions() engine.ActivityOptions {
	return engine.ActivityOptions{
		Timeout: 30 * time.Second,
		RetryPolicy: engine.RetryPolicy{
			MaxAttempts:        3,
			InitialInterval:    time.Second,
			MaxInterval:        10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	}
}

func invokeAction(wctx engine.WorkflowContext, in *engine.RunInput, node workflow.Node, state map[string]any) (*engine.ActionResult, error) {
	return wctx.ExecuteAction(engine.ActionCall{
		Name: ActionActivityName,
		Input: &engine.ActionInput{
			ExecutionID: in.ExecutionID,
			StepName:    node.ID,
			ActionName:  node.ActionName(),
			Config:      InterpolateConfig(node.ConfigMap(), state),
			State:       state,
		},
	})
}

// actionResultState mirrors an activity result into the shared state map so
// later nodes can reference it through placeholders.
func actionResultState(res *engine.ActionResult) map[string]any {
	out := map[string]any{
		"status":      res.Status,
		"action_name": res.ActionName,
	}
	if res.Data != nil {
		out["data"] = res.Data
	}
	if res.Error != "" {
		out["error"] = res.Error
	}
	return out
}

// loopItems resolves the collection a loop node iterates over. Anything that
// is not a list, including a missing path, yields an empty collection.
func loopItems(wctx engine.WorkflowContext, node workflow.Node, state map[string]any) []any {
	v, _ := ValueAt(state, node.Collection())
	items, ok := v.([]any)
	if !ok {
		wctx.Logger().Warn("loop collection is not a list", "node_id", node.ID, "path", node.Collection())
		return []any{}
	}
	return items
}

// recordStep appends a step log for a non-action node. Log writes are best
// effort: a failed append does not fail the run, but cancellation still
// aborts it.
func recordStep(wctx engine.WorkflowContext, in *engine.RunInput, log *engine.StepLogInput) error {
	err := wctx.RecordStepLog(engine.StepLogCall{Name: StepLogActivityName, Input: log})
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrRunCanceled) {
		return err
	}
	wctx.Logger().Warn("step log append failed", "execution_id", in.ExecutionID, "step", log.StepName, "error", err)
	return nil
}

// abortRun closes the execution record after an unrecoverable engine error
// and hands the error back to the engine. Cancellation closes the record as
// CANCELLED, anything else as FAILED.
func abortRun(wctx engine.WorkflowContext, in *engine.RunInput, results map[string]any, nodeID string, cause error) error {
	status := runs.StatusFailed
	errMsg := fmt.Sprintf("node %s: %v", nodeID, cause)
	if errors.Is(cause, engine.ErrRunCanceled) {
		status = runs.StatusCancelled
		errMsg = ""
	}
	if err := publishOutcome(wctx, in, status, results, errMsg); err != nil {
		wctx.Logger().Error("outcome publish failed", "execution_id", in.ExecutionID, "error", err)
	}
	return cause
}

func publishOutcome(wctx engine.WorkflowContext, in *engine.RunInput, status string, outputs map[string]any, errMsg string) error {
	return wctx.PublishOutcome(engine.OutcomeCall{
		Name: OutcomeActivityName,
		Input: &engine.OutcomeInput{
			ExecutionID: in.ExecutionID,
			Status:      status,
			Outputs:     outputs,
			Error:       errMsg,
		},
	})
}
