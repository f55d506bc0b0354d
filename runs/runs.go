// Package runs owns workflow execution records: the Execution entity, its
// append-only step logs, and the service that starts, cancels, and
// reconciles runs against the durable engine.
package runs

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an execution id does not resolve.
var ErrNotFound = errors.New("execution not found")

// Execution statuses. Terminal statuses are absorbing: once a record reaches
// COMPLETED, FAILED, or CANCELLED it never moves again.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Step log statuses.
const (
	StepStatusSuccess = "SUCCESS"
	StepStatusFailed  = "FAILED"
	StepStatusSkipped = "SKIPPED"
)

// IsTerminal reports whether an execution status is absorbing.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type (
	// Execution is one durable run of a persisted workflow. Executions outlive
	// their workflow for audit, so WorkflowID is a weak reference.
	Execution struct {
		ID                string         `json:"id"`
		WorkflowID        string         `json:"workflow_id"`
		WorkflowName      string         `json:"workflow_name,omitempty"`
		RuntimeWorkflowID string         `json:"runtime_workflow_id"`
		RuntimeRunID      string         `json:"runtime_run_id,omitempty"`
		Status            string         `json:"status"`
		Inputs            map[string]any `json:"inputs"`
		Outputs           map[string]any `json:"outputs,omitempty"`
		Error             string         `json:"error,omitempty"`
		StartedAt         time.Time      `json:"started_at"`
		CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	}

	// StepLog is one per-node log line appended while an execution runs. Logs
	// belong to their execution and are deleted with it.
	StepLog struct {
		ID          string         `json:"id"`
		ExecutionID string         `json:"execution_id"`
		StepName    string         `json:"step_name"`
		ActionName  string         `json:"action_name,omitempty"`
		Status      string         `json:"status"`
		Inputs      map[string]any `json:"inputs,omitempty"`
		Outputs     map[string]any `json:"outputs,omitempty"`
		Error       string         `json:"error,omitempty"`
		CreatedAt   time.Time      `json:"created_at"`
	}

	// StateConflictError reports an operation attempted against an execution
	// in the wrong lifecycle state. The message is user-facing.
	StateConflictError struct {
		Op     string
		Status string
	}

	// ExecutionFilter narrows execution listings. Empty fields match
	// everything; Skip and Limit paginate.
	ExecutionFilter struct {
		WorkflowID string
		Status     string
		Skip       int
		Limit      int
	}
)

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("Cannot %s execution with status %s", e.Op, e.Status)
}
