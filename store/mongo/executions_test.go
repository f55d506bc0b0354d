package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/runs"
)

func insertTestExecution(t *testing.T, cl *testClient, workflowID, status string, startedAt time.Time) *runs.Execution {
	t.Helper()
	ex := &runs.Execution{
		WorkflowID:        workflowID,
		WorkflowName:      "Carrier follow up",
		RuntimeWorkflowID: "workflow-" + workflowID + "-" + startedAt.Format("150405.000000000"),
		Status:            status,
		Inputs:            map[string]any{"load_id": "L-100"},
		StartedAt:         startedAt,
	}
	require.NoError(t, cl.InsertExecution(context.Background(), ex))
	return ex
}

func TestInsertAndGetExecution(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	ex := insertTestExecution(t, cl, "wf-1", runs.StatusRunning, now)
	require.NotEmpty(t, ex.ID)

	got, err := cl.GetExecution(context.Background(), ex.ID)
	require.NoError(t, err)
	require.Equal(t, ex.ID, got.ID)
	require.Equal(t, "wf-1", got.WorkflowID)
	require.Equal(t, "Carrier follow up", got.WorkflowName)
	require.Equal(t, runs.StatusRunning, got.Status)
	require.Equal(t, map[string]any{"load_id": "L-100"}, got.Inputs)
	require.True(t, got.StartedAt.Equal(now))
	require.Nil(t, got.CompletedAt)
}

func TestInsertExecutionStampsStart(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	ex := &runs.Execution{
		WorkflowID:        "wf-1",
		RuntimeWorkflowID: "workflow-wf-1-abc",
		Status:            runs.StatusRunning,
	}
	require.NoError(t, cl.InsertExecution(context.Background(), ex))
	require.False(t, ex.StartedAt.IsZero())
}

func TestInsertExecutionValidates(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	require.EqualError(t, cl.InsertExecution(context.Background(), nil), "execution is required")
	require.EqualError(t, cl.InsertExecution(context.Background(), &runs.Execution{RuntimeWorkflowID: "x"}), "workflow id is required")
	require.EqualError(t, cl.InsertExecution(context.Background(), &runs.Execution{WorkflowID: "wf"}), "runtime workflow id is required")
}

func TestGetExecutionNotFound(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	_, err := cl.GetExecution(context.Background(), testOID(5).Hex())
	require.ErrorIs(t, err, runs.ErrNotFound)

	_, err = cl.GetExecution(context.Background(), "garbage")
	require.ErrorIs(t, err, runs.ErrNotFound)
}

func TestSetRuntimeRunID(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	ex := insertTestExecution(t, cl, "wf-1", runs.StatusRunning, time.Now().UTC())

	require.NoError(t, cl.SetRuntimeRunID(context.Background(), ex.ID, "run-abc"))

	got, err := cl.GetExecution(context.Background(), ex.ID)
	require.NoError(t, err)
	require.Equal(t, "run-abc", got.RuntimeRunID)

	require.ErrorIs(t, cl.SetRuntimeRunID(context.Background(), testOID(9).Hex(), "run-x"), runs.ErrNotFound)
}

func TestCloseExecutionSetsOutcome(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	ex := insertTestExecution(t, cl, "wf-1", runs.StatusRunning, time.Now().UTC())

	outputs := map[string]any{"n1": map[string]any{"status": "SUCCESS"}}
	require.NoError(t, cl.CloseExecution(context.Background(), ex.ID, runs.StatusCompleted, outputs, ""))

	got, err := cl.GetExecution(context.Background(), ex.ID)
	require.NoError(t, err)
	require.Equal(t, runs.StatusCompleted, got.Status)
	require.Equal(t, outputs, got.Outputs)
	require.Empty(t, got.Error)
	require.NotNil(t, got.CompletedAt)
}

func TestCloseExecutionRecordsError(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	ex := insertTestExecution(t, cl, "wf-1", runs.StatusRunning, time.Now().UTC())

	require.NoError(t, cl.CloseExecution(context.Background(), ex.ID, runs.StatusFailed, nil, "boom"))

	got, err := cl.GetExecution(context.Background(), ex.ID)
	require.NoError(t, err)
	require.Equal(t, runs.StatusFailed, got.Status)
	require.Equal(t, "boom", got.Error)
	require.Nil(t, got.Outputs)
}

func TestCloseExecutionLeavesTerminalRecords(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	ex := insertTestExecution(t, cl, "wf-1", runs.StatusRunning, time.Now().UTC())

	require.NoError(t, cl.CloseExecution(context.Background(), ex.ID, runs.StatusCancelled, nil, ""))
	require.NoError(t, cl.CloseExecution(context.Background(), ex.ID, runs.StatusCompleted, map[string]any{"late": true}, ""))

	got, err := cl.GetExecution(context.Background(), ex.ID)
	require.NoError(t, err)
	require.Equal(t, runs.StatusCancelled, got.Status, "first terminal status wins")
	require.Nil(t, got.Outputs)
}

func TestListExecutionsFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	base := time.Now().UTC().Truncate(time.Second)
	oldest := insertTestExecution(t, cl, "wf-1", runs.StatusCompleted, base.Add(-2*time.Hour))
	middle := insertTestExecution(t, cl, "wf-2", runs.StatusFailed, base.Add(-time.Hour))
	newest := insertTestExecution(t, cl, "wf-1", runs.StatusRunning, base)

	all, total, err := cl.ListExecutions(context.Background(), runs.ExecutionFilter{Limit: 50})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, all, 3)
	require.Equal(t, newest.ID, all[0].ID)
	require.Equal(t, middle.ID, all[1].ID)
	require.Equal(t, oldest.ID, all[2].ID)

	byWorkflow, total, err := cl.ListExecutions(context.Background(), runs.ExecutionFilter{WorkflowID: "wf-1", Limit: 50})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, byWorkflow, 2)
	require.Equal(t, newest.ID, byWorkflow[0].ID)
	require.Equal(t, oldest.ID, byWorkflow[1].ID)

	byStatus, total, err := cl.ListExecutions(context.Background(), runs.ExecutionFilter{Status: runs.StatusFailed, Limit: 50})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, byStatus, 1)
	require.Equal(t, middle.ID, byStatus[0].ID)

	page, total, err := cl.ListExecutions(context.Background(), runs.ExecutionFilter{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page, 1)
	require.Equal(t, middle.ID, page[0].ID)
}
