package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/runs"
)

func TestAppendStepLogAssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	entry := &runs.StepLog{
		ExecutionID: "exec-1",
		StepName:    "n1",
		ActionName:  "fetch_load_details",
		Status:      runs.StepStatusSuccess,
		Inputs:      map[string]any{"load_id": "L-100"},
		Outputs:     map[string]any{"status": "In Transit"},
	}
	require.NoError(t, cl.AppendStepLog(context.Background(), entry))
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.CreatedAt.IsZero())
}

func TestAppendStepLogValidates(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	require.EqualError(t, cl.AppendStepLog(context.Background(), nil), "step log is required")
	require.EqualError(t, cl.AppendStepLog(context.Background(), &runs.StepLog{}), "execution id is required")
}

func TestListStepLogsKeepsAppendOrder(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	steps := []string{"n1", "n2", "n3"}
	for _, step := range steps {
		require.NoError(t, cl.AppendStepLog(context.Background(), &runs.StepLog{
			ExecutionID: "exec-1",
			StepName:    step,
			Status:      runs.StepStatusSuccess,
		}))
	}
	require.NoError(t, cl.AppendStepLog(context.Background(), &runs.StepLog{
		ExecutionID: "exec-2",
		StepName:    "other",
		Status:      runs.StepStatusFailed,
		Error:       "boom",
	}))

	logs, err := cl.ListStepLogs(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i, entry := range logs {
		require.Equal(t, steps[i], entry.StepName)
		require.Equal(t, "exec-1", entry.ExecutionID)
	}

	other, err := cl.ListStepLogs(context.Background(), "exec-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, "boom", other[0].Error)
}

func TestListStepLogsEmpty(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	logs, err := cl.ListStepLogs(context.Background(), "exec-none")
	require.NoError(t, err)
	require.Empty(t, logs)

	_, err = cl.ListStepLogs(context.Background(), "")
	require.EqualError(t, err, "execution id is required")
}
