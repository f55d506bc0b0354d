package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"goa.design/clue/log"
)

func loggerWithBuffer(t *testing.T, opts ...log.LogOption) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts = append([]log.LogOption{log.WithOutput(&buf), log.WithFormat(log.FormatJSON)}, opts...)
	ctx := log.Context(context.Background(), opts...)
	return NewLogger(ctx), &buf
}

func TestInfoEmitsMessageAndPairs(t *testing.T) {
	l, buf := loggerWithBuffer(t)

	l.Info("engine started", "task_queue", "workflow-builder-queue", "workers", 1)

	out := buf.String()
	require.Contains(t, out, `"msg":"engine started"`)
	require.Contains(t, out, `"task_queue":"workflow-builder-queue"`)
	require.Contains(t, out, `"workers":1`)
}

func TestDebugSuppressedWithoutDebugContext(t *testing.T) {
	l, buf := loggerWithBuffer(t)

	l.Debug("noisy detail")
	require.Empty(t, buf.String())
}

func TestDebugEmitsWhenEnabled(t *testing.T) {
	l, buf := loggerWithBuffer(t, log.WithDebug())

	l.Debug("noisy detail", "step", "n1")
	out := buf.String()
	require.Contains(t, out, `"msg":"noisy detail"`)
	require.Contains(t, out, `"step":"n1"`)
}

func TestWarnCarriesSeverity(t *testing.T) {
	l, buf := loggerWithBuffer(t)

	l.Warn("execution lagging", "execution_id", "ex-1")
	out := buf.String()
	require.Contains(t, out, `"severity":"warning"`)
	require.Contains(t, out, `"execution_id":"ex-1"`)
}

func TestErrorEmits(t *testing.T) {
	l, buf := loggerWithBuffer(t)

	l.Error("activity failed", "attempt", 3)
	out := buf.String()
	require.Contains(t, out, `"msg":"activity failed"`)
	require.Contains(t, out, `"attempt":3`)
}

func TestOddAndNonStringPairs(t *testing.T) {
	l, buf := loggerWithBuffer(t)

	l.Info("lossy", 42, "ignored", "tail")
	out := buf.String()
	require.Contains(t, out, `"msg":"lossy"`)
	require.Contains(t, out, `"tail":`)
	require.NotContains(t, out, "ignored")
}

func TestNewLoggerToleratesNilContext(t *testing.T) {
	l := NewLogger(nil)
	require.NotNil(t, l)
	l.Info("no sink configured")
}
