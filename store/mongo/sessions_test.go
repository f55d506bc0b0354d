package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/agent"
)

func insertTestSession(t *testing.T, cl *testClient, status string, updatedAt time.Time) *agent.Session {
	t.Helper()
	sess := &agent.Session{
		Status:        status,
		Messages:      []agent.Message{},
		WorkflowDraft: map[string]any{},
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
	require.NoError(t, cl.InsertSession(context.Background(), sess))
	return sess
}

func TestInsertAndGetSession(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := &agent.Session{
		Status: agent.SessionActive,
		Messages: []agent.Message{
			{Role: "user", Content: "build me a workflow", Timestamp: now},
		},
		WorkflowDraft: map[string]any{"nodes": []any{}},
	}
	require.NoError(t, cl.InsertSession(context.Background(), sess))
	require.NotEmpty(t, sess.ID)
	require.False(t, sess.CreatedAt.IsZero())
	require.False(t, sess.UpdatedAt.IsZero())

	got, err := cl.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, agent.SessionActive, got.Status)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "build me a workflow", got.Messages[0].Content)
	require.Equal(t, map[string]any{"nodes": []any{}}, got.WorkflowDraft)
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	_, err := cl.GetSession(context.Background(), testOID(3).Hex())
	require.ErrorIs(t, err, agent.ErrSessionNotFound)

	_, err = cl.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, agent.ErrSessionNotFound)
}

func TestUpdateSessionReplacesConversation(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	sess := insertTestSession(t, cl, agent.SessionActive, time.Now().UTC())

	sess.Messages = append(sess.Messages,
		agent.Message{Role: "user", Content: "email the carrier", Timestamp: time.Now().UTC()},
		agent.Message{Role: "assistant", Content: "I've created a workflow with 2 steps.", Timestamp: time.Now().UTC()},
	)
	sess.WorkflowDraft = map[string]any{"nodes": []any{map[string]any{"id": "n1"}}}
	require.NoError(t, cl.UpdateSession(context.Background(), sess))

	got, err := cl.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "assistant", got.Messages[1].Role)
	require.Contains(t, got.WorkflowDraft, "nodes")

	missing := &agent.Session{ID: testOID(50).Hex(), Status: agent.SessionActive}
	require.ErrorIs(t, cl.UpdateSession(context.Background(), missing), agent.ErrSessionNotFound)
}

func TestListSessionsReturnsActiveOnly(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	base := time.Now().UTC().Truncate(time.Second)
	older := insertTestSession(t, cl, agent.SessionActive, base.Add(-time.Hour))
	newer := insertTestSession(t, cl, agent.SessionActive, base)
	insertTestSession(t, cl, agent.SessionAbandoned, base.Add(time.Hour))

	listed, total, err := cl.ListSessions(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, listed, 2)
	require.Equal(t, newer.ID, listed[0].ID)
	require.Equal(t, older.ID, listed[1].ID)

	page, total, err := cl.ListSessions(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, page, 1)
	require.Equal(t, older.ID, page[0].ID)
}

func TestAbandonSession(t *testing.T) {
	t.Parallel()

	cl := mustNewTestClient(t)
	sess := insertTestSession(t, cl, agent.SessionActive, time.Now().UTC())

	require.NoError(t, cl.AbandonSession(context.Background(), sess.ID))

	got, err := cl.GetSession(context.Background(), sess.ID)
	require.NoError(t, err, "abandoned sessions keep their record")
	require.Equal(t, agent.SessionAbandoned, got.Status)

	listed, total, err := cl.ListSessions(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Empty(t, listed)
	require.Zero(t, total)

	require.ErrorIs(t, cl.AbandonSession(context.Background(), testOID(60).Hex()), agent.ErrSessionNotFound)
}
