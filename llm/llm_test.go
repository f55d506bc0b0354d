package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJSONReply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "plain object",
			raw:  `{"message": "done"}`,
			want: map[string]any{"message": "done"},
		},
		{
			name: "json fence",
			raw:  "```json\n{\"nodes\": []}\n```",
			want: map[string]any{"nodes": []any{}},
		},
		{
			name: "bare fence",
			raw:  "```\n{\"ok\": true}\n```",
			want: map[string]any{"ok": true},
		},
		{
			name: "surrounding whitespace",
			raw:  "  \n {\"a\": 1} \n ",
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "prose reply",
			raw:  "Sure! What should the workflow do?",
			want: map[string]any{"content": "Sure! What should the workflow do?"},
		},
		{
			name: "array reply",
			raw:  `[1, 2, 3]`,
			want: map[string]any{"content": `[1, 2, 3]`},
		},
		{
			name: "truncated json",
			raw:  "```json\n{\"nodes\": [",
			want: map[string]any{"content": "```json\n{\"nodes\": ["},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ParseJSONReply(tc.raw))
		})
	}
}

type scriptedClient struct {
	reply  string
	err    error
	system string
	msgs   []Message
}

func (s *scriptedClient) Chat(_ context.Context, system string, msgs []Message) (string, error) {
	s.system = system
	s.msgs = msgs
	return s.reply, s.err
}

func TestCompleteJSONAppendsInstructionAndParses(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{reply: "```json\n{\"intent\": \"create\"}\n```"}
	msgs := []Message{{Role: RoleUser, Content: "build me a workflow"}}

	out, err := CompleteJSON(context.Background(), client, "You are a router.", msgs)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"intent": "create"}, out)

	require.Equal(t, "You are a router."+jsonInstruction, client.system)
	require.Equal(t, msgs, client.msgs)
}

func TestCompleteJSONPropagatesClientErrors(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{err: errors.New("rate limited")}
	_, err := CompleteJSON(context.Background(), client, "", nil)
	require.ErrorContains(t, err, "rate limited")
}

func TestCompleteJSONWrapsProseReplies(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{reply: "I cannot help with that."}
	out, err := CompleteJSON(context.Background(), client, "", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"content": "I cannot help with that."}, out)
}
