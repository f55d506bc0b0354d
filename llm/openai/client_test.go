package openai_test

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/llm"
	llmopenai "github.com/flowplane/flowplane/llm/openai"
)

type mockChatClient struct {
	response openai.ChatCompletionResponse
	err      error
	captured openai.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (
	openai.ChatCompletionResponse, error) {
	m.captured = request
	return m.response, m.err
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}},
		},
	}
}

func TestChatSendsConversation(t *testing.T) {
	t.Parallel()

	mock := &mockChatClient{response: reply("here is your workflow")}
	client, err := llmopenai.New(llmopenai.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	out, err := client.Chat(context.Background(), "You build workflows.", []llm.Message{
		{Role: llm.RoleUser, Content: "make one"},
		{Role: llm.RoleAssistant, Content: "what should it do?"},
		{Role: llm.RoleUser, Content: "follow up with carriers"},
	})
	require.NoError(t, err)
	require.Equal(t, "here is your workflow", out)

	req := mock.captured
	require.Equal(t, "gpt-4o", req.Model)
	require.Equal(t, float32(llmopenai.DefaultTemperature), req.Temperature)
	require.Equal(t, llmopenai.DefaultMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 4)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Equal(t, "You build workflows.", req.Messages[0].Content)
	require.Equal(t, "follow up with carriers", req.Messages[3].Content)
}

func TestChatOmitsEmptySystemPrompt(t *testing.T) {
	t.Parallel()

	mock := &mockChatClient{response: reply("ok")}
	client, err := llmopenai.New(llmopenai.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), "", []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Len(t, mock.captured.Messages, 1)
	require.Equal(t, openai.ChatMessageRoleUser, mock.captured.Messages[0].Role)
}

func TestChatDropsUnknownRolesAndDefaultsEmptyToUser(t *testing.T) {
	t.Parallel()

	mock := &mockChatClient{response: reply("ok")}
	client, err := llmopenai.New(llmopenai.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), "", []llm.Message{
		{Role: "tool", Content: "ignored"},
		{Role: "", Content: "treated as user"},
	})
	require.NoError(t, err)
	require.Len(t, mock.captured.Messages, 1)
	require.Equal(t, openai.ChatMessageRoleUser, mock.captured.Messages[0].Role)
	require.Equal(t, "treated as user", mock.captured.Messages[0].Content)
}

func TestChatWrapsTransportErrors(t *testing.T) {
	t.Parallel()

	mock := &mockChatClient{err: errors.New("429 too many requests")}
	client, err := llmopenai.New(llmopenai.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), "", []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.ErrorContains(t, err, "chat completion")
	require.ErrorContains(t, err, "429")
}

func TestChatErrorsWithoutChoices(t *testing.T) {
	t.Parallel()

	mock := &mockChatClient{}
	client, err := llmopenai.New(llmopenai.Options{Client: mock, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), "", []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.ErrorContains(t, err, "no choices")
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	_, err := llmopenai.New(llmopenai.Options{Model: "gpt-4o"})
	require.Error(t, err)

	_, err = llmopenai.New(llmopenai.Options{Client: &mockChatClient{}})
	require.Error(t, err)
}

func TestNewFromConfigValidates(t *testing.T) {
	t.Parallel()

	_, err := llmopenai.NewFromConfig(llmopenai.Config{Deployment: "gpt-4o"})
	require.ErrorContains(t, err, "api key")

	_, err = llmopenai.NewFromConfig(llmopenai.Config{APIKey: "sk-test"})
	require.ErrorContains(t, err, "deployment")

	client, err := llmopenai.NewFromConfig(llmopenai.Config{
		APIKey:     "sk-test",
		Endpoint:   "https://example.openai.azure.com/",
		Deployment: "gpt-4o-workflows",
		APIVersion: "2024-02-01",
	})
	require.NoError(t, err)
	require.NotNil(t, client)
}
