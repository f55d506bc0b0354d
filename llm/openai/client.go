// Package openai adapts the go-openai chat client to the llm.Client
// interface. It speaks to both public OpenAI and Azure OpenAI deployments;
// the configured endpoint decides which API shape is used.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowplane/flowplane/llm"
)

// Generation defaults applied when Options leaves them zero.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// ChatClient captures the subset of the go-openai client used by the
// adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Options configures the adapter.
type Options struct {
	Client      ChatClient
	Model       string
	Temperature float32
	MaxTokens   int
}

// Config holds provider settings as they arrive from the environment.
type Config struct {
	APIKey     string
	Endpoint   string // Azure resource endpoint, empty for public OpenAI
	Deployment string // Azure deployment name, doubles as the model id
	APIVersion string
}

// Client implements llm.Client via the Chat Completions API.
type Client struct {
	chat        ChatClient
	model       string
	temperature float32
	maxTokens   int
}

// New builds an adapter from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		chat:        opts.Client,
		model:       opts.Model,
		temperature: temp,
		maxTokens:   maxTokens,
	}, nil
}

// NewFromConfig constructs the adapter with a real HTTP client. A non-empty
// endpoint selects the Azure API shape and routes every request to the
// configured deployment.
func NewFromConfig(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Deployment == "" {
		return nil, errors.New("model deployment is required")
	}
	var chat *openai.Client
	if cfg.Endpoint != "" {
		acfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			acfg.APIVersion = cfg.APIVersion
		}
		acfg.AzureModelMapperFunc = func(string) string { return cfg.Deployment }
		chat = openai.NewClientWithConfig(acfg)
	} else {
		chat = openai.NewClient(cfg.APIKey)
	}
	return New(Options{Client: chat, Model: cfg.Deployment})
}

// Chat sends the conversation and returns the first choice's content. The
// system prompt, when present, becomes the leading system message. Messages
// with unknown roles are dropped rather than guessed at.
func (c *Client) Chat(ctx context.Context, system string, msgs []llm.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = llm.RoleUser
		}
		switch role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		default:
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
