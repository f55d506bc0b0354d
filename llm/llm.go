// Package llm defines the chat completion client the synthesis agent talks
// to and the JSON envelope handling shared by every provider adapter.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Conversation roles. Providers that use different wire names translate in
// their adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces chat completions. The system prompt travels separately so
// callers can extend it without touching the conversation history.
type Client interface {
	Chat(ctx context.Context, system string, msgs []Message) (string, error)
}

// jsonInstruction is appended to the system prompt by CompleteJSON. Models
// follow it well enough that the fence stripping in ParseJSONReply covers
// the rest.
const jsonInstruction = "\n\nIMPORTANT: Always return your response as valid JSON."

// CompleteJSON runs a completion that is expected to return a JSON object.
// The reply is parsed leniently; a reply that cannot be parsed is wrapped as
// {"content": reply} so callers always get a map to inspect.
func CompleteJSON(ctx context.Context, c Client, system string, msgs []Message) (map[string]any, error) {
	reply, err := c.Chat(ctx, system+jsonInstruction, msgs)
	if err != nil {
		return nil, err
	}
	return ParseJSONReply(reply), nil
}

// ParseJSONReply extracts a JSON object from a model reply, tolerating
// markdown code fences around the payload. Anything that does not decode to
// an object comes back as {"content": raw}.
func ParseJSONReply(raw string) map[string]any {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &out); err != nil {
		return map[string]any{"content": raw}
	}
	return out
}
