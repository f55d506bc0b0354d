// Package agent implements the conversational workflow builder: a bounded
// state machine that routes each user turn, drafts or reworks a workflow
// through the LLM, checks the draft shape and produces the reply.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/flowplane/flowplane/catalog"
	"github.com/flowplane/flowplane/llm"
)

// Intent tokens the router recognizes.
const (
	IntentCreate   = "create"
	IntentModify   = "modify"
	IntentClarify  = "clarify"
	IntentComplete = "complete"
)

// Turn is the outcome of processing one user message. Messages carries the
// full history including the new user and assistant entries; Draft is the
// draft after the turn, which for create and modify intents is whatever the
// model returned.
type Turn struct {
	Messages []Message
	Draft    map[string]any
	Response string
	Intent   string
}

// Agent runs the conversation state machine. It holds no per-conversation
// state; everything flows through ProcessTurn arguments.
type Agent struct {
	llm llm.Client
}

// New builds an Agent on the given completion client.
func New(client llm.Client) (*Agent, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: client}, nil
}

// ProcessTurn appends the user message to the history, routes the intent and
// produces the assistant reply. LLM failures never surface as errors: the
// turn degrades to a clarification request and the draft stays untouched.
func (a *Agent) ProcessTurn(ctx context.Context, message string, history []Message, draft map[string]any, actions catalog.Index) *Turn {
	now := time.Now().UTC()
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: llm.RoleUser, Content: message, Timestamp: now})

	if draft == nil {
		draft = map[string]any{}
	}

	intent := a.route(ctx, message, len(draft) > 0)
	response := ""
	switch intent {
	case IntentComplete:
		response = completeReply
	case IntentClarify:
		response = a.clarify(ctx, msgs)
	default:
		draft, response = a.draft(ctx, intent, message, draft, actions)
	}

	msgs = append(msgs, Message{Role: llm.RoleAssistant, Content: response, Timestamp: time.Now().UTC()})
	return &Turn{Messages: msgs, Draft: draft, Response: response, Intent: intent}
}

// route classifies the user message. Unknown replies and routing failures
// both land on create, the most common intent.
func (a *Agent) route(ctx context.Context, message string, draftExists bool) string {
	prompt := fmt.Sprintf("Current workflow draft exists: %t\n\nUser message: %s", draftExists, message)
	reply, err := a.llm.Chat(ctx, routerPrompt, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		log.Warnf(ctx, "intent routing failed, assuming create: %s", err)
		return IntentCreate
	}
	intent := strings.ToLower(strings.TrimSpace(reply))
	switch intent {
	case IntentCreate, IntentModify, IntentClarify, IntentComplete:
		return intent
	}
	log.Debugf(ctx, "unrecognized intent %q, assuming create", intent)
	return IntentCreate
}

// draft generates or reworks the workflow draft and picks the reply from the
// node count. The model's object replaces the draft wholesale; a reply that
// was not valid JSON arrives as {"content": ...} and counts as zero nodes.
func (a *Agent) draft(ctx context.Context, intent, message string, current map[string]any, actions catalog.Index) (map[string]any, string) {
	var system string
	if intent == IntentModify {
		serialized, err := json.MarshalIndent(current, "", "  ")
		if err != nil {
			serialized = []byte("{}")
		}
		system = fmt.Sprintf(modifyPromptFmt, serialized, message)
	} else {
		system = fmt.Sprintf(createPromptFmt, actions.Summary())
	}

	next, err := llm.CompleteJSON(ctx, a.llm, system, []llm.Message{{Role: llm.RoleUser, Content: message}})
	if err != nil {
		log.Warnf(ctx, "draft generation failed: %s", err)
		return current, needMoreInfoReply
	}

	if ok, reason := validateDraft(next); !ok {
		log.Debugf(ctx, "draft needs clarification: %s", reason)
	}

	n := nodeCount(next)
	if n == 0 {
		return next, needMoreInfoReply
	}
	return next, fmt.Sprintf(draftSummaryFmt, n)
}

// clarify asks the model for a follow-up question over the whole history.
func (a *Agent) clarify(ctx context.Context, history []Message) string {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	reply, err := a.llm.Chat(ctx, clarifyPrompt, msgs)
	if err != nil {
		log.Warnf(ctx, "clarification generation failed: %s", err)
		return needMoreInfoReply
	}
	return reply
}

// validateDraft applies the reduced structural check on a generated draft.
// Full graph validation happens when the draft is saved as a workflow; here
// only obviously unusable drafts are flagged.
func validateDraft(draft map[string]any) (bool, string) {
	switch n := nodeCount(draft); {
	case n == 0:
		return false, "no nodes generated"
	case n < 2:
		return false, "single node, likely incomplete"
	}
	return true, ""
}

func nodeCount(draft map[string]any) int {
	nodes, _ := draft["nodes"].([]any)
	return len(nodes)
}
