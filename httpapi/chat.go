package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/actionsvc"
	"github.com/flowplane/flowplane/agent"
)

type (
	chatRequest struct {
		Message   string `json:"message" validate:"required"`
		SessionID string `json:"session_id"`
	}

	chatResponse struct {
		SessionID     string          `json:"session_id"`
		Response      string          `json:"response"`
		WorkflowDraft map[string]any  `json:"workflow_draft"`
		Messages      []agent.Message `json:"messages"`
	}

	sessionListResponse struct {
		Sessions []*agent.Session `json:"sessions"`
		Total    int              `json:"total"`
		Skip     int              `json:"skip"`
		Limit    int              `json:"limit"`
	}
)

// handleChat runs one turn of the conversational builder: resolve or create
// the session, let the agent process the message against the active catalog,
// enrich a freshly drafted graph with catalogue metadata and persist the
// session before replying.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(ctx, w, http.StatusBadRequest, validationDetails(err))
		return
	}

	var sess *agent.Session
	if req.SessionID != "" {
		var err error
		sess, err = s.sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
	} else {
		sess = &agent.Session{
			Status:        agent.SessionActive,
			Messages:      []agent.Message{},
			WorkflowDraft: map[string]any{},
		}
		if err := s.sessions.InsertSession(ctx, sess); err != nil {
			respondError(ctx, w, err)
			return
		}
		log.Printf(ctx, "opened conversation session %s", sess.ID)
	}

	idx, err := s.actionIndex(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	turn := s.assistant.ProcessTurn(ctx, req.Message, sess.Messages, sess.WorkflowDraft, idx)

	// Drafted nodes are annotated from the external catalogue so the canvas
	// can render them. Turns that leave the draft untouched skip the fetch.
	if s.catalog != nil && draftChanged(turn.Intent) && len(draftNodes(turn.Draft)) > 0 {
		enrichDraft(ctx, turn.Draft, s.catalog.BuildLookup(ctx))
	}

	sess.Messages = turn.Messages
	sess.WorkflowDraft = turn.Draft
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		log.Errorf(ctx, err, "persisting conversation session %s", sess.ID)
		respondDetail(ctx, w, http.StatusInternalServerError, fmt.Sprintf("Failed to process message: %s", err))
		return
	}

	respond(ctx, w, http.StatusOK, chatResponse{
		SessionID:     sess.ID,
		Response:      turn.Response,
		WorkflowDraft: sess.WorkflowDraft,
		Messages:      sess.Messages,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	skip, limit := pagination(r, 50)
	sessions, total, err := s.sessions.ListSessions(ctx, skip, limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if sessions == nil {
		sessions = []*agent.Session{}
	}
	respond(ctx, w, http.StatusOK, sessionListResponse{
		Sessions: sessions,
		Total:    total,
		Skip:     skip,
		Limit:    limit,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.sessions.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respond(ctx, w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := s.sessions.AbandonSession(ctx, id); err != nil {
		respondError(ctx, w, err)
		return
	}
	log.Printf(ctx, "abandoned conversation session %s", id)
	respond(ctx, w, http.StatusOK, messageResponse{Message: "Conversation session deleted successfully"})
}

// draftChanged reports whether a turn intent rebuilt the draft. Only those
// turns carry model-fresh nodes worth enriching.
func draftChanged(intent string) bool {
	return intent == agent.IntentCreate || intent == agent.IntentModify
}

func draftNodes(draft map[string]any) []any {
	nodes, _ := draft["nodes"].([]any)
	return nodes
}

// enrichDraft annotates the draft's known action nodes with catalogue
// metadata: the upstream action id, the domain and a display label. Unknown
// actions are left untouched.
func enrichDraft(ctx context.Context, draft map[string]any, lookup map[string]actionsvc.CatalogAction) {
	for _, n := range draftNodes(draft) {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		data, ok := node["data"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := data["action_name"].(string)
		if name == "" {
			continue
		}
		entry, ok := lookup[name]
		if !ok {
			log.Warnf(ctx, "draft references action %q missing from the external catalogue", name)
			continue
		}
		if entry.ID != nil {
			data["action_id"] = entry.ID
		}
		if entry.Domain != "" {
			data["domain"] = entry.Domain
		}
		if label, _ := data["label"].(string); label == "" {
			data["label"] = entry.DisplayName
		}
	}
}
