package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowplane/flowplane/catalog"
)

type actionListResponse struct {
	Actions []*catalog.Action `json:"actions"`
	Total   int               `json:"total"`
	Skip    int               `json:"skip"`
	Limit   int               `json:"limit"`
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	skip, limit := pagination(r, 100)
	f := catalog.Filter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		Skip:     skip,
		Limit:    limit,
	}
	actions, total, err := s.actions.ListActions(ctx, f)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if actions == nil {
		actions = []*catalog.Action{}
	}
	respond(ctx, w, http.StatusOK, actionListResponse{
		Actions: actions,
		Total:   total,
		Skip:    skip,
		Limit:   limit,
	})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.actions.GetAction(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respond(ctx, w, http.StatusOK, a)
}
