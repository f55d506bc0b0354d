package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/agent"
	"github.com/flowplane/flowplane/catalog"
	"github.com/flowplane/flowplane/runs"
	"github.com/flowplane/flowplane/workflow"
)

type (
	// detailResponse is the error envelope of the API: a single message, or
	// the accumulated list for validation failures.
	detailResponse struct {
		Detail any `json:"detail"`
	}

	// messageResponse carries the confirmation message of delete endpoints.
	messageResponse struct {
		Message string `json:"message"`
	}
)

var validate = validator.New()

func respond(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf(ctx, err, "encoding response")
	}
}

func respondDetail(ctx context.Context, w http.ResponseWriter, status int, detail any) {
	respond(ctx, w, status, detailResponse{Detail: detail})
}

// respondError maps domain errors onto the API taxonomy: not-found sentinels
// become 404s with their entity message, state conflicts become 400s with the
// observed state, anything else is a 500 with a short cause.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	var conflict *runs.StateConflictError
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		respondDetail(ctx, w, http.StatusNotFound, "Workflow not found")
	case errors.Is(err, runs.ErrNotFound):
		respondDetail(ctx, w, http.StatusNotFound, "Execution not found")
	case errors.Is(err, catalog.ErrNotFound):
		respondDetail(ctx, w, http.StatusNotFound, "Action not found")
	case errors.Is(err, agent.ErrSessionNotFound):
		respondDetail(ctx, w, http.StatusNotFound, "Conversation session not found")
	case errors.As(err, &conflict):
		respondDetail(ctx, w, http.StatusBadRequest, conflict.Error())
	default:
		log.Errorf(ctx, err, "request failed")
		respondDetail(ctx, w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON decodes the request body into dst and applies its declared
// validation tags.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %s", err)
	}
	return validate.Struct(dst)
}

// validationDetails renders a decode or validation failure as the detail
// list of a 400 response.
func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, len(verrs))
	for i, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			out[i] = fmt.Sprintf("%s is required", field)
		} else {
			out[i] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return out
}

// pagination reads the skip and limit query parameters, clamping skip at
// zero and limit to [1, maxPageSize] with def as the fallback.
func pagination(r *http.Request, def int) (skip, limit int) {
	skip = intQuery(r, "skip", 0)
	if skip < 0 {
		skip = 0
	}
	limit = intQuery(r, "limit", def)
	if limit < 1 {
		limit = def
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return skip, limit
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
