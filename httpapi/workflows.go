package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/workflow"
)

type (
	workflowCreateRequest struct {
		Name        string               `json:"name" validate:"required"`
		Description string               `json:"description"`
		Config      *workflow.Definition `json:"config" validate:"required"`
	}

	workflowUpdateRequest struct {
		Name        *string              `json:"name"`
		Description *string              `json:"description"`
		Config      *workflow.Definition `json:"config"`
	}

	workflowResponse struct {
		ID          string              `json:"id"`
		Name        string              `json:"name"`
		Description string              `json:"description"`
		Version     int                 `json:"version"`
		IsActive    bool                `json:"is_active"`
		Config      workflow.Definition `json:"config"`
		CreatedBy   string              `json:"created_by"`
		CreatedAt   time.Time           `json:"created_at"`
		UpdatedAt   time.Time           `json:"updated_at"`
	}

	workflowListResponse struct {
		Workflows []workflowResponse `json:"workflows"`
		Total     int                `json:"total"`
		Skip      int                `json:"skip"`
		Limit     int                `json:"limit"`
	}

	executeRequest struct {
		Inputs map[string]any `json:"inputs"`
	}

	executeResponse struct {
		ExecutionID       string `json:"execution_id"`
		RuntimeWorkflowID string `json:"runtime_workflow_id"`
		Status            string `json:"status"`
		Message           string `json:"message"`
	}

	suggestMetadataRequest struct {
		Nodes []workflow.Node `json:"nodes"`
		Edges []workflow.Edge `json:"edges"`
	}

	suggestMetadataResponse struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
)

func workflowResponseFrom(rec *workflow.Record) workflowResponse {
	return workflowResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Version:     rec.Version,
		IsActive:    rec.IsActive,
		Config:      rec.Config,
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	skip, limit := pagination(r, 50)
	records, total, err := s.workflows.ListWorkflows(ctx, skip, limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	out := make([]workflowResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, workflowResponseFrom(rec))
	}
	respond(ctx, w, http.StatusOK, workflowListResponse{
		Workflows: out,
		Total:     total,
		Skip:      skip,
		Limit:     limit,
	})
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req workflowCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(ctx, w, http.StatusBadRequest, validationDetails(err))
		return
	}

	idx, err := s.actionIndex(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if ok, errs := workflow.Validate(*req.Config, idx); !ok {
		respondDetail(ctx, w, http.StatusBadRequest, errs)
		return
	}

	now := time.Now().UTC()
	rec := &workflow.Record{
		Name:        req.Name,
		Description: req.Description,
		Version:     1,
		IsActive:    true,
		Config:      *req.Config,
		CreatedBy:   userFrom(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.workflows.InsertWorkflow(ctx, rec); err != nil {
		respondError(ctx, w, err)
		return
	}
	log.Printf(ctx, "created workflow %s %q", rec.ID, rec.Name)
	respond(ctx, w, http.StatusCreated, workflowResponseFrom(rec))
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := s.workflows.GetWorkflow(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respond(ctx, w, http.StatusOK, workflowResponseFrom(rec))
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req workflowUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(ctx, w, http.StatusBadRequest, validationDetails(err))
		return
	}

	if req.Config != nil {
		idx, err := s.actionIndex(ctx)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		if ok, errs := workflow.Validate(*req.Config, idx); !ok {
			respondDetail(ctx, w, http.StatusBadRequest, errs)
			return
		}
	}

	rec, err := s.workflows.UpdateWorkflow(ctx, chi.URLParam(r, "id"), workflow.Patch{
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	log.Printf(ctx, "updated workflow %s to version %d", rec.ID, rec.Version)
	respond(ctx, w, http.StatusOK, workflowResponseFrom(rec))
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := s.workflows.DeleteWorkflow(ctx, id); err != nil {
		respondError(ctx, w, err)
		return
	}
	log.Printf(ctx, "deleted workflow %s", id)
	respond(ctx, w, http.StatusOK, messageResponse{Message: "Workflow deleted successfully"})
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req executeRequest
	// An empty body means no inputs.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondDetail(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))
		return
	}

	ex, err := s.runs.Start(ctx, chi.URLParam(r, "id"), req.Inputs)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			respondDetail(ctx, w, http.StatusNotFound, "Workflow not found")
			return
		}
		log.Errorf(ctx, err, "starting workflow")
		respondDetail(ctx, w, http.StatusInternalServerError, fmt.Sprintf("Failed to start workflow: %s", err))
		return
	}
	respond(ctx, w, http.StatusOK, executeResponse{
		ExecutionID:       ex.ID,
		RuntimeWorkflowID: ex.RuntimeWorkflowID,
		Status:            ex.Status,
		Message:           "Workflow execution started",
	})
}

func (s *Server) handleSuggestMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req suggestMetadataRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(ctx, w, http.StatusBadRequest, validationDetails(err))
		return
	}
	if len(req.Nodes) == 0 {
		respondDetail(ctx, w, http.StatusBadRequest, "Workflow must have at least one node")
		return
	}

	title, description := s.assistant.SuggestMetadata(ctx, workflow.Definition{
		Nodes: req.Nodes,
		Edges: req.Edges,
	})
	respond(ctx, w, http.StatusOK, suggestMetadataResponse{Title: title, Description: description})
}
