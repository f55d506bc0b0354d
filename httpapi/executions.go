package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/runs"
)

type (
	// executionDetailResponse is the single-execution shape: the record plus
	// its step logs in append order.
	executionDetailResponse struct {
		*runs.Execution
		Logs []*runs.StepLog `json:"logs"`
	}

	executionListResponse struct {
		Executions []*runs.Execution `json:"executions"`
		Total      int               `json:"total"`
		Skip       int               `json:"skip"`
		Limit      int               `json:"limit"`
	}

	executionCancelResponse struct {
		ExecutionID string `json:"execution_id"`
		Status      string `json:"status"`
		Message     string `json:"message"`
	}
)

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	skip, limit := pagination(r, 50)
	f := runs.ExecutionFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Status:     r.URL.Query().Get("status"),
		Skip:       skip,
		Limit:      limit,
	}
	executions, total, err := s.executions.ListExecutions(ctx, f)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if executions == nil {
		executions = []*runs.Execution{}
	}
	respond(ctx, w, http.StatusOK, executionListResponse{
		Executions: executions,
		Total:      total,
		Skip:       skip,
		Limit:      limit,
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ex, err := s.executions.GetExecution(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	s.respondExecutionDetail(ctx, w, ex)
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ex, err := s.runs.Cancel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		var conflict *runs.StateConflictError
		switch {
		case errors.Is(err, runs.ErrNotFound):
			respondDetail(ctx, w, http.StatusNotFound, "Execution not found")
		case errors.As(err, &conflict):
			respondDetail(ctx, w, http.StatusBadRequest, conflict.Error())
		default:
			log.Errorf(ctx, err, "cancelling execution")
			respondDetail(ctx, w, http.StatusInternalServerError, fmt.Sprintf("Failed to cancel execution: %s", err))
		}
		return
	}
	respond(ctx, w, http.StatusOK, executionCancelResponse{
		ExecutionID: ex.ID,
		Status:      ex.Status,
		Message:     "Execution cancelled successfully",
	})
}

func (s *Server) handleSyncExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ex, err := s.runs.Sync(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	s.respondExecutionDetail(ctx, w, ex)
}

// respondExecutionDetail attaches the step logs and writes the detail shape.
// Log listing failures degrade to an empty list so the record itself is
// still served.
func (s *Server) respondExecutionDetail(ctx context.Context, w http.ResponseWriter, ex *runs.Execution) {
	logs, err := s.executions.ListStepLogs(ctx, ex.ID)
	if err != nil {
		log.Warnf(ctx, "listing step logs for execution %s: %s", ex.ID, err)
	}
	if logs == nil {
		logs = []*runs.StepLog{}
	}
	respond(ctx, w, http.StatusOK, executionDetailResponse{Execution: ex, Logs: logs})
}
