// Package httpapi exposes the control plane over HTTP: workflow CRUD and
// execution, execution inspection and cancellation, the action catalog and
// the conversational builder. Handlers are thin; domain behaviour lives in
// the workflow, runs, agent and catalog packages and reaches the API through
// the narrow interfaces declared here.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"goa.design/clue/debug"
	"goa.design/clue/health"
	"goa.design/clue/log"

	"github.com/flowplane/flowplane/actionsvc"
	"github.com/flowplane/flowplane/agent"
	"github.com/flowplane/flowplane/auth"
	"github.com/flowplane/flowplane/catalog"
	"github.com/flowplane/flowplane/runs"
	"github.com/flowplane/flowplane/workflow"
)

type (
	// WorkflowStore persists workflow records.
	WorkflowStore interface {
		InsertWorkflow(ctx context.Context, rec *workflow.Record) error
		GetWorkflow(ctx context.Context, id string) (*workflow.Record, error)
		UpdateWorkflow(ctx context.Context, id string, patch workflow.Patch) (*workflow.Record, error)
		DeleteWorkflow(ctx context.Context, id string) error
		ListWorkflows(ctx context.Context, skip, limit int) ([]*workflow.Record, int, error)
	}

	// ExecutionStore reads execution records and their step logs. Writes go
	// through the Launcher, never through the API directly.
	ExecutionStore interface {
		GetExecution(ctx context.Context, id string) (*runs.Execution, error)
		ListExecutions(ctx context.Context, f runs.ExecutionFilter) ([]*runs.Execution, int, error)
		ListStepLogs(ctx context.Context, executionID string) ([]*runs.StepLog, error)
	}

	// SessionStore persists conversation sessions.
	SessionStore interface {
		InsertSession(ctx context.Context, sess *agent.Session) error
		GetSession(ctx context.Context, id string) (*agent.Session, error)
		UpdateSession(ctx context.Context, sess *agent.Session) error
		ListSessions(ctx context.Context, skip, limit int) ([]*agent.Session, int, error)
		AbandonSession(ctx context.Context, id string) error
	}

	// ActionStore reads the action catalog.
	ActionStore interface {
		GetAction(ctx context.Context, id string) (*catalog.Action, error)
		ListActions(ctx context.Context, f catalog.Filter) ([]*catalog.Action, int, error)
	}

	// Launcher drives the execution lifecycle against the durable engine.
	// *runs.Service is the canonical implementation.
	Launcher interface {
		Start(ctx context.Context, workflowID string, inputs map[string]any) (*runs.Execution, error)
		Cancel(ctx context.Context, executionID string) (*runs.Execution, error)
		Sync(ctx context.Context, executionID string) (*runs.Execution, error)
	}

	// Assistant is the conversational surface behind the chat and metadata
	// endpoints. *agent.Agent is the canonical implementation.
	Assistant interface {
		ProcessTurn(ctx context.Context, message string, history []agent.Message, draft map[string]any, actions catalog.Index) *agent.Turn
		SuggestMetadata(ctx context.Context, def workflow.Definition) (string, string)
	}

	// CatalogDirectory resolves draft action names against the external
	// catalogue for node enrichment. *actionsvc.CatalogClient is the
	// canonical implementation.
	CatalogDirectory interface {
		BuildLookup(ctx context.Context) map[string]actionsvc.CatalogAction
	}

	// Options configures the API server. Catalog is optional; leaving it nil
	// disables draft node enrichment. Pingers feed the readiness check.
	Options struct {
		Workflows   WorkflowStore
		Executions  ExecutionStore
		Sessions    SessionStore
		Actions     ActionStore
		Runs        Launcher
		Assistant   Assistant
		Catalog     CatalogDirectory
		Auth        *auth.Authenticator
		Pingers     []health.Pinger
		CORSOrigins []string
		Debug       bool
	}

	// Server holds the handler dependencies and assembles the router.
	Server struct {
		workflows  WorkflowStore
		executions ExecutionStore
		sessions   SessionStore
		actions    ActionStore
		runs       Launcher
		assistant  Assistant
		catalog    CatalogDirectory
		auth       *auth.Authenticator
		pingers    []health.Pinger
		origins    []string
		debug      bool
		loginLimit *rate.Limiter
	}
)

// Login attempts are rate limited per process.
const (
	loginRatePerSecond = 5
	loginBurst         = 10
)

// maxPageSize caps the limit query parameter on every list endpoint.
const maxPageSize = 100

// New returns a Server wired to the given stores and services.
func New(opts Options) (*Server, error) {
	if opts.Workflows == nil || opts.Executions == nil || opts.Sessions == nil || opts.Actions == nil {
		return nil, errors.New("httpapi: all stores are required")
	}
	if opts.Runs == nil {
		return nil, errors.New("httpapi: run launcher is required")
	}
	if opts.Assistant == nil {
		return nil, errors.New("httpapi: assistant is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("httpapi: authenticator is required")
	}
	return &Server{
		workflows:  opts.Workflows,
		executions: opts.Executions,
		sessions:   opts.Sessions,
		actions:    opts.Actions,
		runs:       opts.Runs,
		assistant:  opts.Assistant,
		catalog:    opts.Catalog,
		auth:       opts.Auth,
		pingers:    opts.Pingers,
		origins:    opts.CORSOrigins,
		debug:      opts.Debug,
		loginLimit: rate.NewLimiter(rate.Limit(loginRatePerSecond), loginBurst),
	}, nil
}

// Handler assembles the router. logCtx carries the process logger; request
// logs and debug toggles derive from it.
func (s *Server) Handler(logCtx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(s.corsOptions()))
	r.Use(log.HTTP(logCtx))
	if s.debug {
		r.Use(debug.HTTP())
		debug.MountDebugLogEnabler(debugMux{r})
		debug.MountPprofHandlers(debugMux{r})
	}

	r.Get("/healthz", health.Handler(health.NewChecker(s.pingers...)))
	r.Get("/livez", health.Handler(health.NewChecker()))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/me", s.handleMe)

			r.Get("/workflows", s.handleListWorkflows)
			r.Post("/workflows", s.handleCreateWorkflow)
			r.Post("/workflows/suggest-metadata", s.handleSuggestMetadata)
			r.Get("/workflows/{id}", s.handleGetWorkflow)
			r.Put("/workflows/{id}", s.handleUpdateWorkflow)
			r.Delete("/workflows/{id}", s.handleDeleteWorkflow)
			r.Post("/workflows/{id}/execute", s.handleExecuteWorkflow)

			r.Get("/executions", s.handleListExecutions)
			r.Get("/executions/{id}", s.handleGetExecution)
			r.Post("/executions/{id}/cancel", s.handleCancelExecution)
			r.Post("/executions/{id}/sync", s.handleSyncExecution)

			r.Get("/actions", s.handleListActions)
			r.Get("/actions/{id}", s.handleGetAction)

			r.Post("/chat", s.handleChat)
			r.Get("/chat/sessions", s.handleListSessions)
			r.Get("/chat/sessions/{id}", s.handleGetSession)
			r.Delete("/chat/sessions/{id}", s.handleDeleteSession)
		})
	})

	return r
}

func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}
	return opts
}

// actionIndex loads the active catalog the way the validator and the agent
// consume it.
func (s *Server) actionIndex(ctx context.Context) (catalog.Index, error) {
	actions, _, err := s.actions.ListActions(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}
	return catalog.NewIndex(actions), nil
}

// debugMux adapts the chi router to the mux shape the clue debug mount
// helpers expect.
type debugMux struct {
	r chi.Router
}

func (m debugMux) Handle(pattern string, h http.Handler) {
	m.r.Handle(pattern, h)
}

func (m debugMux) HandleFunc(pattern string, h func(http.ResponseWriter, *http.Request)) {
	m.r.HandleFunc(pattern, h)
}
