// Package inmem provides an in-memory implementation of the workflow engine
// for tests and local development.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowplane/flowplane/engine"
)

type (
	eng struct {
		mu sync.RWMutex

		workflows map[string]engine.WorkflowDefinition

		actionActivities  map[string]actionActivityDef
		stepLogActivities map[string]stepLogActivityDef
		outcomeActivities map[string]outcomeActivityDef

		statuses map[string]engine.RunStatus // keyed by workflow ID
		handles  map[string]*handle
	}

	actionActivityDef struct {
		handler func(context.Context, *engine.ActionInput) (*engine.ActionResult, error)
		opts    engine.ActivityOptions
	}

	stepLogActivityDef struct {
		handler func(context.Context, *engine.StepLogInput) error
		opts    engine.ActivityOptions
	}

	outcomeActivityDef struct {
		handler func(context.Context, *engine.OutcomeInput) error
		opts    engine.ActivityOptions
	}

	handle struct {
		mu     sync.Mutex
		id     string
		done   chan struct{}
		cancel context.CancelFunc
		err    error
		result *engine.RunOutput
	}

	wfCtx struct {
		ctx   context.Context
		id    string
		runID string
		eng   *eng
	}
)

// New returns a new in-memory Engine implementation suitable for tests and
// simple single-process runs. It is not durable or replay-safe and does not
// emulate activity retry policies. The returned engine also implements
// engine.Canceler.
func New() engine.Engine {
	return &eng{
		workflows:         make(map[string]engine.WorkflowDefinition),
		actionActivities:  make(map[string]actionActivityDef),
		stepLogActivities: make(map[string]stepLogActivityDef),
		outcomeActivities: make(map[string]outcomeActivityDef),
		statuses:          make(map[string]engine.RunStatus),
		handles:           make(map[string]*handle),
	}
}

func (e *eng) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("invalid workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

// RegisterActionActivity registers the typed action invocation activity.
func (e *eng) RegisterActionActivity(_ context.Context, name string, opts engine.ActivityOptions, fn func(context.Context, *engine.ActionInput) (*engine.ActionResult, error)) error {
	if name == "" {
		return errors.New("action activity name is required")
	}
	if fn == nil {
		return errors.New("action activity handler is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.actionActivities[name]; dup {
		return fmt.Errorf("action activity %q already registered", name)
	}
	e.actionActivities[name] = actionActivityDef{handler: fn, opts: opts}
	return nil
}

// RegisterStepLogActivity registers the typed step log append activity.
func (e *eng) RegisterStepLogActivity(_ context.Context, name string, opts engine.ActivityOptions, fn func(context.Context, *engine.StepLogInput) error) error {
	if name == "" {
		return errors.New("step log activity name is required")
	}
	if fn == nil {
		return errors.New("step log activity handler is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.stepLogActivities[name]; dup {
		return fmt.Errorf("step log activity %q already registered", name)
	}
	e.stepLogActivities[name] = stepLogActivityDef{handler: fn, opts: opts}
	return nil
}

// RegisterOutcomeActivity registers the typed execution outcome activity.
func (e *eng) RegisterOutcomeActivity(_ context.Context, name string, opts engine.ActivityOptions, fn func(context.Context, *engine.OutcomeInput) error) error {
	if name == "" {
		return errors.New("outcome activity name is required")
	}
	if fn == nil {
		return errors.New("outcome activity handler is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.outcomeActivities[name]; dup {
		return fmt.Errorf("outcome activity %q already registered", name)
	}
	e.outcomeActivities[name] = outcomeActivityDef{handler: fn, opts: opts}
	return nil
}

func (e *eng) StartWorkflow(_ context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.ID == "" {
		return nil, errors.New("workflow id is required")
	}
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %q not registered", req.Workflow)
	}

	e.mu.Lock()
	if e.statuses[req.ID] == engine.RunStatusRunning {
		e.mu.Unlock()
		return nil, fmt.Errorf("workflow %q already running", req.ID)
	}
	e.statuses[req.ID] = engine.RunStatusRunning
	e.mu.Unlock()

	// The run context is detached from the start request so the workflow
	// outlives the caller, mirroring a durable engine.
	base, cancel := context.WithCancel(context.Background())
	runCtx := base
	tcancel := context.CancelFunc(func() {})
	if req.RunTimeout > 0 {
		runCtx, tcancel = context.WithTimeout(base, req.RunTimeout)
	}

	wctx := &wfCtx{
		ctx:   runCtx,
		id:    req.ID,
		runID: req.ID, // in-memory assigns the workflow ID as the run ID
		eng:   e,
	}
	h := &handle{id: req.ID, done: make(chan struct{}), cancel: cancel}

	e.mu.Lock()
	e.handles[req.ID] = h
	e.mu.Unlock()

	go func() {
		defer close(h.done)
		defer tcancel()
		defer cancel()
		res, err := def.Handler(wctx, req.Input)
		h.mu.Lock()
		h.result = res
		h.err = err
		h.mu.Unlock()
		e.mu.Lock()
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, engine.ErrRunCanceled):
			e.statuses[req.ID] = engine.RunStatusCanceled
		case err != nil:
			e.statuses[req.ID] = engine.RunStatusFailed
		default:
			e.statuses[req.ID] = engine.RunStatusCompleted
		}
		e.mu.Unlock()
	}()

	return h, nil
}

// QueryRunStatus returns the current lifecycle status for a workflow
// execution from the in-memory status map. The run ID is ignored because the
// in-memory engine assigns the workflow ID as the run ID.
func (e *eng) QueryRunStatus(_ context.Context, workflowID, _ string) (engine.RunStatus, error) {
	if workflowID == "" {
		return "", errors.New("workflow id is required")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	status, ok := e.statuses[workflowID]
	if !ok {
		return "", engine.ErrWorkflowNotFound
	}
	return status, nil
}

// CancelByID cancels a running workflow by its workflow ID.
func (e *eng) CancelByID(_ context.Context, workflowID, _ string) error {
	if workflowID == "" {
		return errors.New("workflow id is required")
	}
	e.mu.RLock()
	h, ok := e.handles[workflowID]
	e.mu.RUnlock()
	if !ok {
		return engine.ErrWorkflowNotFound
	}
	h.cancel()
	return nil
}

func (h *handle) ID() string {
	return h.id
}

func (h *handle) RunID() string {
	return h.id
}

func (h *handle) Wait(ctx context.Context) (*engine.RunOutput, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	}
}

func (h *handle) Cancel(_ context.Context) error {
	h.cancel()
	return nil
}

func (w *wfCtx) WorkflowID() string {
	return w.id
}

func (w *wfCtx) RunID() string {
	return w.runID
}

func (w *wfCtx) Now() time.Time {
	return time.Now()
}

func (w *wfCtx) Logger() engine.Logger {
	return engine.NopLogger()
}

func (w *wfCtx) ExecuteAction(call engine.ActionCall) (*engine.ActionResult, error) {
	if call.Name == "" {
		return nil, errors.New("action activity name is required")
	}
	if call.Input == nil {
		return nil, errors.New("action input is required")
	}
	if err := translateContextError(w.ctx.Err()); err != nil {
		return nil, err
	}
	w.eng.mu.RLock()
	def, ok := w.eng.actionActivities[call.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("action activity %q not registered", call.Name)
	}
	actCtx, cancel := withOptionalTimeout(w.ctx, activityTimeout(call.Options, def.opts))
	defer cancel()
	res, err := def.handler(actCtx, call.Input)
	if err != nil {
		return nil, translateContextError(err)
	}
	return res, nil
}

func (w *wfCtx) RecordStepLog(call engine.StepLogCall) error {
	if call.Name == "" {
		return errors.New("step log activity name is required")
	}
	if call.Input == nil {
		return errors.New("step log input is required")
	}
	if err := translateContextError(w.ctx.Err()); err != nil {
		return err
	}
	w.eng.mu.RLock()
	def, ok := w.eng.stepLogActivities[call.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return fmt.Errorf("step log activity %q not registered", call.Name)
	}
	actCtx, cancel := withOptionalTimeout(w.ctx, activityTimeout(call.Options, def.opts))
	defer cancel()
	return translateContextError(def.handler(actCtx, call.Input))
}

func (w *wfCtx) PublishOutcome(call engine.OutcomeCall) error {
	if call.Name == "" {
		return errors.New("outcome activity name is required")
	}
	if call.Input == nil {
		return errors.New("outcome input is required")
	}
	w.eng.mu.RLock()
	def, ok := w.eng.outcomeActivities[call.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return fmt.Errorf("outcome activity %q not registered", call.Name)
	}
	// The outcome closes the execution record, so it runs even after the run
	// context is canceled.
	actCtx, cancel := withOptionalTimeout(context.Background(), activityTimeout(call.Options, def.opts))
	defer cancel()
	return def.handler(actCtx, call.Input)
}

// translateContextError maps context cancellation onto the engine sentinel
// so workflow handlers observe the same error shape as durable engines.
func translateContextError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) && !errors.Is(err, engine.ErrRunCanceled) {
		return fmt.Errorf("%w: %w", engine.ErrRunCanceled, err)
	}
	return err
}

func activityTimeout(override, defaults engine.ActivityOptions) time.Duration {
	if override.Timeout > 0 {
		return override.Timeout
	}
	return defaults.Timeout
}

func withOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, timeout)
}
