// Package temporal adapts the engine abstraction onto Temporal: durable
// workflow execution, per-queue workers, activity retry policies, and
// authoritative status via the visibility API.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/flowplane/flowplane/engine"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Options configures the Temporal engine adapter. Either a pre-configured
// Client or ClientOptions must be provided. The adapter wires OTEL
// instrumentation, manages one worker per task queue, and optionally
// auto-starts workers on first workflow execution.
type Options struct {
	// Client is an optional pre-configured Temporal client. If nil, the
	// adapter creates a lazy client from ClientOptions so the control plane
	// can boot before the Temporal frontend is reachable.
	Client client.Client

	// ClientOptions describe how to construct the Temporal client when Client
	// is nil. Required when Client is nil.
	ClientOptions *client.Options

	// WorkerOptions configures worker defaults. TaskQueue must be set and is
	// the default queue used when definitions omit one.
	WorkerOptions WorkerOptions

	// Instrumentation toggles OTEL tracing and metrics for the client and
	// workers. Both are enabled by default against the global providers.
	Instrumentation InstrumentationOptions

	// DisableWorkerAutoStart disables automatic worker startup on first
	// workflow execution. Set it when the caller controls worker lifecycle
	// explicitly via Worker().
	DisableWorkerAutoStart bool

	// Logger emits worker and client logs. If nil, logs are discarded.
	Logger engine.Logger
}

// WorkerOptions configures the shared worker settings applied to every task
// queue managed by the engine.
type WorkerOptions struct {
	// TaskQueue is the default queue name. Required.
	TaskQueue string

	// Options are passed directly to Temporal's worker.New constructor:
	// concurrency limits, identity, background activity context, etc.
	Options worker.Options
}

// InstrumentationOptions configures how the engine wires OpenTelemetry
// tracing and metrics into the Temporal client and workers.
type InstrumentationOptions struct {
	// DisableTracing skips installing the OTEL tracing interceptor.
	DisableTracing bool

	// DisableMetrics skips installing the OTEL metrics handler.
	DisableMetrics bool

	// TracerProvider supplies the tracer used for workflow/activity spans.
	// Nil means the global provider.
	TracerProvider trace.TracerProvider

	// MeterProvider supplies the meter used for workflow/activity metrics.
	// Nil means the global provider.
	MeterProvider metric.MeterProvider
}

// Engine implements engine.Engine and engine.Canceler on Temporal. It manages
// workflow/activity registration and per-queue worker lifecycle.
//
// All methods are safe for concurrent use. Construct via New, register the
// workflow and activities, then either let workers auto-start or call
// Worker().Start(). Call Close on shutdown after stopping workers.
type Engine struct {
	client      client.Client
	closeClient bool

	defaultQueue      string
	workerOpts        worker.Options
	autoStartDisabled bool

	logger engine.Logger

	mu              sync.Mutex
	workers         map[string]*workerBundle
	workersStarted  bool
	workflows       map[string]engine.WorkflowDefinition
	activityOptions map[string]engine.ActivityOptions
}

// New constructs a Temporal engine adapter. Either Client or ClientOptions
// must be provided, and WorkerOptions must include a default task queue.
func New(opts Options) (*Engine, error) {
	defaultQueue := opts.WorkerOptions.TaskQueue
	if defaultQueue == "" {
		return nil, fmt.Errorf("temporal engine: worker options must include a default task queue")
	}
	logger := opts.Logger
	if logger == nil {
		logger = engine.NopLogger()
	}

	inst, err := configureInstrumentation(opts.Instrumentation)
	if err != nil {
		return nil, err
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if clientOpts.Logger == nil {
			clientOpts.Logger = logger
		}
		applyClientInstrumentation(&clientOpts, inst)
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	workerOpts := opts.WorkerOptions.Options
	applyWorkerInstrumentation(&workerOpts, inst)

	return &Engine{
		client:            cli,
		closeClient:       closeClient,
		defaultQueue:      defaultQueue,
		workerOpts:        workerOpts,
		autoStartDisabled: opts.DisableWorkerAutoStart,
		logger:            logger,
		workers:           make(map[string]*workerBundle),
		workflows:         make(map[string]engine.WorkflowDefinition),
		activityOptions:   make(map[string]engine.ActivityOptions),
	}, nil
}

// RegisterWorkflow registers the executor workflow with the worker for its
// task queue. The handler is wrapped so it receives the engine's
// WorkflowContext abstraction instead of a raw Temporal context.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("temporal engine: workflow name cannot be empty")
	}
	queue := def.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	bundle, err := e.workerForQueue(queue)
	if err != nil {
		return err
	}

	bundle.registerWorkflow(def.Name, func(tctx workflow.Context, input *engine.RunInput) (*engine.RunOutput, error) {
		return def.Handler(newTemporalWorkflowContext(e, tctx), input)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[def.Name]; exists {
		return fmt.Errorf("temporal engine: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

// RegisterActionActivity registers the action invocation activity.
func (e *Engine) RegisterActionActivity(_ context.Context, name string, opts engine.ActivityOptions, fn func(context.Context, *engine.ActionInput) (*engine.ActionResult, error)) error {
	return registerActivity(e, name, opts, fn)
}

// RegisterStepLogActivity registers the step log append activity.
func (e *Engine) RegisterStepLogActivity(_ context.Context, name string, opts engine.ActivityOptions, fn func(context.Context, *engine.StepLogInput) error) error {
	return registerActivity(e, name, opts, fn)
}

// RegisterOutcomeActivity registers the execution outcome activity.
func (e *Engine) RegisterOutcomeActivity(_ context.Context, name string, opts engine.ActivityOptions, fn func(context.Context, *engine.OutcomeInput) error) error {
	return registerActivity(e, name, opts, fn)
}

// registerActivity hands the typed handler to the queue's worker; Temporal
// decodes payloads from the function signature, so no wrapping is needed.
func registerActivity(e *Engine, name string, opts engine.ActivityOptions, fn any) error {
	if name == "" {
		return fmt.Errorf("temporal engine: activity name cannot be empty")
	}
	queue := opts.Queue
	if queue == "" {
		queue = e.defaultQueue
	}
	bundle, err := e.workerForQueue(queue)
	if err != nil {
		return err
	}
	bundle.registerActivity(name, fn)

	e.mu.Lock()
	e.activityOptions[name] = opts
	e.mu.Unlock()
	return nil
}

// StartWorkflow launches a new execution. The task queue resolves in order:
// req.TaskQueue, the definition's queue, the engine default.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, fmt.Errorf("temporal engine: workflow name is required")
	}
	def, err := e.workflowDefinition(req.Workflow)
	if err != nil {
		return nil, err
	}

	if !e.autoStartDisabled {
		e.ensureWorkersStarted()
	}

	queue := req.TaskQueue
	if queue == "" {
		queue = def.TaskQueue
	}
	if queue == "" {
		queue = e.defaultQueue
	}

	opts := client.StartWorkflowOptions{
		ID:                 req.ID,
		TaskQueue:          queue,
		WorkflowRunTimeout: req.RunTimeout,
	}
	if len(req.Memo) > 0 {
		opts.Memo = req.Memo
	}
	if rp := convertRetryPolicy(req.RetryPolicy); rp != nil {
		opts.RetryPolicy = rp
	}

	run, err := e.client.ExecuteWorkflow(ctx, opts, def.Name, req.Input)
	if err != nil {
		return nil, err
	}
	return &workflowHandle{run: run, client: e.client}, nil
}

// QueryRunStatus asks the Temporal frontend for the authoritative execution
// status.
func (e *Engine) QueryRunStatus(ctx context.Context, workflowID, runID string) (engine.RunStatus, error) {
	if workflowID == "" {
		return "", fmt.Errorf("temporal engine: workflow id is required")
	}
	resp, err := e.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return "", engine.ErrWorkflowNotFound
		}
		return "", err
	}
	return runStatusFromProto(resp.GetWorkflowExecutionInfo().GetStatus()), nil
}

// CancelByID requests cancellation of the given execution.
func (e *Engine) CancelByID(ctx context.Context, workflowID, runID string) error {
	if workflowID == "" {
		return fmt.Errorf("temporal engine: workflow id is required")
	}
	if err := e.client.CancelWorkflow(ctx, workflowID, runID); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return engine.ErrWorkflowNotFound
		}
		return err
	}
	return nil
}

// Worker returns a controller for managing the lifecycle of all workers owned
// by this engine. When auto-start is active (default), Start is optional.
func (e *Engine) Worker() *WorkerController {
	return &WorkerController{engine: e}
}

// Close shuts down the Temporal client if the engine created it. A
// pre-configured Client passed to New stays under the caller's control.
func (e *Engine) Close() error {
	if e.closeClient && e.client != nil {
		e.client.Close()
	}
	return nil
}

func (e *Engine) workerForQueue(queue string) (*workerBundle, error) {
	if queue == "" {
		queue = e.defaultQueue
	}
	if queue == "" {
		return nil, fmt.Errorf("temporal engine: no task queue configured")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if bundle, ok := e.workers[queue]; ok {
		return bundle, nil
	}

	w := worker.New(e.client, queue, e.workerOpts)
	bundle := &workerBundle{queue: queue, worker: w, logger: e.logger}
	e.workers[queue] = bundle
	if e.workersStarted {
		bundle.start()
	}
	return bundle, nil
}

func (e *Engine) workflowDefinition(name string) (engine.WorkflowDefinition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.workflows[name]
	if !ok {
		return engine.WorkflowDefinition{}, fmt.Errorf("temporal engine: workflow %q is not registered", name)
	}
	return def, nil
}

func (e *Engine) ensureWorkersStarted() {
	e.mu.Lock()
	if e.workersStarted {
		e.mu.Unlock()
		return
	}
	e.workersStarted = true
	bundles := make([]*workerBundle, 0, len(e.workers))
	for _, b := range e.workers {
		bundles = append(bundles, b)
	}
	e.mu.Unlock()
	for _, b := range bundles {
		b.start()
	}
}

func (e *Engine) activityDefaultsFor(name string) engine.ActivityOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activityOptions[name]
}

// WorkerController manages worker lifecycle for every task queue owned by
// the engine. Start launches all registered workers; Stop drains in-flight
// tasks and disconnects. Controllers share engine state, so operations affect
// all workers globally.
type WorkerController struct {
	engine *Engine
}

// Start launches all registered workers. Workers registered afterwards start
// as they are created.
func (c *WorkerController) Start() error {
	c.engine.ensureWorkersStarted()
	return nil
}

// Stop gracefully stops all workers managed by the engine.
func (c *WorkerController) Stop() {
	c.engine.mu.Lock()
	bundles := make([]*workerBundle, 0, len(c.engine.workers))
	for _, b := range c.engine.workers {
		bundles = append(bundles, b)
	}
	c.engine.mu.Unlock()

	for _, b := range bundles {
		b.stop()
	}
}

type workerBundle struct {
	queue  string
	worker worker.Worker
	logger engine.Logger

	startOnce sync.Once
}

func (b *workerBundle) start() {
	b.startOnce.Do(func() {
		go func() {
			if err := b.worker.Run(worker.InterruptCh()); err != nil {
				b.logger.Error("temporal worker exited", "queue", b.queue, "err", err)
			}
		}()
	})
}

func (b *workerBundle) stop() {
	b.worker.Stop()
}

func (b *workerBundle) registerWorkflow(name string, fn any) {
	b.worker.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
}

func (b *workerBundle) registerActivity(name string, fn any) {
	b.worker.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

type instrumentation struct {
	tracer  interceptor.Interceptor
	metrics client.MetricsHandler
}

func configureInstrumentation(opts InstrumentationOptions) (*instrumentation, error) {
	inst := &instrumentation{}
	if !opts.DisableTracing {
		topts := temporalotel.TracerOptions{}
		if opts.TracerProvider != nil {
			topts.Tracer = opts.TracerProvider.Tracer("flowplane")
		}
		tracer, err := temporalotel.NewTracingInterceptor(topts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: configure tracing interceptor: %w", err)
		}
		inst.tracer = tracer
	}
	if !opts.DisableMetrics {
		mopts := temporalotel.MetricsHandlerOptions{}
		if opts.MeterProvider != nil {
			mopts.Meter = opts.MeterProvider.Meter("flowplane")
		}
		inst.metrics = temporalotel.NewMetricsHandler(mopts)
	}
	if inst.tracer == nil && inst.metrics == nil {
		return nil, nil
	}
	return inst, nil
}

func applyClientInstrumentation(opts *client.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
	if inst.metrics != nil && opts.MetricsHandler == nil {
		opts.MetricsHandler = inst.metrics
	}
}

func applyWorkerInstrumentation(opts *worker.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
}

type workflowHandle struct {
	run    client.WorkflowRun
	client client.Client
}

func (h *workflowHandle) ID() string {
	return h.run.GetID()
}

func (h *workflowHandle) RunID() string {
	return h.run.GetRunID()
}

func (h *workflowHandle) Wait(ctx context.Context) (*engine.RunOutput, error) {
	var out engine.RunOutput
	if err := h.run.Get(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

func runStatusFromProto(s enumspb.WorkflowExecutionStatus) engine.RunStatus {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return engine.RunStatusRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return engine.RunStatusCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return engine.RunStatusFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return engine.RunStatusCanceled
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return engine.RunStatusFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return engine.RunStatusRunning
	default:
		return engine.RunStatusPending
	}
}
