// Package mongo hosts the MongoDB client backing the control plane stores:
// workflow records, execution records and their step logs, conversation
// sessions and the action catalog. Consumers declare the slice of this
// client they need; the concrete type satisfies all of them.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"github.com/flowplane/flowplane/agent"
	"github.com/flowplane/flowplane/catalog"
	"github.com/flowplane/flowplane/runs"
	"github.com/flowplane/flowplane/workflow"
)

const (
	defaultWorkflowsCollection  = "workflows"
	defaultExecutionsCollection = "executions"
	defaultLogsCollection       = "execution_logs"
	defaultSessionsCollection   = "conversation_sessions"
	defaultActionsCollection    = "actions"
	defaultOpTimeout            = 5 * time.Second
	storeClientName             = "store-mongo"
)

// Client exposes the Mongo-backed stores.
type Client interface {
	health.Pinger

	InsertWorkflow(ctx context.Context, rec *workflow.Record) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Record, error)
	UpdateWorkflow(ctx context.Context, id string, patch workflow.Patch) (*workflow.Record, error)
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflows(ctx context.Context, skip, limit int) ([]*workflow.Record, int, error)

	InsertExecution(ctx context.Context, ex *runs.Execution) error
	GetExecution(ctx context.Context, id string) (*runs.Execution, error)
	SetRuntimeRunID(ctx context.Context, id, runID string) error
	CloseExecution(ctx context.Context, id, status string, outputs map[string]any, errMsg string) error
	ListExecutions(ctx context.Context, f runs.ExecutionFilter) ([]*runs.Execution, int, error)

	AppendStepLog(ctx context.Context, entry *runs.StepLog) error
	ListStepLogs(ctx context.Context, executionID string) ([]*runs.StepLog, error)

	InsertSession(ctx context.Context, sess *agent.Session) error
	GetSession(ctx context.Context, id string) (*agent.Session, error)
	UpdateSession(ctx context.Context, sess *agent.Session) error
	ListSessions(ctx context.Context, skip, limit int) ([]*agent.Session, int, error)
	AbandonSession(ctx context.Context, id string) error

	GetActionByName(ctx context.Context, name string) (*catalog.Action, error)
	GetAction(ctx context.Context, id string) (*catalog.Action, error)
	InsertAction(ctx context.Context, a *catalog.Action) error
	ListActions(ctx context.Context, f catalog.Filter) ([]*catalog.Action, int, error)
}

// Options configures the Mongo store client.
type Options struct {
	Client               *mongodriver.Client
	Database             string
	WorkflowsCollection  string
	ExecutionsCollection string
	LogsCollection       string
	SessionsCollection   string
	ActionsCollection    string
	Timeout              time.Duration
}

type client struct {
	mongo      *mongodriver.Client
	workflows  collection
	executions collection
	logs       collection
	sessions   collection
	actions    collection
	timeout    time.Duration
}

// New returns a Client backed by MongoDB.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	names := []struct {
		value *string
		def   string
	}{
		{&opts.WorkflowsCollection, defaultWorkflowsCollection},
		{&opts.ExecutionsCollection, defaultExecutionsCollection},
		{&opts.LogsCollection, defaultLogsCollection},
		{&opts.SessionsCollection, defaultSessionsCollection},
		{&opts.ActionsCollection, defaultActionsCollection},
	}
	for _, n := range names {
		if *n.value == "" {
			*n.value = n.def
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	workflows := mongoCollection{coll: db.Collection(opts.WorkflowsCollection)}
	executions := mongoCollection{coll: db.Collection(opts.ExecutionsCollection)}
	logs := mongoCollection{coll: db.Collection(opts.LogsCollection)}
	sessions := mongoCollection{coll: db.Collection(opts.SessionsCollection)}
	actions := mongoCollection{coll: db.Collection(opts.ActionsCollection)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, workflows, executions, logs, sessions, actions); err != nil {
		return nil, err
	}
	return newClientWithCollections(opts.Client, workflows, executions, logs, sessions, actions, timeout)
}

func (c *client) Name() string {
	return storeClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func newClientWithCollections(mongoClient *mongodriver.Client, workflows, executions, logs, sessions, actions collection, timeout time.Duration) (*client, error) {
	if workflows == nil || executions == nil || logs == nil || sessions == nil || actions == nil {
		return nil, errors.New("collections are required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{
		mongo:      mongoClient,
		workflows:  workflows,
		executions: executions,
		logs:       logs,
		sessions:   sessions,
		actions:    actions,
		timeout:    timeout,
	}, nil
}

func ensureIndexes(ctx context.Context, workflows, executions, logs, sessions, actions collection) error {
	workflowList := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "is_active", Value: 1},
			{Key: "updated_at", Value: -1},
		},
	}
	if _, err := workflows.Indexes().CreateOne(ctx, workflowList); err != nil {
		return err
	}
	runtimeID := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "runtime_workflow_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := executions.Indexes().CreateOne(ctx, runtimeID); err != nil {
		return err
	}
	executionList := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "workflow_id", Value: 1},
			{Key: "started_at", Value: -1},
		},
	}
	if _, err := executions.Indexes().CreateOne(ctx, executionList); err != nil {
		return err
	}
	executionStatus := mongodriver.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	}
	if _, err := executions.Indexes().CreateOne(ctx, executionStatus); err != nil {
		return err
	}
	logOrder := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "execution_id", Value: 1},
			{Key: "_id", Value: 1},
		},
	}
	if _, err := logs.Indexes().CreateOne(ctx, logOrder); err != nil {
		return err
	}
	sessionList := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "updated_at", Value: -1},
		},
	}
	if _, err := sessions.Indexes().CreateOne(ctx, sessionList); err != nil {
		return err
	}
	actionName := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "action_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := actions.Indexes().CreateOne(ctx, actionName); err != nil {
		return err
	}
	actionCategory := mongodriver.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}},
	}
	if _, err := actions.Indexes().CreateOne(ctx, actionCategory); err != nil {
		return err
	}
	return nil
}

// oidFromHex parses a client-supplied id. Ids that do not parse cannot match
// any stored document, so callers map !ok to their not-found sentinel.
func oidFromHex(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}

func insertedHex(res *mongodriver.InsertOneResult) (string, bool) {
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", false
	}
	return oid.Hex(), true
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	InsertOne(ctx context.Context, document any,
		opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) InsertOne(ctx context.Context, document any,
	opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	return c.coll.CountDocuments(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

func (c mongoCursor) Decode(val any) error {
	return c.cur.Decode(val)
}

func (c mongoCursor) Err() error {
	return c.cur.Err()
}

func (c mongoCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
