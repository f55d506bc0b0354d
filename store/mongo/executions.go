package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowplane/flowplane/runs"
)

// InsertExecution stores ex and assigns its id.
func (c *client) InsertExecution(ctx context.Context, ex *runs.Execution) error {
	if ex == nil {
		return errors.New("execution is required")
	}
	if ex.WorkflowID == "" {
		return errors.New("workflow id is required")
	}
	if ex.RuntimeWorkflowID == "" {
		return errors.New("runtime workflow id is required")
	}
	doc := fromExecution(ex)
	if doc.StartedAt.IsZero() {
		doc.StartedAt = time.Now().UTC()
		ex.StartedAt = doc.StartedAt
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.executions.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	hex, ok := insertedHex(res)
	if !ok {
		return errors.New("unexpected inserted execution id type")
	}
	ex.ID = hex
	return nil
}

// GetExecution loads an execution by id.
func (c *client) GetExecution(ctx context.Context, id string) (*runs.Execution, error) {
	oid, ok := oidFromHex(id)
	if !ok {
		return nil, runs.ErrNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc executionDocument
	if err := c.executions.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, runs.ErrNotFound
		}
		return nil, err
	}
	return doc.toExecution(), nil
}

// SetRuntimeRunID records the engine run id once the start call returns it.
func (c *client) SetRuntimeRunID(ctx context.Context, id, runID string) error {
	oid, ok := oidFromHex(id)
	if !ok {
		return runs.ErrNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.executions.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"runtime_run_id": runID},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return runs.ErrNotFound
	}
	return nil
}

// CloseExecution moves a RUNNING execution to status and stamps completion.
// Records that already reached a terminal status are left untouched, so the
// first close wins when the executor and a cancel race.
func (c *client) CloseExecution(ctx context.Context, id, status string, outputs map[string]any, errMsg string) error {
	oid, ok := oidFromHex(id)
	if !ok {
		return runs.ErrNotFound
	}
	set := bson.M{
		"status":       status,
		"completed_at": time.Now().UTC(),
	}
	if outputs != nil {
		set["outputs"] = outputs
	}
	if errMsg != "" {
		set["error"] = errMsg
	}
	filter := bson.M{"_id": oid, "status": runs.StatusRunning}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.executions.UpdateOne(ctx, filter, bson.M{"$set": set})
	return err
}

// ListExecutions returns executions matching f ordered by most recent start,
// along with the total match count.
func (c *client) ListExecutions(ctx context.Context, f runs.ExecutionFilter) ([]*runs.Execution, int, error) {
	filter := bson.M{}
	if f.WorkflowID != "" {
		filter["workflow_id"] = f.WorkflowID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	total, err := c.executions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if f.Skip > 0 {
		opts = opts.SetSkip(int64(f.Skip))
	}
	if f.Limit > 0 {
		opts = opts.SetLimit(int64(f.Limit))
	}
	cur, err := c.executions.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	out := []*runs.Execution{}
	for cur.Next(ctx) {
		var doc executionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		out = append(out, doc.toExecution())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

type executionDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	WorkflowID        string             `bson:"workflow_id"`
	WorkflowName      string             `bson:"workflow_name,omitempty"`
	RuntimeWorkflowID string             `bson:"runtime_workflow_id"`
	RuntimeRunID      string             `bson:"runtime_run_id,omitempty"`
	Status            string             `bson:"status"`
	Inputs            map[string]any     `bson:"inputs"`
	Outputs           map[string]any     `bson:"outputs,omitempty"`
	Error             string             `bson:"error,omitempty"`
	StartedAt         time.Time          `bson:"started_at"`
	CompletedAt       *time.Time         `bson:"completed_at,omitempty"`
}

func fromExecution(ex *runs.Execution) executionDocument {
	return executionDocument{
		WorkflowID:        ex.WorkflowID,
		WorkflowName:      ex.WorkflowName,
		RuntimeWorkflowID: ex.RuntimeWorkflowID,
		RuntimeRunID:      ex.RuntimeRunID,
		Status:            ex.Status,
		Inputs:            cloneMap(ex.Inputs),
		Outputs:           cloneMap(ex.Outputs),
		Error:             ex.Error,
		StartedAt:         ex.StartedAt.UTC(),
		CompletedAt:       utcTimePtr(ex.CompletedAt),
	}
}

func (doc executionDocument) toExecution() *runs.Execution {
	return &runs.Execution{
		ID:                doc.ID.Hex(),
		WorkflowID:        doc.WorkflowID,
		WorkflowName:      doc.WorkflowName,
		RuntimeWorkflowID: doc.RuntimeWorkflowID,
		RuntimeRunID:      doc.RuntimeRunID,
		Status:            doc.Status,
		Inputs:            cloneMap(doc.Inputs),
		Outputs:           cloneMap(doc.Outputs),
		Error:             doc.Error,
		StartedAt:         doc.StartedAt.UTC(),
		CompletedAt:       utcTimePtr(doc.CompletedAt),
	}
}

func utcTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	at := t.UTC()
	return &at
}
