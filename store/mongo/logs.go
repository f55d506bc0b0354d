package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowplane/flowplane/runs"
)

// AppendStepLog stores entry and assigns its id. A zero CreatedAt is stamped
// with the current time.
func (c *client) AppendStepLog(ctx context.Context, entry *runs.StepLog) error {
	if entry == nil {
		return errors.New("step log is required")
	}
	if entry.ExecutionID == "" {
		return errors.New("execution id is required")
	}
	doc := fromStepLog(entry)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
		entry.CreatedAt = doc.CreatedAt
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.logs.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	hex, ok := insertedHex(res)
	if !ok {
		return errors.New("unexpected inserted step log id type")
	}
	entry.ID = hex
	return nil
}

// ListStepLogs returns the logs of an execution in append order.
func (c *client) ListStepLogs(ctx context.Context, executionID string) ([]*runs.StepLog, error) {
	if executionID == "" {
		return nil, errors.New("execution id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{
		{Key: "execution_id", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := c.logs.Find(ctx, bson.M{"execution_id": executionID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	out := []*runs.StepLog{}
	for cur.Next(ctx) {
		var doc stepLogDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toStepLog())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type stepLogDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ExecutionID string             `bson:"execution_id"`
	StepName    string             `bson:"step_name"`
	ActionName  string             `bson:"action_name,omitempty"`
	Status      string             `bson:"status"`
	Inputs      map[string]any     `bson:"inputs,omitempty"`
	Outputs     map[string]any     `bson:"outputs,omitempty"`
	Error       string             `bson:"error,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func fromStepLog(entry *runs.StepLog) stepLogDocument {
	return stepLogDocument{
		ExecutionID: entry.ExecutionID,
		StepName:    entry.StepName,
		ActionName:  entry.ActionName,
		Status:      entry.Status,
		Inputs:      cloneMap(entry.Inputs),
		Outputs:     cloneMap(entry.Outputs),
		Error:       entry.Error,
		CreatedAt:   entry.CreatedAt.UTC(),
	}
}

func (doc stepLogDocument) toStepLog() *runs.StepLog {
	return &runs.StepLog{
		ID:          doc.ID.Hex(),
		ExecutionID: doc.ExecutionID,
		StepName:    doc.StepName,
		ActionName:  doc.ActionName,
		Status:      doc.Status,
		Inputs:      cloneMap(doc.Inputs),
		Outputs:     cloneMap(doc.Outputs),
		Error:       doc.Error,
		CreatedAt:   doc.CreatedAt.UTC(),
	}
}
