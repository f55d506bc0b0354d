package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowplane/flowplane/workflow"
)

// InsertWorkflow stores rec and assigns its id. The caller sets version,
// activity flag and timestamps.
func (c *client) InsertWorkflow(ctx context.Context, rec *workflow.Record) error {
	if rec == nil {
		return errors.New("workflow record is required")
	}
	if rec.Name == "" {
		return errors.New("workflow name is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.workflows.InsertOne(ctx, fromWorkflowRecord(rec))
	if err != nil {
		return err
	}
	hex, ok := insertedHex(res)
	if !ok {
		return errors.New("unexpected inserted workflow id type")
	}
	rec.ID = hex
	return nil
}

// GetWorkflow loads a workflow by id. Soft-deleted workflows still resolve
// so past executions keep a valid reference.
func (c *client) GetWorkflow(ctx context.Context, id string) (*workflow.Record, error) {
	oid, ok := oidFromHex(id)
	if !ok {
		return nil, workflow.ErrNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc workflowDocument
	if err := c.workflows.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return doc.toRecord(), nil
}

// UpdateWorkflow applies patch, bumps the version and returns the updated
// record.
func (c *client) UpdateWorkflow(ctx context.Context, id string, patch workflow.Patch) (*workflow.Record, error) {
	oid, ok := oidFromHex(id)
	if !ok {
		return nil, workflow.ErrNotFound
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Config != nil {
		set["config"] = fromDefinition(*patch.Config)
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	ctxWithTimeout, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.workflows.UpdateOne(ctxWithTimeout, bson.M{"_id": oid}, update)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, workflow.ErrNotFound
	}
	return c.GetWorkflow(ctx, id)
}

// DeleteWorkflow clears the active flag. The record and its executions are
// kept.
func (c *client) DeleteWorkflow(ctx context.Context, id string) error {
	oid, ok := oidFromHex(id)
	if !ok {
		return workflow.ErrNotFound
	}
	update := bson.M{
		"$set": bson.M{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		},
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.workflows.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

// ListWorkflows returns active workflows ordered by most recent update,
// along with the total count of active workflows.
func (c *client) ListWorkflows(ctx context.Context, skip, limit int) ([]*workflow.Record, int, error) {
	filter := bson.M{"is_active": true}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	total, err := c.workflows.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if skip > 0 {
		opts = opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := c.workflows.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	out := []*workflow.Record{}
	for cur.Next(ctx) {
		var doc workflowDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		out = append(out, doc.toRecord())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

type workflowDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description,omitempty"`
	Version     int                `bson:"version"`
	IsActive    bool               `bson:"is_active"`
	Config      definitionDocument `bson:"config"`
	CreatedBy   string             `bson:"created_by,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

type definitionDocument struct {
	Nodes []nodeDocument `bson:"nodes"`
	Edges []edgeDocument `bson:"edges"`
}

type nodeDocument struct {
	ID       string         `bson:"id"`
	Type     string         `bson:"type"`
	Data     map[string]any `bson:"data,omitempty"`
	Position struct {
		X float64 `bson:"x"`
		Y float64 `bson:"y"`
	} `bson:"position"`
}

type edgeDocument struct {
	ID     string `bson:"id"`
	Source string `bson:"source"`
	Target string `bson:"target"`
	Type   string `bson:"type,omitempty"`
	Label  string `bson:"label,omitempty"`
}

func fromWorkflowRecord(rec *workflow.Record) workflowDocument {
	return workflowDocument{
		Name:        rec.Name,
		Description: rec.Description,
		Version:     rec.Version,
		IsActive:    rec.IsActive,
		Config:      fromDefinition(rec.Config),
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
	}
}

func (doc workflowDocument) toRecord() *workflow.Record {
	return &workflow.Record{
		ID:          doc.ID.Hex(),
		Name:        doc.Name,
		Description: doc.Description,
		Version:     doc.Version,
		IsActive:    doc.IsActive,
		Config:      doc.Config.toDefinition(),
		CreatedBy:   doc.CreatedBy,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
}

func fromDefinition(def workflow.Definition) definitionDocument {
	doc := definitionDocument{
		Nodes: make([]nodeDocument, 0, len(def.Nodes)),
		Edges: make([]edgeDocument, 0, len(def.Edges)),
	}
	for _, n := range def.Nodes {
		nd := nodeDocument{
			ID:   n.ID,
			Type: n.Type,
			Data: cloneMap(n.Data),
		}
		nd.Position.X = n.Position.X
		nd.Position.Y = n.Position.Y
		doc.Nodes = append(doc.Nodes, nd)
	}
	for _, e := range def.Edges {
		doc.Edges = append(doc.Edges, edgeDocument(e))
	}
	return doc
}

func (doc definitionDocument) toDefinition() workflow.Definition {
	def := workflow.Definition{
		Nodes: make([]workflow.Node, 0, len(doc.Nodes)),
		Edges: make([]workflow.Edge, 0, len(doc.Edges)),
	}
	for _, n := range doc.Nodes {
		def.Nodes = append(def.Nodes, workflow.Node{
			ID:       n.ID,
			Type:     n.Type,
			Data:     cloneMap(n.Data),
			Position: workflow.Position{X: n.Position.X, Y: n.Position.Y},
		})
	}
	for _, e := range doc.Edges {
		def.Edges = append(def.Edges, workflow.Edge(e))
	}
	return def
}
