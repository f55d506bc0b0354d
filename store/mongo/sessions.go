package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowplane/flowplane/agent"
)

// InsertSession stores sess and assigns its id. Zero timestamps are stamped
// with the current time.
func (c *client) InsertSession(ctx context.Context, sess *agent.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	doc := fromSession(sess)
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
		sess.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
		sess.UpdatedAt = now
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.sessions.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	hex, ok := insertedHex(res)
	if !ok {
		return errors.New("unexpected inserted session id type")
	}
	sess.ID = hex
	return nil
}

// GetSession loads a session by id regardless of status.
func (c *client) GetSession(ctx context.Context, id string) (*agent.Session, error) {
	oid, ok := oidFromHex(id)
	if !ok {
		return nil, agent.ErrSessionNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := c.sessions.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, agent.ErrSessionNotFound
		}
		return nil, err
	}
	return doc.toSession(), nil
}

// UpdateSession replaces the mutable fields of a stored session: messages,
// draft, status and the workflow link.
func (c *client) UpdateSession(ctx context.Context, sess *agent.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	oid, ok := oidFromHex(sess.ID)
	if !ok {
		return agent.ErrSessionNotFound
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"workflow_id":    sess.WorkflowID,
			"status":         sess.Status,
			"messages":       fromMessages(sess.Messages),
			"workflow_draft": cloneMap(sess.WorkflowDraft),
			"updated_at":     now,
		},
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.sessions.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return agent.ErrSessionNotFound
	}
	sess.UpdatedAt = now
	return nil
}

// ListSessions returns active sessions ordered by most recent update, along
// with the total count of active sessions.
func (c *client) ListSessions(ctx context.Context, skip, limit int) ([]*agent.Session, int, error) {
	filter := bson.M{"status": agent.SessionActive}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	total, err := c.sessions.CountDocuments(ctx, filter)
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
	cur, err := c.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	out := []*agent.Session{}
	for cur.Next(ctx) {
		var doc sessionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		out = append(out, doc.toSession())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

// AbandonSession marks a session abandoned. The record is kept.
func (c *client) AbandonSession(ctx context.Context, id string) error {
	oid, ok := oidFromHex(id)
	if !ok {
		return agent.ErrSessionNotFound
	}
	update := bson.M{
		"$set": bson.M{
			"status":     agent.SessionAbandoned,
			"updated_at": time.Now().UTC(),
		},
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.sessions.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return agent.ErrSessionNotFound
	}
	return nil
}

type sessionDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	WorkflowID    string             `bson:"workflow_id,omitempty"`
	Status        string             `bson:"status"`
	Messages      []messageDocument  `bson:"messages"`
	WorkflowDraft map[string]any     `bson:"workflow_draft"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

type messageDocument struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
}

func fromSession(sess *agent.Session) sessionDocument {
	return sessionDocument{
		WorkflowID:    sess.WorkflowID,
		Status:        sess.Status,
		Messages:      fromMessages(sess.Messages),
		WorkflowDraft: cloneMap(sess.WorkflowDraft),
		CreatedAt:     sess.CreatedAt.UTC(),
		UpdatedAt:     sess.UpdatedAt.UTC(),
	}
}

func (doc sessionDocument) toSession() *agent.Session {
	msgs := make([]agent.Message, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		msgs = append(msgs, agent.Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC(),
		})
	}
	return &agent.Session{
		ID:            doc.ID.Hex(),
		WorkflowID:    doc.WorkflowID,
		Status:        doc.Status,
		Messages:      msgs,
		WorkflowDraft: cloneMap(doc.WorkflowDraft),
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
}

func fromMessages(msgs []agent.Message) []messageDocument {
	out := make([]messageDocument, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDocument{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC(),
		})
	}
	return out
}
