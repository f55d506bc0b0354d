package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowplane/flowplane/catalog"
)

// GetActionByName loads a catalog entry by its stable action name.
func (c *client) GetActionByName(ctx context.Context, name string) (*catalog.Action, error) {
	if name == "" {
		return nil, errors.New("action name is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc actionDocument
	if err := c.actions.FindOne(ctx, bson.M{"action_name": name}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return doc.toAction(), nil
}

// GetAction loads a catalog entry by id.
func (c *client) GetAction(ctx context.Context, id string) (*catalog.Action, error) {
	oid, ok := oidFromHex(id)
	if !ok {
		return nil, catalog.ErrNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc actionDocument
	if err := c.actions.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return doc.toAction(), nil
}

// InsertAction stores a and assigns its id.
func (c *client) InsertAction(ctx context.Context, a *catalog.Action) error {
	if a == nil {
		return errors.New("action is required")
	}
	if a.ActionName == "" {
		return errors.New("action name is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.actions.InsertOne(ctx, fromAction(a))
	if err != nil {
		return err
	}
	hex, ok := insertedHex(res)
	if !ok {
		return errors.New("unexpected inserted action id type")
	}
	a.ID = hex
	return nil
}

// ListActions returns active catalog entries matching f in action name
// order, along with the total match count. The search term matches action
// names and descriptions case-insensitively.
func (c *client) ListActions(ctx context.Context, f catalog.Filter) ([]*catalog.Action, int, error) {
	filter := bson.M{"is_active": true}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Search != "" {
		pattern := regexp.QuoteMeta(f.Search)
		filter["$or"] = []bson.M{
			{"action_name": bson.M{"$regex": pattern, "$options": "i"}},
			{"description": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	total, err := c.actions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "action_name", Value: 1}})
	if f.Skip > 0 {
		opts = opts.SetSkip(int64(f.Skip))
	}
	if f.Limit > 0 {
		opts = opts.SetLimit(int64(f.Limit))
	}
	cur, err := c.actions.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	out := []*catalog.Action{}
	for cur.Next(ctx) {
		var doc actionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		out = append(out, doc.toAction())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

type actionDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ActionName  string             `bson:"action_name"`
	DisplayName string             `bson:"display_name,omitempty"`
	ClassName   string             `bson:"class_name"`
	MethodName  string             `bson:"method_name"`
	Domain      string             `bson:"domain"`
	Endpoint    string             `bson:"endpoint"`
	HTTPMethod  string             `bson:"http_method"`
	Description string             `bson:"description,omitempty"`
	Parameters  map[string]any     `bson:"parameters"`
	Returns     map[string]any     `bson:"returns"`
	Category    string             `bson:"category,omitempty"`
	Tags        []string           `bson:"tags"`
	IsActive    bool               `bson:"is_active"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func fromAction(a *catalog.Action) actionDocument {
	return actionDocument{
		ActionName:  a.ActionName,
		DisplayName: a.DisplayName,
		ClassName:   a.ClassName,
		MethodName:  a.MethodName,
		Domain:      a.Domain,
		Endpoint:    a.Endpoint,
		HTTPMethod:  a.HTTPMethod,
		Description: a.Description,
		Parameters:  cloneMap(a.Parameters),
		Returns:     cloneMap(a.Returns),
		Category:    a.Category,
		Tags:        cloneStrings(a.Tags),
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func (doc actionDocument) toAction() *catalog.Action {
	return &catalog.Action{
		ID:          doc.ID.Hex(),
		ActionName:  doc.ActionName,
		DisplayName: doc.DisplayName,
		ClassName:   doc.ClassName,
		MethodName:  doc.MethodName,
		Domain:      doc.Domain,
		Endpoint:    doc.Endpoint,
		HTTPMethod:  doc.HTTPMethod,
		Description: doc.Description,
		Parameters:  cloneMap(doc.Parameters),
		Returns:     cloneMap(doc.Returns),
		Category:    doc.Category,
		Tags:        cloneStrings(doc.Tags),
		IsActive:    doc.IsActive,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
}
