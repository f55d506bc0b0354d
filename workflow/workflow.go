// Package workflow defines the versioned workflow entity and the node/edge
// graph it carries, along with structural validation and topological ordering
// of submitted graphs. The graph is stored exactly as the canvas submits it:
// nodes keyed by id, edges referencing node ids, no pointers between them.
package workflow

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a workflow id does not resolve.
var ErrNotFound = errors.New("workflow not found")

// Node types understood by the executor.
const (
	NodeTypeAction    = "action"
	NodeTypeCondition = "condition"
	NodeTypeLoop      = "loop"
)

// Edge types understood by the canvas.
const (
	EdgeTypeDefault     = "default"
	EdgeTypeConditional = "conditional"
)

type (
	// Record is a persisted workflow. Version increases monotonically on every
	// update; (Name, Version) is unique. Deleting a workflow only clears
	// IsActive so past executions keep a valid reference.
	Record struct {
		ID          string
		Name        string
		Description string
		Version     int
		IsActive    bool
		Config      Definition
		CreatedBy   string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Definition is the graph configuration of a workflow: the wire format
	// exchanged with the canvas and handed to the executor.
	Definition struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}

	// Node is a single typed vertex. Data carries the action name plus an
	// opaque per-node configuration; Position is presentational only and
	// ignored by the executor.
	Node struct {
		ID       string         `json:"id"`
		Type     string         `json:"type"`
		Data     map[string]any `json:"data,omitempty"`
		Position Position       `json:"position"`
	}

	// Position locates a node on the canvas.
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Edge is a directed connection between two nodes of the same workflow.
	Edge struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Target string `json:"target"`
		Type   string `json:"type,omitempty"`
		Label  string `json:"label,omitempty"`
	}

	// Patch carries the fields of a workflow update. Nil fields keep the
	// stored value; any update bumps the version.
	Patch struct {
		Name        *string
		Description *string
		Config      *Definition
	}
)

// ActionName returns the catalog action name the node references, or "" when
// the node carries none.
func (n Node) ActionName() string {
	s, _ := n.Data["action_name"].(string)
	return s
}

// ConfigMap returns the node's opaque configuration mapping, or nil.
func (n Node) ConfigMap() map[string]any {
	m, _ := n.Data["config"].(map[string]any)
	return m
}

// Condition returns the comparator expression of a condition node, or "".
func (n Node) Condition() string {
	s, _ := n.Data["condition"].(string)
	return s
}

// Collection returns the dot path a loop node iterates over, or "".
func (n Node) Collection() string {
	s, _ := n.Data["collection"].(string)
	return s
}

// Label returns the display label of the node, or "".
func (n Node) Label() string {
	s, _ := n.Data["label"].(string)
	return s
}
