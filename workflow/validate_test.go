package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type indexStub map[string]bool

func (s indexStub) HasActive(name string) bool { return s[name] }

func TestValidateEmptyGraph(t *testing.T) {
	valid, errs := Validate(Definition{}, nil)
	require.False(t, valid)
	require.Equal(t, []string{"Workflow must have at least one node"}, errs)
}

func TestValidateAcceptsLinearGraph(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			actionNode("a", "ping"),
			actionNode("b", "notify"),
		},
		Edges: []Edge{{ID: "e1", Source: "a", Target: "b"}},
	}
	valid, errs := Validate(def, indexStub{"ping": true, "notify": true})
	require.True(t, valid)
	require.Empty(t, errs)
}

func TestValidateDanglingEdgeEndpoints(t *testing.T) {
	def := Definition{
		Nodes: []Node{actionNode("a", "ping")},
		Edges: []Edge{{ID: "e1", Source: "ghost", Target: "a"}, {ID: "e2", Source: "a", Target: "gone"}},
	}
	valid, errs := Validate(def, nil)
	require.False(t, valid)
	require.Contains(t, errs, "Edge source 'ghost' references non-existent node")
	require.Contains(t, errs, "Edge target 'gone' references non-existent node")
}

func TestValidateRejectsCycle(t *testing.T) {
	def := Definition{
		Nodes: []Node{actionNode("a", "ping"), actionNode("b", "ping")},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	valid, errs := Validate(def, nil)
	require.False(t, valid)
	require.Contains(t, errs, "Workflow contains cycles, which are not allowed")
	require.Contains(t, errs, "Workflow must have at least one start node (node with no incoming edges)")
	require.Contains(t, errs, "Workflow must have at least one end node (node with no outgoing edges)")
}

func TestValidateRejectsSelfLoop(t *testing.T) {
	def := Definition{
		Nodes: []Node{actionNode("a", "ping")},
		Edges: []Edge{{ID: "e1", Source: "a", Target: "a"}},
	}
	valid, errs := Validate(def, nil)
	require.False(t, valid)
	require.Contains(t, errs, "Workflow contains cycles, which are not allowed")
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			actionNode("a", "unknown"),
			actionNode("b", "ping"),
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
			{ID: "e3", Source: "x", Target: "b"},
		},
	}
	valid, errs := Validate(def, indexStub{"ping": true})
	require.False(t, valid)
	require.Len(t, errs, 5)
	require.Contains(t, errs, "Edge source 'x' references non-existent node")
	require.Contains(t, errs, "Workflow contains cycles, which are not allowed")
	require.Contains(t, errs, "Node 'a' references unknown or inactive action 'unknown'")
}

func TestValidateInactiveAction(t *testing.T) {
	def := Definition{Nodes: []Node{actionNode("a", "retired")}}
	valid, errs := Validate(def, indexStub{"retired": false})
	require.False(t, valid)
	require.Equal(t, []string{"Node 'a' references unknown or inactive action 'retired'"}, errs)
}

func TestValidateMissingActionName(t *testing.T) {
	def := Definition{Nodes: []Node{{ID: "a", Type: NodeTypeAction}}}
	valid, errs := Validate(def, indexStub{})
	require.False(t, valid)
	require.Equal(t, []string{"Node 'a' is missing an action name"}, errs)
}

func TestValidateIgnoresCatalogForNonActionNodes(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			{ID: "c", Type: NodeTypeCondition, Data: map[string]any{"condition": "inputs.x == 1"}},
			{ID: "l", Type: NodeTypeLoop, Data: map[string]any{"collection": "inputs.items"}},
		},
		Edges: []Edge{{ID: "e1", Source: "c", Target: "l"}},
	}
	valid, errs := Validate(def, indexStub{})
	require.True(t, valid)
	require.Empty(t, errs)
}

func actionNode(id, action string) Node {
	return Node{ID: id, Type: NodeTypeAction, Data: map[string]any{"action_name": action, "config": map[string]any{}}}
}
