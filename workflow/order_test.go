package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestOrderDiamondRespectsEdges(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			actionNode("a", "ping"),
			actionNode("b", "ping"),
			actionNode("c", "ping"),
			actionNode("d", "ping"),
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "d"},
			{ID: "e4", Source: "c", Target: "d"},
		},
	}
	order, complete := Order(def)
	require.True(t, complete)
	require.Equal(t, []string{"a", "b", "c", "d"}, nodeIDs(order))
}

func TestOrderTieBreaksOnInsertionOrder(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			actionNode("z", "ping"),
			actionNode("m", "ping"),
			actionNode("a", "ping"),
		},
	}
	order, complete := Order(def)
	require.True(t, complete)
	require.Equal(t, []string{"z", "m", "a"}, nodeIDs(order))
}

func TestOrderAppendsUnorderableRemainder(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			actionNode("a", "ping"),
			actionNode("b", "ping"),
			actionNode("c", "ping"),
		},
		Edges: []Edge{
			{ID: "e1", Source: "b", Target: "c"},
			{ID: "e2", Source: "c", Target: "b"},
		},
	}
	order, complete := Order(def)
	require.False(t, complete)
	require.Equal(t, []string{"a", "b", "c"}, nodeIDs(order))
}

func TestOrderRespectsEdgesOnGeneratedDAGs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every edge source precedes its target", prop.ForAll(
		func(seed []int) bool {
			def := dagFromSeed(seed)
			order, complete := Order(def)
			if !complete || len(order) != len(def.Nodes) {
				return false
			}
			pos := make(map[string]int, len(order))
			for i, n := range order {
				pos[n.ID] = i
			}
			for _, e := range def.Edges {
				if pos[e.Source] >= pos[e.Target] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// dagFromSeed derives an acyclic definition from an arbitrary int slice:
// node count from the seed length, edges only from lower to higher index.
func dagFromSeed(seed []int) Definition {
	n := len(seed)%7 + 2
	def := Definition{}
	for i := 0; i < n; i++ {
		def.Nodes = append(def.Nodes, actionNode(fmt.Sprintf("n%d", i), "ping"))
	}
	for i := 0; i+1 < len(seed); i += 2 {
		a, b := seed[i]%n, seed[i+1]%n
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		def.Edges = append(def.Edges, Edge{
			ID:     fmt.Sprintf("e%d", i),
			Source: fmt.Sprintf("n%d", a),
			Target: fmt.Sprintf("n%d", b),
		})
	}
	return def
}

func nodeIDs(order []Node) []string {
	out := make([]string, len(order))
	for i, n := range order {
		out[i] = n.ID
	}
	return out
}
