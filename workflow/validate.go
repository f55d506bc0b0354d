package workflow

import "fmt"

// ActionIndex reports whether an action name resolves to an active catalog
// entry. The catalog package provides the canonical implementation.
type ActionIndex interface {
	HasActive(name string) bool
}

// Validate decides whether a definition is a legal workflow graph. All checks
// run and all failures are accumulated so the caller can surface every
// problem at once:
//
//  1. the graph has at least one node,
//  2. every edge endpoint references an existing node,
//  3. the graph is acyclic,
//  4. at least one node has no incoming edge and at least one node has no
//     outgoing edge,
//  5. every action node names an active catalog entry.
//
// A nil index skips the catalog resolution check, which is how drafts are
// checked before the catalog is consulted.
func Validate(def Definition, actions ActionIndex) (bool, []string) {
	if len(def.Nodes) == 0 {
		return false, []string{"Workflow must have at least one node"}
	}

	var errs []string
	ids := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		ids[n.ID] = true
	}

	for _, e := range def.Edges {
		if !ids[e.Source] {
			errs = append(errs, fmt.Sprintf("Edge source '%s' references non-existent node", e.Source))
		}
		if !ids[e.Target] {
			errs = append(errs, fmt.Sprintf("Edge target '%s' references non-existent node", e.Target))
		}
	}

	if hasCycle(def) {
		errs = append(errs, "Workflow contains cycles, which are not allowed")
	}

	in := make(map[string]int, len(def.Nodes))
	out := make(map[string]int, len(def.Nodes))
	for _, e := range def.Edges {
		if ids[e.Source] && ids[e.Target] {
			out[e.Source]++
			in[e.Target]++
		}
	}
	hasStart, hasEnd := false, false
	for _, n := range def.Nodes {
		if in[n.ID] == 0 {
			hasStart = true
		}
		if out[n.ID] == 0 {
			hasEnd = true
		}
	}
	if !hasStart {
		errs = append(errs, "Workflow must have at least one start node (node with no incoming edges)")
	}
	if !hasEnd {
		errs = append(errs, "Workflow must have at least one end node (node with no outgoing edges)")
	}

	if actions != nil {
		for _, n := range def.Nodes {
			if n.Type != NodeTypeAction {
				continue
			}
			name := n.ActionName()
			if name == "" {
				errs = append(errs, fmt.Sprintf("Node '%s' is missing an action name", n.ID))
				continue
			}
			if !actions.HasActive(name) {
				errs = append(errs, fmt.Sprintf("Node '%s' references unknown or inactive action '%s'", n.ID, name))
			}
		}
	}

	return len(errs) == 0, errs
}

// hasCycle runs an iterative depth-first search with an explicit stack so
// large graphs cannot overflow the goroutine stack. A node on the current
// DFS path reached again through an out edge is a back edge.
func hasCycle(def Definition) bool {
	ids := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		ids[n.ID] = true
	}
	adj := make(map[string][]string, len(def.Nodes))
	for _, e := range def.Edges {
		if ids[e.Source] && ids[e.Target] {
			adj[e.Source] = append(adj[e.Source], e.Target)
		}
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(def.Nodes))

	type frame struct {
		id   string
		next int
	}

	for _, start := range def.Nodes {
		if color[start.ID] != white {
			continue
		}
		stack := []frame{{id: start.ID}}
		color[start.ID] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(adj[top.id]) {
				child := adj[top.id][top.next]
				top.next++
				switch color[child] {
				case grey:
					return true
				case white:
					color[child] = grey
					stack = append(stack, frame{id: child})
				}
				continue
			}
			color[top.id] = black
			stack = stack[:len(stack)-1]
		}
	}
	return false
}
