package workflow

// Order produces a total execution order for the definition using Kahn's
// algorithm. Ties among ready nodes break on the insertion order of
// def.Nodes, so the order is stable across runs and replays.
//
// When the graph cannot be fully ordered (a cycle or dangling edge survived
// validation), the unordered remainder is appended in insertion order and
// complete is false; callers are expected to log that condition.
func Order(def Definition) (order []Node, complete bool) {
	ids := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		ids[n.ID] = true
	}

	indeg := make(map[string]int, len(def.Nodes))
	adj := make(map[string][]string, len(def.Nodes))
	for _, e := range def.Edges {
		if ids[e.Source] && ids[e.Target] {
			indeg[e.Target]++
			adj[e.Source] = append(adj[e.Source], e.Target)
		}
	}

	order = make([]Node, 0, len(def.Nodes))
	emitted := make(map[string]bool, len(def.Nodes))
	for len(order) < len(def.Nodes) {
		picked := false
		for _, n := range def.Nodes {
			if emitted[n.ID] || indeg[n.ID] != 0 {
				continue
			}
			emitted[n.ID] = true
			order = append(order, n)
			for _, t := range adj[n.ID] {
				indeg[t]--
			}
			picked = true
			break
		}
		if !picked {
			break
		}
	}

	if len(order) == len(def.Nodes) {
		return order, true
	}
	for _, n := range def.Nodes {
		if !emitted[n.ID] {
			order = append(order, n)
		}
	}
	return order, false
}
