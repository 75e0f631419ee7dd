package dag

const (
	unvisited = iota
	inProgress
	finished
)

// FindCycle runs a three-colour DFS over the adjacency built from g.Edges and returns
// the edge that closes a cycle, or nil. Pass a graph carrying a proposed extra edge to
// test a hypothetical edge set; g is never mutated.
func FindCycle(g Graph) *Edge {
	adj := make(map[string][]int, len(g.Nodes))
	for i, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], i)
	}
	state := make(map[string]int, len(g.Nodes))

	var visit func(id string) *Edge
	visit = func(id string) *Edge {
		state[id] = inProgress
		for _, i := range adj[id] {
			e := g.Edges[i]
			switch state[e.Target] {
			case inProgress:
				return &e
			case unvisited:
				if c := visit(e.Target); c != nil {
					return c
				}
			}
		}
		state[id] = finished
		return nil
	}

	for _, n := range g.Nodes {
		if state[n.ID] != unvisited {
			continue
		}
		if c := visit(n.ID); c != nil {
			return c
		}
	}
	return nil
}

// WithEdge returns a shallow view of g whose edge list has e appended.
// The node slice is shared; callers must treat the result as read-only.
func WithEdge(g Graph, e Edge) Graph {
	edges := make([]Edge, 0, len(g.Edges)+1)
	edges = append(edges, g.Edges...)
	return Graph{Nodes: g.Nodes, Edges: append(edges, e)}
}
