package dag

// ConnectedSubgraph collects the nodes reachable from seeds. Outgoing edges are always
// followed; incoming edges are followed too unless onlyDescendants is set. Excluded
// nodes are barriers that are never entered. Every edge touching a visited node is kept
// so inputs fed from outside the subgraph still resolve to upstream output names.
//
// It returns false when no seeds are given and g itself when the seeds cover every node.
func ConnectedSubgraph(g Graph, seeds []string, onlyDescendants bool, excluded []string) (Graph, bool) {
	if len(seeds) == 0 {
		return Graph{}, false
	}
	seedSet := stringSet(seeds)
	covered := true
	for _, n := range g.Nodes {
		if !seedSet[n.ID] {
			covered = false
			break
		}
	}
	if covered {
		return g, true
	}

	barrier := stringSet(excluded)
	outgoing := make(map[string][]int, len(g.Nodes))
	incoming := make(map[string][]int, len(g.Nodes))
	for i, e := range g.Edges {
		outgoing[e.Source] = append(outgoing[e.Source], i)
		incoming[e.Target] = append(incoming[e.Target], i)
	}

	visited := make(map[string]bool, len(g.Nodes))
	keepEdge := make([]bool, len(g.Edges))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, i := range outgoing[id] {
			keepEdge[i] = true
			if t := g.Edges[i].Target; !barrier[t] {
				visit(t)
			}
		}
		for _, i := range incoming[id] {
			keepEdge[i] = true
			if onlyDescendants {
				continue
			}
			if s := g.Edges[i].Source; !barrier[s] {
				visit(s)
			}
		}
	}
	for _, id := range seeds {
		visit(id)
	}

	var out Graph
	for _, n := range g.Nodes {
		if visited[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for i, e := range g.Edges {
		if keepEdge[i] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out, true
}
