package dag

import "log/slog"

// TopologicalSort orders nodes with Kahn's algorithm. The initial queue is seeded in
// node order and successors are enqueued in edge order, so ties are stable.
// Nodes left over (only possible when g has a cycle) are appended in their original
// order and reported as an integrity violation.
func TopologicalSort(g Graph) []Node {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := index[n.ID]; !dup {
			index[n.ID] = i
		}
	}
	inDegree := make([]int, len(g.Nodes))
	succ := make([][]int, len(g.Nodes))
	for _, e := range g.Edges {
		s, ok := index[e.Source]
		if !ok {
			continue
		}
		t, ok := index[e.Target]
		if !ok {
			continue
		}
		succ[s] = append(succ[s], t)
		inDegree[t]++
	}

	queue := make([]int, 0, len(g.Nodes))
	for i := range g.Nodes {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]Node, 0, len(g.Nodes))
	placed := make([]bool, len(g.Nodes))
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		order = append(order, g.Nodes[i])
		placed[i] = true
		for _, t := range succ[i] {
			inDegree[t]--
			if inDegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}

	if len(order) < len(g.Nodes) {
		var stray []string
		for i, n := range g.Nodes {
			if !placed[i] {
				order = append(order, n)
				stray = append(stray, n.ID)
			}
		}
		slog.Warn("graph contains nodes unreachable by topological sort", "nodes", stray)
	}
	return order
}
