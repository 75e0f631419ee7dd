package dag

// SourceChangerGroups partitions the nodes reachable from sourceChanged nodes into
// synchronization groups. A group starts at a flagged node and extends along outgoing
// edges up to, but not including, the next flagged nodes, which seed the following
// groups. Flagged nodes never reached from another group start their own traversal.
// Each node lands in at most one group; nodes inside a group keep graph order.
func SourceChangerGroups(g Graph) [][]Node {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}
	succ := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if _, ok := index[e.Target]; ok {
			succ[e.Source] = append(succ[e.Source], e.Target)
		}
	}

	visited := make(map[string]bool, len(g.Nodes))
	var groups [][]Node

	var collect func(start string)
	collect = func(start string) {
		members := make(map[string]bool)
		var next []string
		var walk func(id string)
		walk = func(id string) {
			if visited[id] {
				return
			}
			visited[id] = true
			members[id] = true
			for _, t := range succ[id] {
				if g.Nodes[index[t]].Data.SourceChanged {
					next = append(next, t)
					continue
				}
				walk(t)
			}
		}
		walk(start)

		group := make([]Node, 0, len(members))
		for _, n := range g.Nodes {
			if members[n.ID] {
				group = append(group, n)
			}
		}
		groups = append(groups, group)

		for _, id := range next {
			if !visited[id] {
				collect(id)
			}
		}
	}

	for _, n := range g.Nodes {
		if n.Data.SourceChanged && !visited[n.ID] {
			collect(n.ID)
		}
	}
	return groups
}

// GroupIndex maps every grouped node id to its group index.
func GroupIndex(groups [][]Node) map[string]int {
	idx := make(map[string]int)
	for i, group := range groups {
		for _, n := range group {
			idx[n.ID] = i
		}
	}
	return idx
}
