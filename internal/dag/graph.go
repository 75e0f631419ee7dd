// Package dag holds the node graph model and the pure algorithms over it:
// type matching, cycle detection, topological ordering, subgraph extraction,
// synchronization-group segmentation and incremental diffing.
package dag

// Graph is the owned aggregate of nodes and edges. Operations treat Graph values as
// immutable and return new values; use Clone before mutating a shared one.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// IsEmpty reports whether the graph has no nodes and no edges.
func (g Graph) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeCount returns the number of nodes.
func (g Graph) NodeCount() int {
	return len(g.Nodes)
}

// NodeIDs returns the ids of all nodes in graph order.
func (g Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// IncomingEdges returns the edges ending at nodeID, in edge order.
func (g Graph) IncomingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges leaving nodeID through handleID.
// An empty handleID matches every output handle.
func (g Graph) OutgoingEdges(nodeID, handleID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID && (handleID == "" || e.SourceHandle == handleID) {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTouching returns the edges incident to any of the given nodes, each once.
func (g Graph) EdgesTouching(nodeIDs ...string) []Edge {
	set := stringSet(nodeIDs)
	var out []Edge
	for _, e := range g.Edges {
		if set[e.Source] || set[e.Target] {
			out = append(out, e)
		}
	}
	return out
}

// InputConnections counts edges ending at the given input handle.
func (g Graph) InputConnections(nodeID, handleID string) int {
	n := 0
	for _, e := range g.Edges {
		if e.Target == nodeID && e.TargetHandle == handleID {
			n++
		}
	}
	return n
}

// StripEditorRefs returns a deep copy of g with every editor back-reference removed.
// Clipboard and persistence paths serialize the result.
func StripEditorRefs(g Graph) Graph {
	out := g.Clone()
	for i := range out.Nodes {
		out.Nodes[i].Data.EditorRef = nil
	}
	return out
}

func stringSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
