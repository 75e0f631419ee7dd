package dag

import "reflect"

// ChangedNodes returns the nodes of next whose generated code may differ from prev.
// With no previous snapshot every node is changed. A node is unchanged when its
// extraRun, the feeding (source, sourceHandle) pair or default value of every input,
// and its output names all match the snapshot.
func ChangedNodes(prev *Graph, next Graph) []Node {
	if prev == nil {
		return next.Nodes
	}
	prevNodes := make(map[string]Node, len(prev.Nodes))
	for _, n := range prev.Nodes {
		prevNodes[n.ID] = n
	}
	prevIn := feeders(*prev)
	nextIn := feeders(next)

	var changed []Node
	for _, n := range next.Nodes {
		p, ok := prevNodes[n.ID]
		if !ok || !sameCode(p, prevIn, n, nextIn) {
			changed = append(changed, n)
		}
	}
	return changed
}

// FindCodeChangedGraph returns the descendants of every changed node, which is the part
// of next that must be regenerated. It returns false when nothing changed.
func FindCodeChangedGraph(prev *Graph, next Graph) (Graph, bool) {
	changed := ChangedNodes(prev, next)
	ids := make([]string, len(changed))
	for i, n := range changed {
		ids[i] = n.ID
	}
	return ConnectedSubgraph(next, ids, true, nil)
}

type feederKey struct{ node, handle string }

func feeders(g Graph) map[feederKey]Edge {
	m := make(map[feederKey]Edge, len(g.Edges))
	for _, e := range g.Edges {
		k := feederKey{e.Target, e.TargetHandle}
		if _, ok := m[k]; !ok {
			m[k] = e
		}
	}
	return m
}

func sameCode(a Node, aIn map[feederKey]Edge, b Node, bIn map[feederKey]Edge) bool {
	if a.Data.ExtraRun != b.Data.ExtraRun {
		return false
	}
	if len(a.Data.Inputs) != len(b.Data.Inputs) || len(a.Data.Outputs) != len(b.Data.Outputs) {
		return false
	}
	for i, ha := range a.Data.Inputs {
		hb := b.Data.Inputs[i]
		ea, connectedA := aIn[feederKey{a.ID, ha.ID}]
		eb, connectedB := bIn[feederKey{b.ID, hb.ID}]
		switch {
		case connectedA && connectedB:
			if ea.Source != eb.Source || ea.SourceHandle != eb.SourceHandle {
				return false
			}
		case connectedA || connectedB:
			return false
		default:
			if !reflect.DeepEqual(ha.DefaultValue, hb.DefaultValue) {
				return false
			}
		}
	}
	for i, ha := range a.Data.Outputs {
		if ha.Name != b.Data.Outputs[i].Name {
			return false
		}
	}
	return true
}
