package editor

import (
	"fmt"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/metrics"
)

// ChangeKind tags a change record.
type ChangeKind string

const (
	ChangeAdd      ChangeKind = "add"
	ChangeRemove   ChangeKind = "remove"
	ChangeSelect   ChangeKind = "select"
	ChangeDeselect ChangeKind = "deselect"
)

// Change is one record of a change-list. Graph carries the nodes and edges to add or
// remove; select and deselect ignore it and apply to every element.
type Change struct {
	Kind  ChangeKind `json:"type"`
	Graph dag.Graph  `json:"changedGraph"`
}

// Apply runs an ordered change-list as one step. Either every change lands and the
// new graph is published, or the editor keeps its previous graph.
func (e *Editor) Apply(changes ...Change) error {
	g := e.graph.Clone()
	for _, c := range changes {
		switch c.Kind {
		case ChangeAdd:
			g = addElements(g, c.Graph)
		case ChangeRemove:
			g = removeElements(g, c.Graph)
		case ChangeSelect:
			g = selectAll(g, true)
		case ChangeDeselect:
			g = selectAll(g, false)
		default:
			return fmt.Errorf("apply changes: unknown change kind %q", c.Kind)
		}
	}
	if err := e.commit(g); err != nil {
		return err
	}
	for _, c := range changes {
		metrics.GraphChanges.WithLabelValues(string(c.Kind)).Inc()
	}
	return nil
}

func addElements(g, added dag.Graph) dag.Graph {
	added = added.Clone()
	g.Nodes = append(g.Nodes, added.Nodes...)
	g.Edges = append(g.Edges, added.Edges...)
	return g
}

// removeElements drops the given nodes together with every edge touching them, plus
// the explicitly listed edges.
func removeElements(g, removed dag.Graph) dag.Graph {
	if removed.IsEmpty() {
		return g
	}
	nodes := make(map[string]bool, len(removed.Nodes))
	for _, n := range removed.Nodes {
		nodes[n.ID] = true
	}
	edges := make(map[string]bool, len(removed.Edges))
	for _, ed := range removed.Edges {
		edges[ed.ID] = true
	}

	out := dag.Graph{
		Nodes: make([]dag.Node, 0, len(g.Nodes)),
		Edges: make([]dag.Edge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		if !nodes[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, ed := range g.Edges {
		if !edges[ed.ID] && !nodes[ed.Source] && !nodes[ed.Target] {
			out.Edges = append(out.Edges, ed)
		}
	}
	return out
}

func selectAll(g dag.Graph, selected bool) dag.Graph {
	for i := range g.Nodes {
		g.Nodes[i].Selected = selected
	}
	for i := range g.Edges {
		g.Edges[i].Selected = selected
	}
	return g
}

// ElementUpdate moves or (de)selects one named element. Nil fields are left alone.
type ElementUpdate struct {
	ID       string        `json:"id"`
	Position *dag.Position `json:"position,omitempty"`
	Selected *bool         `json:"selected,omitempty"`
}

// UpdateElements applies drag and click updates to the named nodes and edges only.
// Positions of edges are ignored.
func (e *Editor) UpdateElements(nodes, edges []ElementUpdate) error {
	g := e.graph.Clone()
	nodeIdx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		nodeIdx[n.ID] = i
	}
	edgeIdx := make(map[string]int, len(g.Edges))
	for i, ed := range g.Edges {
		edgeIdx[ed.ID] = i
	}

	for _, u := range nodes {
		i, ok := nodeIdx[u.ID]
		if !ok {
			return fmt.Errorf("update node %q: %w", u.ID, ErrUnknownNode)
		}
		if u.Position != nil {
			g.Nodes[i].Position = *u.Position
		}
		if u.Selected != nil {
			g.Nodes[i].Selected = *u.Selected
		}
	}
	for _, u := range edges {
		i, ok := edgeIdx[u.ID]
		if !ok {
			return fmt.Errorf("update edge %q: %w", u.ID, ErrUnknownEdge)
		}
		if u.Selected != nil {
			g.Edges[i].Selected = *u.Selected
		}
	}
	return e.commit(g)
}

// AddNodeFromSpec instantiates a template at pos with a fresh id.
func (e *Editor) AddNodeFromSpec(specName string, pos dag.Position) (dag.Node, error) {
	s, err := e.catalog.Spec(specName)
	if err != nil {
		return dag.Node{}, fmt.Errorf("add node: %w", err)
	}
	n := s.Instantiate(e.newNodeID(), pos)
	n.Data.EditorRef = e
	if err := e.Apply(Change{Kind: ChangeAdd, Graph: dag.Graph{Nodes: []dag.Node{n}}}); err != nil {
		return dag.Node{}, err
	}
	n.Data.EditorRef = nil
	return n, nil
}

// SelectAll selects every node and edge.
func (e *Editor) SelectAll() error {
	return e.Apply(Change{Kind: ChangeSelect})
}

// DeselectAll clears every selection flag.
func (e *Editor) DeselectAll() error {
	return e.Apply(Change{Kind: ChangeDeselect})
}

// SelectedNodes returns the selected nodes.
func (e *Editor) SelectedNodes() []dag.Node {
	var out []dag.Node
	for _, n := range e.graph.Nodes {
		if n.Selected {
			out = append(out, n)
		}
	}
	return out
}

// SelectedEdges returns the selected edges.
func (e *Editor) SelectedEdges() []dag.Edge {
	var out []dag.Edge
	for _, ed := range e.graph.Edges {
		if ed.Selected {
			out = append(out, ed)
		}
	}
	return out
}

// RemoveSelected removes selected nodes (with their edges) and selected edges.
func (e *Editor) RemoveSelected() error {
	return e.Apply(Change{Kind: ChangeRemove, Graph: dag.Graph{Nodes: e.SelectedNodes(), Edges: e.SelectedEdges()}})
}

// SelectOnlyNode makes id the sole selection unless it is already selected,
// as when a context menu opens on a node.
func (e *Editor) SelectOnlyNode(id string) error {
	i, err := e.nodeIndex(id)
	if err != nil {
		return err
	}
	if e.graph.Nodes[i].Selected {
		return nil
	}
	g := e.graph.Clone()
	for j := range g.Nodes {
		g.Nodes[j].Selected = g.Nodes[j].ID == id
	}
	for j := range g.Edges {
		g.Edges[j].Selected = false
	}
	return e.commit(g)
}

// SelectOnlyEdge is SelectOnlyNode for edges.
func (e *Editor) SelectOnlyEdge(id string) error {
	found := false
	for _, ed := range e.graph.Edges {
		if ed.ID == id {
			if ed.Selected {
				return nil
			}
			found = true
		}
	}
	if !found {
		return fmt.Errorf("select edge %q: %w", id, ErrUnknownEdge)
	}
	g := e.graph.Clone()
	for j := range g.Nodes {
		g.Nodes[j].Selected = false
	}
	for j := range g.Edges {
		g.Edges[j].Selected = g.Edges[j].ID == id
	}
	return e.commit(g)
}

// Direction tells which side of a node a handle sits on.
type Direction string

const (
	Source Direction = "source"
	Target Direction = "target"
)

// DisconnectHandle removes every edge attached to one handle.
func (e *Editor) DisconnectHandle(nodeID, handleID string, dir Direction) error {
	if _, err := e.nodeIndex(nodeID); err != nil {
		return err
	}
	var edges []dag.Edge
	for _, ed := range e.graph.Edges {
		switch {
		case dir == Target && ed.Target == nodeID && ed.TargetHandle == handleID,
			dir == Source && ed.Source == nodeID && ed.SourceHandle == handleID:
			edges = append(edges, ed)
		}
	}
	return e.Apply(Change{Kind: ChangeRemove, Graph: dag.Graph{Edges: edges}})
}

// DisconnectNode removes every edge touching a node and keeps the node.
func (e *Editor) DisconnectNode(nodeID string) error {
	if _, err := e.nodeIndex(nodeID); err != nil {
		return err
	}
	return e.Apply(Change{Kind: ChangeRemove, Graph: dag.Graph{Edges: e.graph.EdgesTouching(nodeID)}})
}
