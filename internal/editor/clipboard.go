package editor

import (
	"fmt"
	"math"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
)

// DuplicateOffset shifts duplicated nodes away from their originals.
var DuplicateOffset = dag.Position{X: 10, Y: 10}

// Copy serializes the selected nodes and the edges running between them. Nodes are
// deselected and their counters describe the clipboard graph alone. It returns nil
// when nothing is selected.
func (e *Editor) Copy() ([]byte, error) {
	selected := e.SelectedNodes()
	if len(selected) == 0 {
		return nil, nil
	}
	clip := dag.Graph{Nodes: make([]dag.Node, len(selected))}
	ids := make(map[string]bool, len(selected))
	for i, n := range selected {
		n = n.Clone()
		n.Selected = false
		n.Data.EditorRef = nil
		clip.Nodes[i] = n
		ids[n.ID] = true
	}
	for _, ed := range e.graph.Edges {
		if ids[ed.Source] && ids[ed.Target] {
			ed.Selected = false
			clip.Edges = append(clip.Edges, ed)
		}
	}
	recountConnections(&clip)
	return dag.Marshal(clip)
}

// Paste adds a clipboard graph with fresh ids. With at set, the pasted block's
// top-left corner lands there; offset is added on top. Pasted elements become the
// only selection.
func (e *Editor) Paste(data []byte, at *dag.Position, offset dag.Position) error {
	clip, err := dag.Parse(data)
	if err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	if clip.IsEmpty() {
		return nil
	}

	shift := offset
	if at != nil && len(clip.Nodes) > 0 {
		minX, minY := math.Inf(1), math.Inf(1)
		for _, n := range clip.Nodes {
			minX = math.Min(minX, n.Position.X)
			minY = math.Min(minY, n.Position.Y)
		}
		shift.X += at.X - minX
		shift.Y += at.Y - minY
	}

	// A rejected paste still consumes ids.
	renamed := make(map[string]string, len(clip.Nodes))
	for i := range clip.Nodes {
		n := &clip.Nodes[i]
		id := e.newNodeID()
		renamed[n.ID] = id
		n.ID = id
		n.Selected = true
		n.Position.X += shift.X
		n.Position.Y += shift.Y
		n.Data.EditorRef = e
	}
	for i := range clip.Edges {
		ed := &clip.Edges[i]
		ed.ID = e.newEdgeID()
		ed.Selected = true
		ed.Source = renamed[ed.Source]
		ed.Target = renamed[ed.Target]
	}

	return e.Apply(
		Change{Kind: ChangeDeselect},
		Change{Kind: ChangeAdd, Graph: clip},
	)
}

// Cut copies the selection and removes it.
func (e *Editor) Cut() ([]byte, error) {
	data, err := e.Copy()
	if err != nil || data == nil {
		return data, err
	}
	if err := e.RemoveSelected(); err != nil {
		return nil, err
	}
	return data, nil
}

// Duplicate pastes a copy of the selection next to it.
func (e *Editor) Duplicate() error {
	data, err := e.Copy()
	if err != nil || data == nil {
		return err
	}
	return e.Paste(data, nil, DuplicateOffset)
}
