package editor

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
)

// Value categories accepted by SetValue.
const (
	CategoryInputs     = "inputs"
	CategoryOutputs    = "outputs"
	CategoryProperties = "properties"
)

// SetValue writes a handle default or a node property. Properties are extraRun,
// sourceChanged, displayLabel and description. Changing a batch node's folder clears
// its item selection.
func (e *Editor) SetValue(category, nodeID, id string, value any) error {
	i, err := e.nodeIndex(nodeID)
	if err != nil {
		return err
	}
	g := e.graph.Clone()
	n := &g.Nodes[i]

	switch category {
	case CategoryInputs, CategoryOutputs:
		hs := n.Data.Inputs
		if category == CategoryOutputs {
			hs = n.Data.Outputs
		}
		found := false
		for j := range hs {
			if hs[j].ID == id {
				hs[j].DefaultValue = value
				found = true
			}
		}
		if !found {
			return fmt.Errorf("set value: node %q has no %s handle %q", nodeID, strings.TrimSuffix(category, "s"), id)
		}
		if category == CategoryInputs && n.Data.SpecName == nodespec.BatchProcessName && id == "in0" && len(hs) > 1 {
			hs[1].DefaultValue = []any{}
		}
	case CategoryProperties:
		if err := setProperty(n, id, value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("set value: unknown category %q", category)
	}
	return e.commit(g)
}

func setProperty(n *dag.Node, key string, value any) error {
	switch key {
	case "extraRun":
		switch v := value.(type) {
		case int:
			n.Data.ExtraRun = v
		case float64:
			if v != math.Trunc(v) {
				return fmt.Errorf("set value: extraRun must be a whole number, got %v", v)
			}
			n.Data.ExtraRun = int(v)
		case nil:
			n.Data.ExtraRun = 0
		default:
			return fmt.Errorf("set value: extraRun must be a number, got %T", value)
		}
		if n.Data.ExtraRun < 0 {
			return fmt.Errorf("set value: extraRun must not be negative")
		}
	case "sourceChanged":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("set value: sourceChanged must be a boolean, got %T", value)
		}
		n.Data.SourceChanged = b
	case "displayLabel", "description":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("set value: %s must be a string, got %T", key, value)
		}
		if key == "displayLabel" {
			n.Data.DisplayLabel = s
		} else {
			n.Data.Description = s
		}
	default:
		return fmt.Errorf("set value: unknown property %q", key)
	}
	return nil
}

// UpdateInspection stores a value reported by generated code on the handle its
// variable name refers to. Variables of other editors are ignored.
func (e *Editor) UpdateInspection(handleVar string, value any) error {
	editorID, nodeID, handleID, ok := dag.SplitHandleVar(handleVar)
	if !ok {
		return fmt.Errorf("update inspection: malformed handle variable %q", handleVar)
	}
	if editorID != e.id {
		return nil
	}
	i, err := e.nodeIndex(nodeID)
	if err != nil {
		return err
	}
	g := e.graph.Clone()
	n := &g.Nodes[i]
	for _, hs := range [][]dag.Handle{n.Data.Inputs, n.Data.Outputs} {
		for j := range hs {
			if hs[j].ID != handleID {
				continue
			}
			w := dag.Widget{}
			if hs[j].Widget != nil {
				w = *hs[j].Widget
			}
			w.Value = value
			hs[j].Widget = &w
		}
	}
	return e.commit(g)
}

// NotReadyNodes lists, per node id, the input names that block execution. An input
// with a widget needs a value; an input without one needs an edge or a default.
func (e *Editor) NotReadyNodes() map[string][]string {
	out := map[string][]string{}
	for _, n := range e.graph.Nodes {
		for _, in := range n.Data.Inputs {
			if in.DefaultValue != nil {
				continue
			}
			if in.WidgetType() == "" && e.graph.InputConnections(n.ID, in.ID) > 0 {
				continue
			}
			out[n.ID] = append(out[n.ID], in.Name)
		}
	}
	return out
}

// Ready reports whether every node has what it needs to run.
func (e *Editor) Ready() bool {
	return len(e.NotReadyNodes()) == 0
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".tif": true, ".tiff": true, ".gif": true, ".webp": true,
}

// SelectBatchItems expands pattern inside a batch node's folder and stores the
// matching image paths, relative to the folder, as the node's item selection.
func (e *Editor) SelectBatchItems(nodeID, pattern string) ([]string, error) {
	i, err := e.nodeIndex(nodeID)
	if err != nil {
		return nil, err
	}
	n := e.graph.Nodes[i]
	if n.Data.SpecName != nodespec.BatchProcessName || len(n.Data.Inputs) < 2 {
		return nil, fmt.Errorf("select batch items: node %q is not a batch node", nodeID)
	}
	dir, _ := n.Data.Inputs[0].DefaultValue.(string)
	if dir == "" {
		return nil, fmt.Errorf("select batch items: node %q has no folder", nodeID)
	}
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("select batch items: bad pattern %q", pattern)
	}

	fsys := e.dirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("select batch items: %w", err)
	}
	var paths []string
	for _, m := range matches {
		if imageExts[strings.ToLower(path.Ext(m))] {
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	items := make([]any, len(paths))
	for j, p := range paths {
		items[j] = p
	}
	g := e.graph.Clone()
	g.Nodes[i].Data.Inputs[1].DefaultValue = items
	if err := e.commit(g); err != nil {
		return nil, err
	}
	return paths, nil
}
