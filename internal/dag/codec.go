package dag

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parse decodes a persisted or pasted graph document and validates it.
// It never returns a partially decoded graph.
func Parse(data []byte) (Graph, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Graph{}, &ParseError{Msg: "empty document"}
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return Graph{}, &ParseError{Msg: "decode json", Err: err}
	}
	if err := Validate(g); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// Marshal encodes g in the persisted format with editor back-references stripped.
func Marshal(g Graph) ([]byte, error) {
	g = StripEditorRefs(g)
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	return b, nil
}

// Validate checks the structural invariants: unique alphanumeric node and handle ids,
// edges referencing existing nodes and handles, at most one edge per target handle,
// and acyclicity.
func Validate(g Graph) error {
	nodes := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return &StructuralError{Msg: "node with empty id"}
		}
		if !ValidID(n.ID) {
			return &StructuralError{Element: n.ID, Msg: "node id must contain only letters and digits"}
		}
		if _, dup := nodes[n.ID]; dup {
			return &StructuralError{Element: n.ID, Msg: "duplicate node id"}
		}
		if err := validateHandles(n); err != nil {
			return err
		}
		nodes[n.ID] = n
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	targets := make(map[string]string, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID == "" {
			return &StructuralError{Msg: "edge with empty id"}
		}
		if edgeIDs[e.ID] {
			return &StructuralError{Element: e.ID, Msg: "duplicate edge id"}
		}
		edgeIDs[e.ID] = true

		src, ok := nodes[e.Source]
		if !ok {
			return &StructuralError{Element: e.ID, Msg: fmt.Sprintf("unknown source node %q", e.Source)}
		}
		dst, ok := nodes[e.Target]
		if !ok {
			return &StructuralError{Element: e.ID, Msg: fmt.Sprintf("unknown target node %q", e.Target)}
		}
		if _, ok := src.Output(e.SourceHandle); !ok {
			return &StructuralError{Element: e.ID, Msg: fmt.Sprintf("node %q has no output %q", e.Source, e.SourceHandle)}
		}
		if _, ok := dst.Input(e.TargetHandle); !ok {
			return &StructuralError{Element: e.ID, Msg: fmt.Sprintf("node %q has no input %q", e.Target, e.TargetHandle)}
		}
		key := e.Target + "\x00" + e.TargetHandle
		if prev, taken := targets[key]; taken {
			return &StructuralError{Element: e.ID, Msg: fmt.Sprintf("input %s.%s already fed by edge %q", e.Target, e.TargetHandle, prev)}
		}
		targets[key] = e.ID
	}

	if c := FindCycle(g); c != nil {
		return &StructuralError{Element: c.ID, Msg: "edge closes a cycle"}
	}
	return nil
}

func validateHandles(n Node) error {
	seen := make(map[string]bool, len(n.Data.Inputs))
	for _, h := range n.Data.Inputs {
		if !ValidID(h.ID) {
			return &StructuralError{Element: n.ID, Msg: fmt.Sprintf("input handle id %q must contain only letters and digits", h.ID)}
		}
		if seen[h.ID] {
			return &StructuralError{Element: n.ID, Msg: fmt.Sprintf("duplicate input handle %q", h.ID)}
		}
		seen[h.ID] = true
	}
	clear(seen)
	for _, h := range n.Data.Outputs {
		if !ValidID(h.ID) {
			return &StructuralError{Element: n.ID, Msg: fmt.Sprintf("output handle id %q must contain only letters and digits", h.ID)}
		}
		if seen[h.ID] {
			return &StructuralError{Element: n.ID, Msg: fmt.Sprintf("duplicate output handle %q", h.ID)}
		}
		seen[h.ID] = true
	}
	return nil
}
