package editor

import (
	"fmt"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/metrics"
)

// Connection is a candidate edge drawn by the user.
type Connection struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

// Verdict classifies a candidate connection.
type Verdict string

const (
	Accept  Verdict = "accept"
	Reject  Verdict = "reject"
	Replace Verdict = "replace"
)

// ConnectionStatus is the validator's answer. Rejections are data, not errors.
type ConnectionStatus struct {
	Status  Verdict `json:"status"`
	Message string  `json:"message"`
}

// ValidateConnection checks c against g, in order: self loop, handle existence,
// type compatibility, cycles, then whether the target handle is already taken.
func ValidateConnection(g dag.Graph, c Connection) ConnectionStatus {
	st := validate(g, c)
	metrics.ConnectionValidations.WithLabelValues(string(st.Status)).Inc()
	return st
}

func validate(g dag.Graph, c Connection) ConnectionStatus {
	if c.Source == c.Target {
		return ConnectionStatus{Reject, "Cannot connect to same node"}
	}

	var (
		src, dst     dag.Handle
		srcOK, dstOK bool
	)
	if n, ok := g.Node(c.Source); ok {
		src, srcOK = n.Output(c.SourceHandle)
	}
	if n, ok := g.Node(c.Target); ok {
		dst, dstOK = n.Input(c.TargetHandle)
	}
	if !srcOK || !dstOK {
		return ConnectionStatus{Reject, "Directions not compatible."}
	}

	if !dag.IsSameType(src.Type, dst.Type) {
		return ConnectionStatus{Reject, fmt.Sprintf("%q and %q not compatible.", src.Type.String(), dst.Type.String())}
	}

	if dag.FindCycle(dag.WithEdge(g, c.edge("temp"))) != nil {
		return ConnectionStatus{Reject, "Cycle detected"}
	}

	if g.InputConnections(c.Target, c.TargetHandle) > 0 {
		return ConnectionStatus{Replace, "Replace existing connection"}
	}
	return ConnectionStatus{Accept, "Connection valid"}
}

func (c Connection) edge(id string) dag.Edge {
	return dag.Edge{
		ID:           id,
		Source:       c.Source,
		SourceHandle: c.SourceHandle,
		Target:       c.Target,
		TargetHandle: c.TargetHandle,
	}
}

// ValidateConnection checks c against the editor's current graph.
func (e *Editor) ValidateConnection(c Connection) ConnectionStatus {
	return ValidateConnection(e.graph, c)
}

// Connect validates c and, unless rejected, adds it as a new edge. On replace the
// edges already ending at the target handle are removed in the same step.
// The returned status is meaningful even when the error is nil and nothing changed.
func (e *Editor) Connect(c Connection) (ConnectionStatus, error) {
	st := e.ValidateConnection(c)
	if st.Status == Reject {
		return st, nil
	}

	var changes []Change
	if st.Status == Replace {
		var stale []dag.Edge
		for _, ed := range e.graph.Edges {
			if ed.Target == c.Target && ed.TargetHandle == c.TargetHandle {
				stale = append(stale, ed)
			}
		}
		changes = append(changes, Change{Kind: ChangeRemove, Graph: dag.Graph{Edges: stale}})
	}
	changes = append(changes, Change{Kind: ChangeAdd, Graph: dag.Graph{Edges: []dag.Edge{c.edge(e.newEdgeID())}}})

	if err := e.Apply(changes...); err != nil {
		return st, err
	}
	e.logger.Debug("connected", "source", c.Source, "target", c.Target, "status", st.Status)
	return st, nil
}
