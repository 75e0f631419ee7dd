package editor

import (
	"time"

	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/metrics"
)

// PendingGraph returns the graph the next Code call would generate from. With
// incremental set only the descendants of nodes changed since the last generation
// are returned. The bool is false when the editor is not ready or nothing changed.
func (e *Editor) PendingGraph(incremental bool) (dag.Graph, bool) {
	if !e.Ready() {
		return dag.Graph{}, false
	}
	if !incremental {
		return e.graph, true
	}
	return dag.FindCodeChangedGraph(e.prev, e.graph)
}

// Code generates source for the pending graph and, on success, records the whole
// current graph as the snapshot for the next incremental call. It returns a nil
// program when there is nothing to run.
func (e *Editor) Code(incremental, instrument bool) (*codegen.Program, error) {
	mode := metrics.ModeFull
	if incremental {
		mode = metrics.ModeIncremental
	}

	sub, ok := e.PendingGraph(incremental)
	if !ok {
		if nr := e.NotReadyNodes(); len(nr) > 0 {
			e.logger.Info("graph not ready for execution", "nodes", len(nr))
		}
		metrics.CodeGenerations.WithLabelValues(mode, "empty").Inc()
		return nil, nil
	}

	start := time.Now()
	p, err := e.gen.CodeFromGraph(e.id, sub, instrument)
	metrics.GenerationDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.CodeGenerations.WithLabelValues(mode, "error").Inc()
		return nil, err
	}

	snapshot := e.graph.Clone()
	e.prev = &snapshot
	metrics.CodeGenerations.WithLabelValues(mode, "ok").Inc()
	metrics.ObserveProgram(p.Generated, len(p.Diagnostics))
	e.logger.Debug("generated code", "mode", mode, "nodes", sub.NodeCount(), "skipped", len(p.Diagnostics))
	return p, nil
}

// ResetSnapshot forgets the last generation so the next incremental call covers
// the whole graph, as after a kernel restart.
func (e *Editor) ResetSnapshot() {
	e.prev = nil
}
