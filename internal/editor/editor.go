// Package editor owns one live graph and funnels every structural change through a
// single apply step that keeps derived state (connection counters, sync groups)
// consistent. An Editor is not safe for concurrent use.
package editor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
	"github.com/gyaneshwarpardhi/flowcode/internal/widget"
)

var (
	// ErrUnknownNode is returned (wrapped) when an operation names a node not in the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownEdge is returned (wrapped) when an operation names an edge not in the graph.
	ErrUnknownEdge = errors.New("unknown edge")
)

// Editor is the graph mutation engine for one editing surface.
type Editor struct {
	id      string
	catalog *nodespec.Catalog
	gen     *codegen.Generator
	logger  *slog.Logger
	dirFS   func(dir string) fs.FS

	graph      dag.Graph
	prev       *dag.Graph
	nextNodeID int
	nextEdgeID int
	listeners  []func(dag.Graph)
}

// Option configures an Editor.
type Option func(*Editor)

// WithID fixes the editor id. It panics unless dag.ValidID(id) holds, since the id
// prefixes every generated variable name.
func WithID(id string) Option {
	if !dag.ValidID(id) {
		panic(fmt.Sprintf("editor: invalid id %q", id))
	}
	return func(e *Editor) { e.id = id }
}

// WithLogger sets the editor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// WithDirFS replaces how batch folders are opened; tests pass in-memory trees.
func WithDirFS(open func(dir string) fs.FS) Option {
	return func(e *Editor) { e.dirFS = open }
}

// New creates an empty editor.
func New(catalog *nodespec.Catalog, gen *codegen.Generator, opts ...Option) *Editor {
	e := &Editor{
		id:      "e" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		catalog: catalog,
		gen:     gen,
		logger:  slog.Default(),
		dirFS:   os.DirFS,

		nextNodeID: 1,
		nextEdgeID: 1,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("editor", e.id)
	return e
}

// ID returns the editor id used to derive variable names.
func (e *Editor) ID() string { return e.id }

// Graph returns a copy of the current graph without editor back-references.
func (e *Editor) Graph() dag.Graph {
	return dag.StripEditorRefs(e.graph)
}

// OnChange registers a listener called with a stripped copy after every committed change.
func (e *Editor) OnChange(fn func(dag.Graph)) {
	e.listeners = append(e.listeners, fn)
}

// Load replaces the graph with one from an external source and reseeds the id
// counters past the largest numeric node and edge ids.
func (e *Editor) Load(g dag.Graph) error {
	if err := dag.Validate(g); err != nil {
		return err
	}
	g = g.Clone()
	for i := range g.Nodes {
		g.Nodes[i].Data.EditorRef = e
	}
	if err := e.commit(g); err != nil {
		return err
	}
	e.nextNodeID = nextID(g.NodeIDs())
	edgeIDs := make([]string, len(g.Edges))
	for i, ed := range g.Edges {
		edgeIDs[i] = ed.ID
	}
	e.nextEdgeID = nextID(edgeIDs)
	return nil
}

// LoadJSON parses a persisted graph and loads it. A malformed document leaves the
// editor untouched.
func (e *Editor) LoadJSON(data []byte) error {
	g, err := dag.Parse(data)
	if err != nil {
		return err
	}
	return e.Load(g)
}

// nextID returns one past the largest numeric id. Non-numeric ids are ignored.
func nextID(ids []string) int {
	max := 0
	for _, id := range ids {
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

func (e *Editor) newNodeID() string {
	id := strconv.Itoa(e.nextNodeID)
	e.nextNodeID++
	return id
}

func (e *Editor) newEdgeID() string {
	id := strconv.Itoa(e.nextEdgeID)
	e.nextEdgeID++
	return id
}

// commit recomputes derived state on g, checks the graph invariants and publishes g.
// On error the current graph is left as it was.
func (e *Editor) commit(g dag.Graph) error {
	recountConnections(&g)
	assignSyncGroups(&g)
	if err := dag.Validate(g); err != nil {
		return fmt.Errorf("apply changes: %w", err)
	}
	e.graph = g
	if len(e.listeners) > 0 {
		snapshot := dag.StripEditorRefs(g)
		for _, fn := range e.listeners {
			fn(snapshot)
		}
	}
	return nil
}

// recountConnections derives every handle's connection count from the edge list.
func recountConnections(g *dag.Graph) {
	in := make(map[[2]string]int, len(g.Edges))
	out := make(map[[2]string]int, len(g.Edges))
	for _, ed := range g.Edges {
		in[[2]string{ed.Target, ed.TargetHandle}]++
		out[[2]string{ed.Source, ed.SourceHandle}]++
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		for j := range n.Data.Inputs {
			n.Data.Inputs[j].Connections = in[[2]string{n.ID, n.Data.Inputs[j].ID}]
		}
		for j := range n.Data.Outputs {
			n.Data.Outputs[j].Connections = out[[2]string{n.ID, n.Data.Outputs[j].ID}]
		}
	}
}

// assignSyncGroups tags every image viewer output with its node's sync group index,
// clearing the tag on nodes outside any group.
func assignSyncGroups(g *dag.Graph) {
	groups := dag.GroupIndex(dag.SourceChangerGroups(*g))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		idx, grouped := groups[n.ID]
		for j := range n.Data.Outputs {
			out := &n.Data.Outputs[j]
			if !widget.IsViewer(*out) {
				continue
			}
			w := *out.Widget
			if grouped {
				v := idx
				w.SyncGroup = &v
			} else {
				w.SyncGroup = nil
			}
			out.Widget = &w
		}
	}
}

func (e *Editor) nodeIndex(id string) (int, error) {
	for i, n := range e.graph.Nodes {
		if n.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("node %q: %w", id, ErrUnknownNode)
}
