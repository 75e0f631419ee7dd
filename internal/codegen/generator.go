// Package codegen turns node graphs into target-language source text.
package codegen

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
	"github.com/gyaneshwarpardhi/flowcode/internal/registry"
	"github.com/gyaneshwarpardhi/flowcode/internal/widget"
)

// ErrMultipleBatchNodes is returned when a graph holds more than one batch node.
var ErrMultipleBatchNodes = errors.New("graph has more than one batch node")

// Diagnostic reports a node that produced no code.
type Diagnostic struct {
	NodeID   string `json:"nodeId"`
	SpecName string `json:"specName"`
	Message  string `json:"message"`
}

// Program is the result of a whole-graph generation.
type Program struct {
	Code        string       `json:"code"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Generated counts nodes whose template ran.
	Generated int `json:"generated"`
}

// Generator assembles code for nodes, subgraphs and whole graphs.
// It holds no per-graph state and is safe for concurrent use.
type Generator struct {
	catalog *nodespec.Catalog
	lang    Language
	widgets *widget.Registry
	inst    Instrumentation
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithInstrumentation replaces the capture collaborator.
func WithInstrumentation(inst Instrumentation) Option {
	return func(g *Generator) { g.inst = inst }
}

// WithWidgets replaces the widget registry used to pick literal types.
func WithWidgets(r *widget.Registry) Option {
	return func(g *Generator) { g.widgets = r }
}

// WithLogger sets the logger for skipped-node warnings.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator for one catalog and language.
func New(catalog *nodespec.Catalog, lang Language, opts ...Option) *Generator {
	g := &Generator{
		catalog: catalog,
		lang:    lang,
		widgets: widget.NewRegistry(),
		inst:    Jupyter{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Language returns the target language.
func (g *Generator) Language() Language { return g.lang }

type imageCapture struct {
	imageVar, handleID, referenceVar string
}

type histogramCapture struct {
	imageVar, handleID string
}

// NodeCode renders one node. incoming holds the edges ending at n. The error wraps
// registry.ErrNotFound or nodespec.ErrNoGenerator when no template exists, and
// nodespec.ErrNoVariant when the template has no variant for these inputs.
func (g *Generator) NodeCode(editorID string, n dag.Node, incoming []dag.Edge, instrument bool) (string, error) {
	gen, err := g.catalog.Generator(n.Data.SpecName, g.lang.Name())
	if err != nil {
		return "", err
	}

	inputs := make(map[string]string, len(n.Data.Inputs))
	var (
		imageInput string
		histograms []histogramCapture
		images     []imageCapture
	)
	for _, in := range n.Data.Inputs {
		if e, ok := feeding(incoming, in.ID); ok {
			inputs[in.Name] = dag.HandleVar(editorID, e.Source, e.SourceHandle)
			if in.Name == "image" {
				imageInput = inputs[in.Name]
			}
		} else {
			inputs[in.Name] = g.lang.Literal(widget.LiteralType(g.widgets, in), in.DefaultValue)
		}

		if imageInput == "" {
			continue
		}
		switch in.WidgetType() {
		case widget.ImageCropper:
			images = append(images, imageCapture{imageVar: imageInput, handleID: dag.HandleVar(editorID, n.ID, in.ID)})
		case widget.HistogramRange:
			histograms = append(histograms, histogramCapture{imageVar: imageInput, handleID: dag.HandleVar(editorID, n.ID, in.ID)})
		}
	}

	outputs := make(map[string]string, len(n.Data.Outputs))
	for _, out := range n.Data.Outputs {
		v := dag.HandleVar(editorID, n.ID, out.ID)
		outputs[out.Name] = v
		if !dag.IsImageType(out.Type) && !widget.IsViewer(out) {
			continue
		}
		switch {
		case out.Type.Has(dag.TypeImageDiff):
			images = append(images, imageCapture{imageVar: v, handleID: v, referenceVar: inputs["image2"]})
		case out.Widget != nil && out.Widget.ShowDiff && imageInput != "":
			images = append(images, imageCapture{imageVar: v, handleID: v, referenceVar: imageInput})
		default:
			images = append(images, imageCapture{imageVar: v})
		}
	}

	var b strings.Builder
	if instrument {
		for _, h := range histograms {
			b.WriteString(g.inst.CaptureHistogram(h.imageVar, h.handleID) + "\n")
		}
	}
	body, err := gen(inputs, outputs)
	if err != nil {
		return "", err
	}
	b.WriteString(body + "\n")

	if n.Data.ExtraRun > 0 {
		again, err := g.iteration(gen, n, inputs, outputs)
		if err != nil {
			return "", err
		}
		b.WriteString(g.lang.Repeat(n.Data.ExtraRun, again))
	}

	if instrument {
		for _, c := range images {
			b.WriteString("\n" + g.inst.CaptureImage(c.imageVar, c.handleID, c.referenceVar))
		}
	}
	return b.String(), nil
}

// iteration renders the repeated block of an extraRun node: the first declared input
// is fed the first output, and dependency lines are dropped.
func (g *Generator) iteration(gen nodespec.Generator, n dag.Node, inputs, outputs map[string]string) (string, error) {
	again := make(map[string]string, len(inputs))
	for k, v := range inputs {
		again[k] = v
	}
	if len(n.Data.Inputs) > 0 && len(n.Data.Outputs) > 0 {
		again[n.Data.Inputs[0].Name] = outputs[n.Data.Outputs[0].Name]
	}
	body, err := gen(again, outputs)
	if err != nil {
		return "", fmt.Errorf("repeat: %w", err)
	}
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !g.lang.IsDependencyLine(l) {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func feeding(incoming []dag.Edge, handleID string) (dag.Edge, bool) {
	for _, e := range incoming {
		if e.TargetHandle == handleID {
			return e, true
		}
	}
	return dag.Edge{}, false
}

// SubgraphCode renders sub in topological order, one block per node.
// Nodes whose template is missing or fails are skipped and recorded in p.
func (g *Generator) SubgraphCode(editorID string, sub dag.Graph, instrument bool, p *Program) string {
	if len(sub.Nodes) == 0 {
		return ""
	}
	var blocks []string
	for _, n := range dag.TopologicalSort(sub) {
		code, err := g.NodeCode(editorID, n, sub.IncomingEdges(n.ID), instrument)
		if err != nil {
			g.logger.Warn("node skipped",
				"node", n.Label(), "spec", n.Data.SpecName, "language", g.lang.Name(), "err", err)
			p.Diagnostics = append(p.Diagnostics, Diagnostic{
				NodeID:   n.ID,
				SpecName: n.Data.SpecName,
				Message:  diagnosticMessage(n, g.lang.Name(), err),
			})
			continue
		}
		p.Generated++
		blocks = append(blocks, code)
	}
	return strings.Join(blocks, "\n")
}

// CodeFromGraph renders a whole graph. A graph with a batch node is split into the
// batch loop body and the trailing aggregate code; otherwise nodes are concatenated in
// topological order. With instrument set the capture preambles are prefixed once.
func (g *Generator) CodeFromGraph(editorID string, graph dag.Graph, instrument bool) (*Program, error) {
	p := &Program{}

	batches := batchNodes(graph)
	switch len(batches) {
	case 0:
		p.Code = g.SubgraphCode(editorID, graph, instrument, p)
	case 1:
		code, err := g.batchCode(editorID, graph, batches[0], instrument, p)
		if err != nil {
			return nil, err
		}
		p.Code = code
	default:
		ids := make([]string, len(batches))
		for i, n := range batches {
			ids[i] = n.ID
		}
		return nil, fmt.Errorf("nodes %s: %w", strings.Join(ids, ", "), ErrMultipleBatchNodes)
	}

	if instrument {
		parts := append(g.inst.Preambles(), p.Code)
		p.Code = strings.TrimSpace(strings.Join(parts, "\n") + "\n")
	}
	return p, nil
}

func diagnosticMessage(n dag.Node, lang string, err error) string {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, nodespec.ErrNoGenerator):
		return fmt.Sprintf("node %s has no source code generator for language %s", n.Label(), lang)
	case errors.Is(err, nodespec.ErrNoVariant):
		return fmt.Sprintf("node %s: no %s template variant matches its inputs", n.Label(), lang)
	}
	return fmt.Sprintf("node %s: %v", n.Label(), err)
}

func batchNodes(graph dag.Graph) []dag.Node {
	var out []dag.Node
	for _, n := range graph.Nodes {
		if n.Data.SpecName == nodespec.BatchProcessName {
			out = append(out, n)
		}
	}
	return out
}
