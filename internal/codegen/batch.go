package codegen

import (
	"fmt"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/widget"
)

// batchCode renders the loop over selected items. Output 0 of the batch node is the
// per-item value, output 1 the aggregated results; input 0 is the folder and input 1
// the selected item names.
func (g *Generator) batchCode(editorID string, graph dag.Graph, b dag.Node, instrument bool, p *Program) (string, error) {
	if len(b.Data.Inputs) < 2 || len(b.Data.Outputs) < 2 {
		return "", fmt.Errorf("batch node %s: want 2 inputs and 2 outputs, got %d and %d: %w",
			b.ID, len(b.Data.Inputs), len(b.Data.Outputs), dag.ErrStructural)
	}
	perItem, results := b.Data.Outputs[0], b.Data.Outputs[1]
	folderIn, selectedIn := b.Data.Inputs[0], b.Data.Inputs[1]

	inner := g.codeAfter(editorID, graph, b, perItem.ID, instrument, p)
	outer := g.codeAfter(editorID, graph, b, results.ID, instrument, p)

	itemVar := dag.HandleVar(editorID, b.ID, perItem.ID)
	folder := g.lang.Literal(widget.ValueString, folderIn.DefaultValue)
	loop := BatchLoop{
		Folder:     folder,
		Selected:   g.lang.Literal(widget.ValueStringList, selectedIn.DefaultValue),
		ItemVar:    itemVar,
		ResultsVar: dag.HandleVar(editorID, b.ID, results.ID),
		Inner:      g.lang.Indent(inner),
		Outer:      outer,
	}
	if instrument {
		loop.Inspect = g.inst.CaptureImage(itemVar, "", "")
	}
	code := g.lang.BatchLoop(loop)
	if instrument {
		code += "\n" + g.inst.CaptureFolder(folder, dag.HandleVar(editorID, b.ID, selectedIn.ID))
	}
	p.Generated++
	return code, nil
}

// codeAfter renders the region fed by one output of node. Ancestors of that region
// are pulled in too, but never through node itself.
func (g *Generator) codeAfter(editorID string, graph dag.Graph, node dag.Node, handleID string, instrument bool, p *Program) string {
	var seeds []string
	for _, e := range graph.OutgoingEdges(node.ID, handleID) {
		if _, ok := graph.Node(e.Target); ok {
			seeds = append(seeds, e.Target)
		}
	}
	sub, ok := dag.ConnectedSubgraph(graph, seeds, false, []string{node.ID})
	if !ok {
		return ""
	}
	return g.SubgraphCode(editorID, sub, instrument, p)
}
