// Package nodespec holds node templates: handle declarations plus one code
// generator per target language, looked up by spec name.
package nodespec

import (
	"sort"
	"strconv"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/widget"
)

// ComputeNodeType is the visual node type assigned to instantiated nodes.
const ComputeNodeType = "compute"

// Generator renders a node's source text from resolved input expressions and
// output variable names, both keyed by handle name. An error means the node
// produces no code.
type Generator func(inputs, outputs map[string]string) (string, error)

// Port declares a handle. ShowDiff requests a diff viewer on image outputs.
type Port struct {
	dag.Handle `yaml:",inline"`
	ShowDiff   bool `json:"showDiff,omitempty" yaml:"show_diff,omitempty"`
}

// Spec is a node template.
type Spec struct {
	Name          string `json:"name"`
	DisplayLabel  string `json:"displayLabel,omitempty"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	Inputs        []Port `json:"inputs"`
	Outputs       []Port `json:"outputs"`
	ExtraRun      int    `json:"extraRun,omitempty"`
	SourceChanged bool   `json:"sourceChanged,omitempty"`

	// Generators is keyed by language name ("Python").
	Generators map[string]Generator `json:"-"`
}

// Languages lists the languages the template can generate, sorted.
func (s *Spec) Languages() []string {
	out := make([]string, 0, len(s.Generators))
	for lang := range s.Generators {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Instantiate builds a fresh node from the template. Inputs get ids in0, in1, ...
// and outputs out0, out1, ...; image outputs without a widget get an image viewer,
// except image lists and the batch per-item output.
func (s *Spec) Instantiate(id string, pos dag.Position) dag.Node {
	n := dag.Node{
		ID:       id,
		Type:     ComputeNodeType,
		Position: pos,
		Data: dag.NodeData{
			SpecName:      s.Name,
			DisplayLabel:  s.DisplayLabel,
			Description:   s.Description,
			ExtraRun:      s.ExtraRun,
			SourceChanged: s.SourceChanged,
		},
	}
	for i, p := range s.Inputs {
		h := p.Handle
		h.ID = "in" + strconv.Itoa(i)
		n.Data.Inputs = append(n.Data.Inputs, h)
	}
	for i, p := range s.Outputs {
		h := p.Handle
		h.ID = "out" + strconv.Itoa(i)
		if h.Widget == nil && wantsViewer(h) {
			h.Widget = &dag.Widget{
				Type:     widget.ImageViewer,
				ShowDiff: p.ShowDiff,
				IsBinary: h.Type.Has(dag.TypeBinaryImage) && len(h.Type) == 1,
			}
		}
		n.Data.Outputs = append(n.Data.Outputs, h)
	}
	return n.Clone()
}

func wantsViewer(h dag.Handle) bool {
	if !dag.IsImageType(h.Type) {
		return false
	}
	if len(h.Type) == 1 && h.Type[0] == dag.TypeImageList {
		return false
	}
	return h.Name != "processedImage"
}
