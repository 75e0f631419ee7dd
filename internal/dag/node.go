package dag

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// AnyType is the wildcard handle type tag; it matches every other tag.
const AnyType = "*"

// HandleType is the set of type tags a handle produces or accepts.
// It serializes as a bare string when it holds a single tag.
type HandleType []string

// Single builds a HandleType holding exactly one tag.
func Single(tag string) HandleType { return HandleType{tag} }

func (t HandleType) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t *HandleType) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = HandleType{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("handle type must be a string or a list of strings: %w", err)
	}
	*t = HandleType(many)
	return nil
}

func (t *HandleType) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = HandleType{value.Value}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*t = HandleType(many)
		return nil
	}
	return fmt.Errorf("line %d: handle type must be a string or a list of strings", value.Line)
}

// Has reports whether tag is one of the handle's tags.
func (t HandleType) Has(tag string) bool {
	for _, s := range t {
		if s == tag {
			return true
		}
	}
	return false
}

func (t HandleType) String() string {
	if len(t) == 1 {
		return t[0]
	}
	return "[" + strings.Join(t, ", ") + "]"
}

// IsSameType reports whether an output of type a may feed an input of type b.
// The wildcard on either side matches unconditionally; otherwise the tag sets must intersect.
func IsSameType(a, b HandleType) bool {
	if a.Has(AnyType) || b.Has(AnyType) {
		return true
	}
	for _, x := range a {
		if b.Has(x) {
			return true
		}
	}
	return false
}

// Image-like tags that receive image instrumentation.
const (
	TypeImage       = "image"
	TypeBinaryImage = "binary image"
	TypeImageDiff   = "image diff"
	TypeImageList   = "image[]"
)

// IsImageType reports whether t carries an image or binary image tag.
func IsImageType(t HandleType) bool {
	return t.Has(TypeImage) || t.Has(TypeBinaryImage)
}

// Widget describes the input control or viewer attached to a handle.
// Only Type, ShowDiff and SyncGroup influence the engine; the rest is carried for renderers.
type Widget struct {
	Type      string         `json:"type" yaml:"type"`
	ShowDiff  bool           `json:"showDiff,omitempty" yaml:"show_diff,omitempty"`
	IsBinary  bool           `json:"isBinary,omitempty" yaml:"is_binary,omitempty"`
	SyncGroup *int           `json:"syncGroup,omitempty" yaml:"-"`
	Value     any            `json:"value,omitempty" yaml:"-"`
	Options   map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

func (w *Widget) clone() *Widget {
	if w == nil {
		return nil
	}
	c := *w
	if w.SyncGroup != nil {
		g := *w.SyncGroup
		c.SyncGroup = &g
	}
	c.Value = cloneValue(w.Value)
	if w.Options != nil {
		c.Options = cloneValue(w.Options).(map[string]any)
	}
	return &c
}

// Handle is a typed port on a node.
type Handle struct {
	ID           string     `json:"id" yaml:"-"`
	Name         string     `json:"name" yaml:"name"`
	Type         HandleType `json:"type,omitempty" yaml:"type,omitempty"`
	DisplayLabel string     `json:"displayLabel,omitempty" yaml:"display_label,omitempty"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultValue any        `json:"defaultValue,omitempty" yaml:"default,omitempty"`
	Widget       *Widget    `json:"widget,omitempty" yaml:"widget,omitempty"`
	// Connections is derived from the edge list and recomputed by the editor on every change.
	Connections int `json:"connections,omitempty" yaml:"-"`
}

// WidgetType returns the widget type or "" when the handle has no widget.
func (h Handle) WidgetType() string {
	if h.Widget == nil {
		return ""
	}
	return h.Widget.Type
}

func (h Handle) clone() Handle {
	c := h
	c.Type = append(HandleType(nil), h.Type...)
	c.DefaultValue = cloneValue(h.DefaultValue)
	c.Widget = h.Widget.clone()
	return c
}

// Position is the canvas position of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the payload of a node.
type NodeData struct {
	SpecName      string   `json:"specName,omitempty"`
	DisplayLabel  string   `json:"displayLabel,omitempty"`
	Description   string   `json:"description,omitempty"`
	Inputs        []Handle `json:"inputs,omitempty"`
	Outputs       []Handle `json:"outputs,omitempty"`
	ExtraRun      int      `json:"extraRun,omitempty"`
	SourceChanged bool     `json:"sourceChanged,omitempty"`

	// EditorRef is a request-scoped back-reference for presentation code.
	// It is never serialized, compared or read by graph algorithms.
	EditorRef any `json:"-"`
}

// Node is a processing step in the graph.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
	Selected bool     `json:"selected,omitempty"`
}

// Input returns the input handle with the given id.
func (n Node) Input(id string) (Handle, bool) {
	for _, h := range n.Data.Inputs {
		if h.ID == id {
			return h, true
		}
	}
	return Handle{}, false
}

// Output returns the output handle with the given id.
func (n Node) Output(id string) (Handle, bool) {
	for _, h := range n.Data.Outputs {
		if h.ID == id {
			return h, true
		}
	}
	return Handle{}, false
}

// Label returns the display label, falling back to the node id.
func (n Node) Label() string {
	if n.Data.DisplayLabel != "" {
		return n.Data.DisplayLabel
	}
	return n.ID
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	c := n
	c.Data.Inputs = cloneHandles(n.Data.Inputs)
	c.Data.Outputs = cloneHandles(n.Data.Outputs)
	return c
}

func cloneHandles(hs []Handle) []Handle {
	if hs == nil {
		return nil
	}
	out := make([]Handle, len(hs))
	for i, h := range hs {
		out[i] = h.clone()
	}
	return out
}

// Edge connects an output handle of Source to an input handle of Target.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
	Selected     bool   `json:"selected,omitempty"`
}

// Touches reports whether the edge starts or ends at nodeID.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// HandleVar is the target-language variable bound to a handle. Including the editor id
// keeps names unique across editors sharing one kernel.
func HandleVar(editorID, nodeID, handleID string) string {
	return editorID + "_" + nodeID + "_" + handleID
}

// ValidID reports whether id can take part in a handle variable name: one or more
// ASCII letters or digits.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// SplitHandleVar reverses HandleVar. Node and handle ids are ValidID, so the last two
// underscore-separated parts are always the node and handle.
func SplitHandleVar(v string) (editorID, nodeID, handleID string, ok bool) {
	parts := strings.Split(v, "_")
	if len(parts) < 3 {
		return "", "", "", false
	}
	n := len(parts)
	return strings.Join(parts[:n-2], "_"), parts[n-2], parts[n-1], true
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	case []int:
		return append([]int(nil), x...)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
