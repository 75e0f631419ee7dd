// Package widget binds widget types to the value type their handles produce.
package widget

import (
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/registry"
)

// Widget types understood by the code generator and the editor.
const (
	String              = "String"
	Boolean             = "Boolean"
	Number              = "Number"
	Slider              = "Slider"
	Dropdown            = "Dropdown"
	Tuple2              = "Tuple2"
	ImageViewer         = "ImageViewer"
	FileInputFromServer = "FileInputFromServer"
	HistogramRange      = "HistogramRange"
	ImageCropper        = "ImageCropper"
	ImageGallery        = "ImageGallery"
)

// Value types a literal encoder is asked to render.
const (
	ValueString     = "string"
	ValueBoolean    = "boolean"
	ValueNumber     = "number"
	ValueEnum       = "enum"
	ValueTuple2     = "tuple2"
	ValueTuple4     = "tuple4"
	ValueStringList = "string[]"
)

// Binding describes one widget type.
type Binding struct {
	Type string
	// Produces is the handle type the widget emits; empty for pure viewers.
	Produces dag.HandleType
	// Literal is the value type used to render an unconnected default.
	// Empty means the default is emitted verbatim.
	Literal string
}

// Registry maps widget type names to bindings.
type Registry = registry.Registry[Binding]

// NewRegistry returns a registry holding the built-in widgets.
func NewRegistry() *Registry {
	r := registry.New[Binding]("widget")
	for _, b := range []Binding{
		{Type: String, Produces: dag.Single("string"), Literal: ValueString},
		{Type: Boolean, Produces: dag.Single("boolean"), Literal: ValueBoolean},
		{Type: Number, Produces: dag.Single("number"), Literal: ValueNumber},
		{Type: Slider, Produces: dag.Single("number"), Literal: ValueNumber},
		{Type: Dropdown, Produces: dag.Single("enum"), Literal: ValueEnum},
		{Type: Tuple2, Produces: dag.Single("tuple2"), Literal: ValueTuple2},
		{Type: ImageViewer},
		{Type: FileInputFromServer, Produces: dag.Single("string"), Literal: ValueString},
		{Type: HistogramRange, Produces: dag.Single("tuple2"), Literal: ValueTuple2},
		{Type: ImageCropper, Produces: dag.Single("tuple4"), Literal: ValueTuple4},
		{Type: ImageGallery, Produces: dag.HandleType{dag.TypeImage, dag.TypeImageList}, Literal: ValueStringList},
	} {
		r.MustRegister(b.Type, b)
	}
	return r
}

// LiteralType returns the value type for rendering a handle's default value.
// Handles without a widget, or with an unknown one, render verbatim.
func LiteralType(r *Registry, h dag.Handle) string {
	if h.Widget == nil {
		return ""
	}
	b, ok := r.Lookup(h.Widget.Type)
	if !ok {
		return ""
	}
	return b.Literal
}

// IsViewer reports whether the handle carries an image viewer.
func IsViewer(h dag.Handle) bool {
	return h.WidgetType() == ImageViewer
}
