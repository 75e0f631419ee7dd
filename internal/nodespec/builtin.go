package nodespec

import (
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/widget"
)

// Reserved spec names.
const (
	BatchProcessName   = "batch_process"
	CollectResultsName = "collect_batch_results"
)

// BatchAccumulator is the list the batch loop appends per-item results to.
const BatchAccumulator = "batch_outputs"

func builtins() []*Spec {
	return []*Spec{
		{
			Name:         BatchProcessName,
			DisplayLabel: "batch process",
			Category:     "batch processing",
			Description:  "Process multiple images from a folder.",
			Inputs: []Port{
				{Handle: dag.Handle{
					Name:         "folder_path",
					Type:         dag.Single("string"),
					DisplayLabel: "folder",
					Description:  "Folder containing .jpg, .jpeg or .png images.",
					Widget:       &dag.Widget{Type: widget.FileInputFromServer, Options: map[string]any{"extensions": []any{}}},
				}},
				{Handle: dag.Handle{
					Name:         "image_gallery",
					Type:         dag.Single("string[]"),
					DisplayLabel: "gallery",
					Description:  "Images selected for processing.",
					DefaultValue: []any{},
					Widget:       &dag.Widget{Type: widget.ImageGallery},
				}},
			},
			Outputs: []Port{
				{Handle: dag.Handle{Name: "each selected image", Type: dag.Single("image"), DisplayLabel: "processed image"}},
				{Handle: dag.Handle{Name: "batch_results", Type: dag.Single("dataframe"), DisplayLabel: "batch results"}},
			},
			// The loop preamble is produced by the code generator itself.
			Generators: map[string]Generator{
				"Python": func(_, _ map[string]string) (string, error) { return "", nil },
			},
		},
		{
			Name:         CollectResultsName,
			DisplayLabel: "collect result per batch",
			Category:     "batch processing",
			Description:  "Output the result at each batch.",
			Inputs: []Port{
				{Handle: dag.Handle{Name: "result", Type: dag.Single(dag.AnyType), DisplayLabel: "result"}},
			},
			Generators: map[string]Generator{
				"Python": func(in, _ map[string]string) (string, error) {
					return BatchAccumulator + ".append(" + in["result"] + ")", nil
				},
			},
		},
	}
}
