package codegen

import (
	"github.com/gyaneshwarpardhi/flowcode/internal/registry"
)

// Language is the target-language half of code generation: literal syntax,
// repetition, indentation and the batch loop scaffold.
type Language interface {
	// Name is the key node templates register generators under.
	Name() string
	// Literal renders v as a literal of the given widget value type.
	Literal(valueType string, v any) string
	// Repeat wraps body in a loop running times iterations.
	Repeat(times int, body string) string
	// Indent nests every line of code one block level deeper.
	Indent(code string) string
	// IsDependencyLine reports whether line only declares a dependency (an import).
	IsDependencyLine(line string) bool
	// BatchLoop renders the batch scaffold around the per-item and aggregate code.
	BatchLoop(b BatchLoop) string
}

// BatchLoop carries the pieces of a batch scaffold. Inner is already indented.
type BatchLoop struct {
	Folder     string // literal
	Selected   string // literal
	ItemVar    string
	ResultsVar string
	Inspect    string
	Inner      string
	Outer      string
}

// Languages returns a registry holding the built-in languages.
func Languages() *registry.Registry[Language] {
	r := registry.New[Language]("language")
	r.MustRegister(PythonName, Python{})
	return r
}
