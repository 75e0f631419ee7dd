package codegen

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/gyaneshwarpardhi/flowcode/internal/widget"
)

// PythonName is the language key used by node templates.
const PythonName = "Python"

// Python generates Python 3 source.
type Python struct{}

func (Python) Name() string { return PythonName }

func (Python) Literal(valueType string, v any) string {
	switch valueType {
	case widget.ValueString:
		if v == nil {
			return pyQuote("")
		}
		s := rawString(v)
		if strings.Contains(s, "\n") {
			return pyMultiline(s)
		}
		return pyQuote(s)
	case widget.ValueBoolean:
		if truthy(v) {
			return "True"
		}
		return "False"
	case widget.ValueNumber:
		if v == nil {
			return "0"
		}
	}
	if v == nil {
		return "None"
	}
	switch valueType {
	case widget.ValueTuple2, widget.ValueTuple4:
		if items, ok := asList(v); ok {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = rawString(item)
			}
			return "(" + strings.Join(parts, ", ") + ")"
		}
	case widget.ValueStringList:
		if items, ok := asList(v); ok {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = pyQuote(rawString(item))
			}
			return "[" + strings.Join(parts, ", ") + "]"
		}
	}
	return rawString(v)
}

func (Python) Repeat(times int, body string) string {
	return fmt.Sprintf("for i in range(%d):\n    %s\n", times, strings.ReplaceAll(body, "\n", "\n    "))
}

func (Python) Indent(code string) string {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}

func (Python) IsDependencyLine(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "from ")
}

var pyBatch = template.Must(template.New("batch").Parse(`import os
from im2im import Image as IM
from skimage import io, img_as_float
import pandas as pd

folder_path = {{.Folder}}
select_paths = {{.Selected}}
batch_outputs = []
for i in range(len(select_paths)):
    image_path = os.path.join(folder_path, select_paths[i])
    {{.ItemVar}} = IM(img_as_float(io.imread(image_path, as_gray=True)), 'numpy.gray_float64(0to1)')
    {{.Inspect}}
{{.Inner}}
{{.ResultsVar}} = pd.DataFrame(batch_outputs)
{{.Outer}}`))

func (Python) BatchLoop(b BatchLoop) string {
	var sb strings.Builder
	if err := pyBatch.Execute(&sb, b); err != nil {
		// Fields are plain strings; execution cannot fail.
		panic(err)
	}
	return sb.String()
}

// pyQuote follows CPython's repr() for str values.
func pyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", "\\\n")
	quote := "'"
	if strings.Contains(s, "'") {
		if !strings.Contains(s, `"`) {
			quote = `"`
		} else {
			s = strings.ReplaceAll(s, "'", `\'`)
		}
	}
	return quote + s + quote
}

func pyMultiline(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = pyQuote(l)
	}
	return strings.Join(lines, " + '\\n' + \n")
}

func rawString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case nil:
		return "None"
	}
	if items, ok := asList(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = rawString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}
