package nodespec

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/flowcode/internal/condition"
)

// File is the YAML layout of a template catalog.
type File struct {
	Version string     `yaml:"version"`
	Specs   []SpecFile `yaml:"specs"`
}

// SpecFile is one template as written in YAML.
type SpecFile struct {
	Name          string               `yaml:"name"`
	DisplayLabel  string               `yaml:"display_label"`
	Description   string               `yaml:"description"`
	Category      string               `yaml:"category"`
	Inputs        []Port               `yaml:"inputs"`
	Outputs       []Port               `yaml:"outputs"`
	ExtraRun      int                  `yaml:"extra_run"`
	SourceChanged bool                 `yaml:"source_changed"`
	Code          map[string][]Variant `yaml:"code"`
}

// Variant is one candidate body for a language. The first variant whose When guard
// holds is rendered; an empty guard always holds. Guards are HCL expressions over
// in and out, see package condition.
type Variant struct {
	When     string `yaml:"when"`
	Template string `yaml:"template"`
}

// LoadFile reads a YAML catalog on top of the built-in templates.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML catalog. All problems are reported together.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("catalog: version is required")
	}

	c := NewCatalog()
	var errs []string
	for i, sf := range f.Specs {
		s, err := sf.compile()
		if err != nil {
			errs = append(errs, fmt.Sprintf("specs[%d] %s: %v", i, sf.Name, err))
			continue
		}
		if err := c.Register(s); err != nil {
			errs = append(errs, fmt.Sprintf("specs[%d]: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return c, nil
}

type compiledVariant struct {
	guard *condition.Expr
	body  *template.Template
}

func (sf SpecFile) compile() (*Spec, error) {
	if sf.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if len(sf.Code) == 0 {
		return nil, fmt.Errorf("at least one language under code is required")
	}
	if err := uniqueNames("input", sf.Inputs); err != nil {
		return nil, err
	}
	if err := uniqueNames("output", sf.Outputs); err != nil {
		return nil, err
	}

	s := &Spec{
		Name:          sf.Name,
		DisplayLabel:  sf.DisplayLabel,
		Description:   sf.Description,
		Category:      sf.Category,
		Inputs:        sf.Inputs,
		Outputs:       sf.Outputs,
		ExtraRun:      sf.ExtraRun,
		SourceChanged: sf.SourceChanged,
		Generators:    make(map[string]Generator, len(sf.Code)),
	}
	normalizeDefaults(s.Inputs)
	normalizeDefaults(s.Outputs)
	sampleIn, sampleOut := sampleNames(s)
	for lang, variants := range sf.Code {
		if len(variants) == 0 {
			return nil, fmt.Errorf("code.%s: no variants", lang)
		}
		compiled := make([]compiledVariant, len(variants))
		for i, v := range variants {
			cv, err := compileVariant(fmt.Sprintf("%s/%s#%d", sf.Name, lang, i), v)
			if err != nil {
				return nil, fmt.Errorf("code.%s[%d]: %w", lang, i, err)
			}
			if err := checkGuardFields(cv.guard, sampleIn, sampleOut); err != nil {
				return nil, fmt.Errorf("code.%s[%d]: %w", lang, i, err)
			}
			var buf bytes.Buffer
			if err := cv.body.Execute(&buf, templateData(sampleIn, sampleOut)); err != nil {
				return nil, fmt.Errorf("code.%s[%d]: %w", lang, i, err)
			}
			compiled[i] = cv
		}
		s.Generators[lang] = variantGenerator(s.Name, lang, compiled)
	}
	return s, nil
}

func compileVariant(name string, v Variant) (compiledVariant, error) {
	var cv compiledVariant
	if strings.TrimSpace(v.When) != "" {
		guard, err := condition.Parse(v.When)
		if err != nil {
			return cv, err
		}
		cv.guard = guard
	}
	body, err := template.New(name).Option("missingkey=error").Parse(v.Template)
	if err != nil {
		return cv, err
	}
	cv.body = body
	return cv, nil
}

func variantGenerator(spec, lang string, variants []compiledVariant) Generator {
	return func(inputs, outputs map[string]string) (string, error) {
		var scope map[string]cty.Value
		for i, v := range variants {
			if v.guard != nil {
				if scope == nil {
					scope = condition.Scope(inputs, outputs)
				}
				ok, err := condition.Evaluate(v.guard, scope)
				if err != nil {
					return "", fmt.Errorf("spec %q, language %q, variant %d: %w", spec, lang, i, err)
				}
				if !ok {
					continue
				}
			}
			var buf bytes.Buffer
			if err := v.body.Execute(&buf, templateData(inputs, outputs)); err != nil {
				return "", fmt.Errorf("spec %q, language %q, variant %d: %w", spec, lang, i, err)
			}
			return strings.TrimRight(buf.String(), "\n"), nil
		}
		return "", fmt.Errorf("spec %q, language %q: %w", spec, lang, ErrNoVariant)
	}
}

func checkGuardFields(guard *condition.Expr, inputs, outputs map[string]string) error {
	if guard == nil {
		return nil
	}
	for _, name := range guard.Fields("in") {
		if _, ok := inputs[name]; !ok {
			return fmt.Errorf("when %q: no input named %q", guard, name)
		}
	}
	for _, name := range guard.Fields("out") {
		if _, ok := outputs[name]; !ok {
			return fmt.Errorf("when %q: no output named %q", guard, name)
		}
	}
	return nil
}

func templateData(inputs, outputs map[string]string) map[string]any {
	return map[string]any{"in": inputs, "out": outputs}
}

func sampleNames(s *Spec) (map[string]string, map[string]string) {
	in := make(map[string]string, len(s.Inputs))
	for _, p := range s.Inputs {
		in[p.Name] = "x"
	}
	out := make(map[string]string, len(s.Outputs))
	for _, p := range s.Outputs {
		out[p.Name] = "y"
	}
	return in, out
}

func uniqueNames(kind string, ports []Port) error {
	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		if p.Name == "" {
			return fmt.Errorf("%s without a name", kind)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate %s %q", kind, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// normalizeDefaults converts YAML integers to float64 so defaults compare equal to
// values decoded from persisted JSON graphs.
func normalizeDefaults(ports []Port) {
	for i := range ports {
		ports[i].DefaultValue = normalize(ports[i].DefaultValue)
	}
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	}
	return v
}
