// Package condition evaluates the `when` guards that choose between template
// variants. A guard is an HCL expression over two objects: in, the rendered input
// expressions, and out, the output variable names.
//
//	in.mode == "RGB"
//	in.sigma > 0 && !contains(["none", "auto"], in.method)
package condition

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

var roots = map[string]bool{"in": true, "out": true}

var functions = map[string]function.Function{
	"contains": stdlib.ContainsFunc,
	"length":   stdlib.LengthFunc,
	"lower":    stdlib.LowerFunc,
	"upper":    stdlib.UpperFunc,
	"strlen":   stdlib.StrlenFunc,
	"regexall": stdlib.RegexAllFunc,
}

// Expr is a parsed guard.
type Expr struct {
	src  string
	expr hclsyntax.Expression
}

func (e *Expr) String() string { return e.src }

// Parse parses a guard once. References outside in and out, and calls to unknown
// functions, are rejected here rather than at render time.
func Parse(src string) (*Expr, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "when", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("when %q: %s", src, diags.Error())
	}
	for _, tr := range expr.Variables() {
		if !roots[tr.RootName()] {
			return nil, fmt.Errorf("when %q: unknown variable %q (use in or out)", src, tr.RootName())
		}
	}
	var unknown []string
	hclsyntax.VisitAll(expr, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			if _, known := functions[call.Name]; !known {
				unknown = append(unknown, call.Name)
			}
		}
		return nil
	})
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("when %q: unknown function %q", src, unknown[0])
	}
	return &Expr{src: src, expr: expr}, nil
}

// Fields lists the attribute names referenced under root, such as "mode" for in.mode.
func (e *Expr) Fields(root string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tr := range e.expr.Variables() {
		if tr.RootName() != root || len(tr) < 2 {
			continue
		}
		var name string
		switch step := tr[1].(type) {
		case hcl.TraverseAttr:
			name = step.Name
		case hcl.TraverseIndex:
			if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
				name = step.Key.AsString()
			}
		}
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Scope builds the variables a guard sees. Input expressions that parse as numbers
// are exposed as numbers; everything else, including quoted literals, as strings.
func Scope(inputs, outputs map[string]string) map[string]cty.Value {
	in := make(map[string]cty.Value, len(inputs))
	for k, v := range inputs {
		if n, err := cty.ParseNumberVal(v); err == nil {
			in[k] = n
			continue
		}
		in[k] = cty.StringVal(v)
	}
	out := make(map[string]cty.Value, len(outputs))
	for k, v := range outputs {
		out[k] = cty.StringVal(v)
	}
	return map[string]cty.Value{"in": cty.ObjectVal(in), "out": cty.ObjectVal(out)}
}

// Evaluate runs e against vars. The result must be a known, non-null bool.
func Evaluate(e *Expr, vars map[string]cty.Value) (bool, error) {
	ctx := &hcl.EvalContext{Variables: vars, Functions: functions}
	v, diags := e.expr.Value(ctx)
	if diags.HasErrors() {
		return false, fmt.Errorf("when %q: %s", e.src, diags.Error())
	}
	if !v.IsKnown() || v.IsNull() || !v.Type().Equals(cty.Bool) {
		return false, fmt.Errorf("when %q: result is %s, want bool", e.src, describe(v))
	}
	return v.True(), nil
}

// Match parses and evaluates src in one step.
func Match(src string, inputs, outputs map[string]string) (bool, error) {
	e, err := Parse(src)
	if err != nil {
		return false, err
	}
	return Evaluate(e, Scope(inputs, outputs))
}

func describe(v cty.Value) string {
	switch {
	case !v.IsKnown():
		return "unknown"
	case v.IsNull():
		return "null"
	}
	return v.Type().FriendlyName()
}
