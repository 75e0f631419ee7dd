package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/config"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/engine"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
)

func spec(name, code string) *nodespec.Spec {
	return &nodespec.Spec{
		Name:    name,
		Inputs:  []nodespec.Port{{Handle: dag.Handle{Name: "x", Type: dag.Single("number")}}},
		Outputs: []nodespec.Port{{Handle: dag.Handle{Name: "y", Type: dag.Single("number")}}},
		Generators: map[string]nodespec.Generator{"Python": func(in, out map[string]string) (string, error) {
			return out["y"] + " = " + code + "(" + in["x"] + ")", nil
		}},
	}
}

func catalog(t *testing.T, specs ...*nodespec.Spec) *nodespec.Catalog {
	t.Helper()
	c := nodespec.NewCatalog()
	for _, s := range specs {
		if err := c.Register(s); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func chain(t *testing.T, c *nodespec.Catalog, names ...string) dag.Graph {
	t.Helper()
	var g dag.Graph
	for i, name := range names {
		s, err := c.Spec(name)
		if err != nil {
			t.Fatal(err)
		}
		id := string(rune('1' + i))
		n := s.Instantiate(id, dag.Position{})
		n.Data.Inputs[0].DefaultValue = 0.5
		g.Nodes = append(g.Nodes, n)
		if i > 0 {
			prev := string(rune('0' + i))
			g.Edges = append(g.Edges, dag.Edge{ID: id, Source: prev, SourceHandle: "out0", Target: id, TargetHandle: "in0"})
		}
	}
	return g
}

func newCompiler(t *testing.T, cat *nodespec.Catalog, workers, depth int) *engine.Compiler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := engine.New(ctx, cat, codegen.Python{}, config.CompilerConf{Workers: workers, QueueDepth: depth, TimeoutMs: 2000}, nil)
	t.Cleanup(func() {
		cancel()
		c.Shutdown()
	})
	return c
}

func TestCompile(t *testing.T) {
	cat := catalog(t, spec("double", "double"), spec("half", "half"))
	c := newCompiler(t, cat, 2, 4)
	g := chain(t, cat, "double", "half")

	res, err := c.Compile(context.Background(), &engine.Request{Name: "demo", Graph: g})
	if err != nil {
		t.Fatal(err)
	}
	if res.Error != "" {
		t.Fatalf("result error: %s", res.Error)
	}
	want := "main_1_out0 = double(0.5)\n\nmain_2_out0 = half(main_1_out0)\n"
	if res.Code != want {
		t.Errorf("code = %q, want %q", res.Code, want)
	}
	if d, _ := dag.Digest(g); res.Digest != d || res.Generated != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestCompile_Select(t *testing.T) {
	cat := catalog(t, spec("double", "double"), spec("half", "half"))
	c := newCompiler(t, cat, 1, 4)
	g := chain(t, cat, "double", "half", "double")

	res, err := c.Compile(context.Background(), &engine.Request{Graph: g, Select: "h*", EditorID: "ed"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Code, "ed_1_out0 =") || !strings.Contains(res.Code, "ed_2_out0 = half(ed_1_out0)") || !strings.Contains(res.Code, "ed_3_out0 = double(ed_2_out0)") {
		t.Errorf("code = %q", res.Code)
	}
}

func TestCompile_InvalidGraphReportsError(t *testing.T) {
	cat := catalog(t, spec("double", "double"))
	c := newCompiler(t, cat, 1, 1)
	g := chain(t, cat, "double")
	g.Edges = append(g.Edges, dag.Edge{ID: "x", Source: "1", SourceHandle: "out0", Target: "9", TargetHandle: "in0"})

	res, err := c.Compile(context.Background(), &engine.Request{Graph: g})
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == "" {
		t.Error("expected result error for dangling edge")
	}
}

func TestCompile_RejectsEditorIDWithUnderscore(t *testing.T) {
	cat := catalog(t, spec("double", "double"))
	c := newCompiler(t, cat, 1, 1)
	g := chain(t, cat, "double")

	res, err := c.Compile(context.Background(), &engine.Request{Graph: g, EditorID: "my_ed"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Error, `"my_ed"`) || res.Code != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestSwapCatalog(t *testing.T) {
	old := catalog(t, spec("double", "double"))
	c := newCompiler(t, old, 1, 1)
	g := chain(t, old, "double")

	c.SwapCatalog(catalog(t, spec("double", "twice")))
	res, err := c.Compile(context.Background(), &engine.Request{Graph: g})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Code, "twice(0.5)") {
		t.Errorf("code = %q, want swapped template", res.Code)
	}
}

func TestCompile_QueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	slow := spec("slow", "slow")
	slow.Generators["Python"] = func(in, out map[string]string) (string, error) {
		started <- struct{}{}
		<-release
		return out["y"] + " = slow()", nil
	}
	cat := catalog(t, slow)
	c := newCompiler(t, cat, 1, 1)
	g := chain(t, cat, "slow")

	errC := make(chan error, 2)
	go func() {
		_, err := c.Compile(context.Background(), &engine.Request{Graph: g})
		errC <- err
	}()
	<-started
	go func() {
		_, err := c.Compile(context.Background(), &engine.Request{Graph: g})
		errC <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for c.QueueUtilization() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	_, err := c.Compile(context.Background(), &engine.Request{Graph: g})
	if !errors.Is(err, engine.ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-errC; err != nil {
			t.Errorf("queued compile: %v", err)
		}
	}
}

func TestCompileBatch_PreservesOrder(t *testing.T) {
	cat := catalog(t, spec("double", "double"), spec("half", "half"))
	c := newCompiler(t, cat, 3, 8)
	reqs := []*engine.Request{
		{Name: "a", Graph: chain(t, cat, "double")},
		{Name: "b", Graph: chain(t, cat, "half")},
		{Name: "c", Graph: chain(t, cat, "half", "double")},
	}
	out := c.CompileBatch(context.Background(), reqs)
	if len(out) != 3 {
		t.Fatalf("results = %d", len(out))
	}
	for i, r := range out {
		if r.Name != reqs[i].Name || r.Error != "" {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if out[2].Generated != 2 {
		t.Errorf("generated = %d, want 2", out[2].Generated)
	}
}
