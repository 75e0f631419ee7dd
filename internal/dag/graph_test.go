package dag_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
)

// node builds a node with one "image" input in0 and one "image" output out0.
func node(id string) dag.Node {
	return dag.Node{
		ID: id,
		Data: dag.NodeData{
			SpecName: "step",
			Inputs:   []dag.Handle{{ID: "in0", Name: "image", Type: dag.Single("image"), DefaultValue: "x"}},
			Outputs:  []dag.Handle{{ID: "out0", Name: "result", Type: dag.Single("image")}},
		},
	}
}

func edge(src, dst string) dag.Edge {
	return dag.Edge{ID: src + "-" + dst, Source: src, SourceHandle: "out0", Target: dst, TargetHandle: "in0"}
}

func chain(ids ...string) dag.Graph {
	var g dag.Graph
	for i, id := range ids {
		g.Nodes = append(g.Nodes, node(id))
		if i > 0 {
			g.Edges = append(g.Edges, edge(ids[i-1], id))
		}
	}
	return g
}

func ids(nodes []dag.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestIsSameType(t *testing.T) {
	cases := []struct {
		a, b dag.HandleType
		want bool
	}{
		{dag.Single("image"), dag.Single("image"), true},
		{dag.Single("image"), dag.Single("number"), false},
		{dag.Single("*"), dag.Single("number"), true},
		{dag.Single("string"), dag.Single("*"), true},
		{dag.HandleType{"image", "binary image"}, dag.Single("binary image"), true},
		{dag.HandleType{"image", "binary image"}, dag.HandleType{"number", "string"}, false},
		{nil, dag.Single("image"), false},
	}
	for _, tc := range cases {
		t.Run(tc.a.String()+"/"+tc.b.String(), func(t *testing.T) {
			if got := dag.IsSameType(tc.a, tc.b); got != tc.want {
				t.Errorf("IsSameType(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestFindCycle(t *testing.T) {
	g := chain("1", "2", "3")
	if c := dag.FindCycle(g); c != nil {
		t.Fatalf("acyclic chain reported cycle at %s", c.ID)
	}
	closing := edge("3", "1")
	hypo := dag.WithEdge(g, closing)
	if c := dag.FindCycle(hypo); c == nil {
		t.Fatal("expected a cycle with 3->1")
	}
	if len(g.Edges) != 2 {
		t.Errorf("hypothetical edge leaked into graph: %d edges", len(g.Edges))
	}

	self := dag.WithEdge(chain("a"), dag.Edge{ID: "loop", Source: "a", SourceHandle: "out0", Target: "a", TargetHandle: "in0"})
	if c := dag.FindCycle(self); c == nil || c.ID != "loop" {
		t.Errorf("self loop: got %v", c)
	}
}

func TestTopologicalSort_RespectsEdgesAndIsStable(t *testing.T) {
	g := dag.Graph{Nodes: []dag.Node{node("c"), node("a"), node("b"), node("d")}}
	g.Edges = []dag.Edge{edge("a", "b"), edge("c", "d")}

	first := dag.TopologicalSort(g)
	pos := make(map[string]int)
	for i, n := range first {
		pos[n.ID] = i
	}
	for _, e := range g.Edges {
		if pos[e.Source] >= pos[e.Target] {
			t.Errorf("edge %s: source after target in %v", e.ID, ids(first))
		}
	}
	if want := []string{"c", "a", "d", "b"}; !slices.Equal(ids(first), want) {
		t.Errorf("order = %v, want %v", ids(first), want)
	}
	if again := dag.TopologicalSort(g); !slices.Equal(ids(first), ids(again)) {
		t.Errorf("non-deterministic: %v vs %v", ids(first), ids(again))
	}
}

func TestTopologicalSort_AppendsNodesOnCycle(t *testing.T) {
	g := chain("x", "y")
	g.Nodes = append(g.Nodes, node("p"), node("q"))
	g.Edges = append(g.Edges,
		dag.Edge{ID: "pq", Source: "p", SourceHandle: "out0", Target: "q", TargetHandle: "in0"},
		dag.Edge{ID: "qp", Source: "q", SourceHandle: "out0", Target: "p", TargetHandle: "in0"},
	)
	got := ids(dag.TopologicalSort(g))
	if want := []string{"x", "y", "p", "q"}; !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestConnectedSubgraph(t *testing.T) {
	// a -> b -> c, d -> b
	g := chain("a", "b", "c")
	g.Nodes = append(g.Nodes, node("d"))
	g.Nodes[1].Data.Inputs = append(g.Nodes[1].Data.Inputs, dag.Handle{ID: "in1", Name: "mask", Type: dag.Single("image")})
	g.Edges = append(g.Edges, dag.Edge{ID: "d-b", Source: "d", SourceHandle: "out0", Target: "b", TargetHandle: "in1"})

	t.Run("no seeds", func(t *testing.T) {
		if _, ok := dag.ConnectedSubgraph(g, nil, true, nil); ok {
			t.Error("expected no subgraph")
		}
	})
	t.Run("full coverage is identity", func(t *testing.T) {
		sub, ok := dag.ConnectedSubgraph(g, g.NodeIDs(), false, nil)
		if !ok || !slices.Equal(ids(sub.Nodes), ids(g.Nodes)) || len(sub.Edges) != len(g.Edges) {
			t.Errorf("got %v", ids(sub.Nodes))
		}
	})
	t.Run("descendants keep incoming edges", func(t *testing.T) {
		sub, _ := dag.ConnectedSubgraph(g, []string{"b"}, true, nil)
		if want := []string{"b", "c"}; !slices.Equal(ids(sub.Nodes), want) {
			t.Errorf("nodes = %v, want %v", ids(sub.Nodes), want)
		}
		if len(sub.Edges) != 3 {
			t.Errorf("edges = %d, want 3 (a-b, d-b, b-c)", len(sub.Edges))
		}
	})
	t.Run("ancestors", func(t *testing.T) {
		sub, _ := dag.ConnectedSubgraph(g, []string{"c"}, false, nil)
		if want := []string{"a", "b", "c", "d"}; !slices.Equal(ids(sub.Nodes), want) {
			t.Errorf("nodes = %v, want %v", ids(sub.Nodes), want)
		}
	})
	t.Run("barrier", func(t *testing.T) {
		sub, _ := dag.ConnectedSubgraph(g, []string{"c"}, false, []string{"b"})
		if want := []string{"c"}; !slices.Equal(ids(sub.Nodes), want) {
			t.Errorf("nodes = %v, want %v", ids(sub.Nodes), want)
		}
	})
}

func TestSourceChangerGroups(t *testing.T) {
	// s1 -> a -> s2 -> b ; a -> c ; s3 -> d ; e (unreached)
	var g dag.Graph
	for _, id := range []string{"s1", "a", "s2", "b", "c", "s3", "d", "e"} {
		g.Nodes = append(g.Nodes, node(id))
	}
	for i := range g.Nodes {
		switch g.Nodes[i].ID {
		case "s1", "s2", "s3":
			g.Nodes[i].Data.SourceChanged = true
		}
	}
	g.Edges = []dag.Edge{edge("s1", "a"), edge("a", "s2"), edge("s2", "b"), edge("a", "c"), edge("s3", "d")}

	groups := dag.SourceChangerGroups(g)
	var got [][]string
	for _, grp := range groups {
		got = append(got, ids(grp))
	}
	want := [][]string{{"s1", "a", "c"}, {"s2", "b"}, {"s3", "d"}}
	if !slices.EqualFunc(got, want, slices.Equal[[]string]) {
		t.Fatalf("groups = %v, want %v", got, want)
	}

	seen := map[string]bool{}
	for _, grp := range groups {
		for _, n := range grp {
			if seen[n.ID] {
				t.Errorf("node %s in two groups", n.ID)
			}
			seen[n.ID] = true
		}
	}
	if seen["e"] {
		t.Error("unreached node e was grouped")
	}

	if got := dag.SourceChangerGroups(chain("a", "b")); len(got) != 0 {
		t.Errorf("no flagged nodes: got %d groups", len(got))
	}
}

func TestFindCodeChangedGraph(t *testing.T) {
	g := chain("A", "B", "C")

	t.Run("no snapshot", func(t *testing.T) {
		sub, ok := dag.FindCodeChangedGraph(nil, g)
		if !ok || len(sub.Nodes) != 3 {
			t.Errorf("got ok=%v nodes=%v", ok, ids(sub.Nodes))
		}
	})
	t.Run("self diff is empty", func(t *testing.T) {
		if _, ok := dag.FindCodeChangedGraph(&g, g.Clone()); ok {
			t.Error("expected nothing changed")
		}
	})
	t.Run("default change pulls descendants", func(t *testing.T) {
		prev := g.Clone()
		prev.Nodes[0].Data.Inputs[0].DefaultValue = "y"
		sub, ok := dag.FindCodeChangedGraph(&prev, g)
		if want := []string{"A", "B", "C"}; !ok || !slices.Equal(ids(sub.Nodes), want) {
			t.Errorf("nodes = %v, want %v", ids(sub.Nodes), want)
		}
	})
	t.Run("position and selection are ignored", func(t *testing.T) {
		next := g.Clone()
		next.Nodes[1].Position = dag.Position{X: 40, Y: 9}
		next.Nodes[1].Selected = true
		if _, ok := dag.FindCodeChangedGraph(&g, next); ok {
			t.Error("cosmetic change reported as code change")
		}
	})
	t.Run("rewired input", func(t *testing.T) {
		next := g.Clone()
		next.Nodes = append(next.Nodes, node("Z"))
		next.Edges[1] = edge("Z", "C")
		changed := ids(dag.ChangedNodes(&g, next))
		if want := []string{"C", "Z"}; !slices.Equal(changed, want) {
			t.Errorf("changed = %v, want %v", changed, want)
		}
	})
	t.Run("extra run", func(t *testing.T) {
		next := g.Clone()
		next.Nodes[2].Data.ExtraRun = 2
		changed := ids(dag.ChangedNodes(&g, next))
		if want := []string{"C"}; !slices.Equal(changed, want) {
			t.Errorf("changed = %v, want %v", changed, want)
		}
	})
}

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"empty", ``, dag.ErrParse},
		{"not json", `{nodes: 1}`, dag.ErrParse},
		{"unknown node", `{"nodes":[],"edges":[{"id":"e","source":"1","sourceHandle":"out0","target":"2","targetHandle":"in0"}]}`, dag.ErrStructural},
		{"duplicate node", `{"nodes":[{"id":"1","position":{"x":0,"y":0},"data":{}},{"id":"1","position":{"x":0,"y":0},"data":{}}],"edges":[]}`, dag.ErrStructural},
		{"underscore in node id", `{"nodes":[{"id":"1_a","position":{"x":0,"y":0},"data":{"outputs":[{"id":"out0","name":"v","type":"image"}]}}],"edges":[]}`, dag.ErrStructural},
		{"underscore in handle id", `{"nodes":[{"id":"1","position":{"x":0,"y":0},"data":{"outputs":[{"id":"a_out0","name":"v","type":"image"}]}}],"edges":[]}`, dag.ErrStructural},
		{"dash in node id", `{"nodes":[{"id":"n-1","position":{"x":0,"y":0},"data":{}}],"edges":[]}`, dag.ErrStructural},
		{"empty handle id", `{"nodes":[{"id":"1","position":{"x":0,"y":0},"data":{"inputs":[{"name":"v","type":"image"}]}}],"edges":[]}`, dag.ErrStructural},
		{"ok", `{"nodes":[{"id":"1","position":{"x":1,"y":2},"data":{"specName":"s","inputs":[{"id":"in0","name":"v","type":["number","string"],"defaultValue":3}]}}],"edges":[]}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := dag.Parse([]byte(tc.doc))
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got := g.Nodes[0].Data.Inputs[0].Type; len(got) != 2 {
					t.Errorf("type = %v", got)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestParse_RejectsCycle(t *testing.T) {
	g := dag.WithEdge(chain("1", "2"), dag.Edge{ID: "back", Source: "2", SourceHandle: "out0", Target: "1", TargetHandle: "in0"})
	g.Nodes[0].Data.Inputs = append(g.Nodes[0].Data.Inputs, dag.Handle{ID: "in1"})
	g.Edges[len(g.Edges)-1].TargetHandle = "in1"
	b, err := dag.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	_, err = dag.Parse(b)
	var se *dag.StructuralError
	if !errors.As(err, &se) || se.Element != "back" {
		t.Errorf("err = %v", err)
	}
}

func TestMarshal_StripsEditorRefAndDigestIsStable(t *testing.T) {
	g := chain("1", "2")
	g.Nodes[0].Data.EditorRef = struct{ Name string }{"live editor"}

	b, err := dag.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "live editor") {
		t.Errorf("editor ref serialized: %s", b)
	}
	if !strings.Contains(string(b), `"type":"image"`) {
		t.Errorf("single tag should encode as a string: %s", b)
	}
	if g.Nodes[0].Data.EditorRef == nil {
		t.Error("Marshal mutated its argument")
	}

	back, err := dag.Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	d1, _ := dag.Digest(g)
	d2, _ := dag.Digest(back)
	if d1 != d2 || len(d1) != 64 {
		t.Errorf("digests differ: %s vs %s", d1, d2)
	}
}

func TestSplitHandleVar(t *testing.T) {
	v := dag.HandleVar("e12ab", "7", "out1")
	editorID, nodeID, handleID, ok := dag.SplitHandleVar(v)
	if !ok || editorID != "e12ab" || nodeID != "7" || handleID != "out1" {
		t.Errorf("SplitHandleVar(%q) = %q %q %q %v", v, editorID, nodeID, handleID, ok)
	}
}

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"1": true, "main": true, "e3f2A9": true, "out0": true,
		"": false, "1_a": false, "n-1": false, "a b": false, "é": false,
	}
	for id, want := range cases {
		if got := dag.ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}
