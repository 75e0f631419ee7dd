package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyaneshwarpardhi/flowcode/internal/api"
	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/config"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/engine"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
	"github.com/gyaneshwarpardhi/flowcode/internal/store"
)

const catalogYAML = `
version: v1
specs:
  - name: load
    category: io
    inputs:
      - name: path
        type: string
        default: a.png
        widget: {type: String}
    outputs:
      - {name: image, type: image}
    code:
      Python:
        - template: "{{.out.image}} = load({{.in.path}})"
  - name: blur
    category: filters
    inputs:
      - {name: image, type: image}
    outputs:
      - {name: image, type: image}
    code:
      Python:
        - template: "{{.out.image}} = blur({{.in.image}})"
`

type env struct {
	srv *httptest.Server
	t   *testing.T
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "flowcode.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: v1\ncodegen: {instrument: false}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	loader, err := config.NewLoader(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := nodespec.Parse([]byte(catalogYAML))
	if err != nil {
		t.Fatal(err)
	}
	db, err := store.Open(filepath.Join(dir, "graphs.db"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	compiler := engine.New(ctx, cat, codegen.Python{}, loader.Config().Compiler, nil)
	h := api.New(ctx, compiler, loader,
		api.WithStore(db),
		api.WithCatalogReload(func() (*nodespec.Catalog, error) { return nodespec.Parse([]byte(catalogYAML)) }),
	)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		compiler.Shutdown()
		db.Close()
	})
	return &env{srv: srv, t: t}
}

func (e *env) do(method, path string, body any, out any) int {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		e.t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			e.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type editorResp struct {
	ID    string    `json:"id"`
	Graph dag.Graph `json:"graph"`
}

func (e *env) pipeline() string {
	e.t.Helper()
	var ed editorResp
	if code := e.do("POST", "/v1/editors", nil, &ed); code != http.StatusCreated {
		e.t.Fatalf("create editor: %d", code)
	}
	for _, spec := range []string{"load", "blur"} {
		if code := e.do("POST", "/v1/editors/"+ed.ID+"/nodes", map[string]any{"specName": spec}, nil); code != http.StatusCreated {
			e.t.Fatalf("add %s: %d", spec, code)
		}
	}
	var conn struct {
		Status string `json:"status"`
	}
	e.do("POST", "/v1/editors/"+ed.ID+"/connections",
		map[string]string{"source": "1", "sourceHandle": "out0", "target": "2", "targetHandle": "in0"}, &conn)
	if conn.Status != "accept" {
		e.t.Fatalf("connect status = %q", conn.Status)
	}
	return ed.ID
}

func TestEditorLifecycle(t *testing.T) {
	e := newEnv(t)
	id := e.pipeline()

	var prog struct {
		Code      string `json:"code"`
		Generated int    `json:"generated"`
	}
	if code := e.do("GET", "/v1/editors/"+id+"/code?incremental=true", nil, &prog); code != http.StatusOK {
		t.Fatalf("code status = %d", code)
	}
	want := id + "_1_out0 = load('a.png')\n\n" + id + "_2_out0 = blur(" + id + "_1_out0)\n"
	if prog.Code != want {
		t.Errorf("code = %q, want %q", prog.Code, want)
	}
	if code := e.do("GET", "/v1/editors/"+id+"/code", nil, nil); code != http.StatusNoContent {
		t.Errorf("unchanged code status = %d, want 204", code)
	}

	var val editorResp
	if code := e.do("POST", "/v1/editors/"+id+"/values",
		map[string]any{"category": "inputs", "nodeId": "1", "id": "in0", "value": "b.png"}, &val); code != http.StatusOK {
		t.Fatalf("set value: %d", code)
	}
	if code := e.do("GET", "/v1/editors/"+id+"/code", nil, &prog); code != http.StatusOK || prog.Generated != 2 {
		t.Errorf("incremental after change: %d, %+v", code, prog)
	}

	if code := e.do("DELETE", "/v1/editors/"+id, nil, nil); code != http.StatusNoContent {
		t.Errorf("delete status = %d", code)
	}
	if code := e.do("GET", "/v1/editors/"+id, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after delete = %d", code)
	}
}

func TestConnectRejectAndErrors(t *testing.T) {
	e := newEnv(t)
	id := e.pipeline()

	var st struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	code := e.do("POST", "/v1/editors/"+id+"/connections",
		map[string]string{"source": "2", "sourceHandle": "out0", "target": "2", "targetHandle": "in0"}, &st)
	if code != http.StatusConflict || st.Status != "reject" {
		t.Errorf("self connect = %d %+v", code, st)
	}

	if code := e.do("POST", "/v1/editors/"+id+"/nodes", map[string]any{"specName": "nope"}, nil); code != http.StatusNotFound {
		t.Errorf("unknown spec status = %d", code)
	}
	if code := e.do("PUT", "/v1/editors/"+id+"/graph", nil, nil); code != http.StatusBadRequest {
		t.Errorf("empty graph document status = %d", code)
	}
	if code := e.do("POST", "/v1/editors/"+id+"/selection", map[string]string{"action": "node", "id": "9"}, nil); code != http.StatusNotFound {
		t.Errorf("select unknown node status = %d", code)
	}
}

func TestClipboardRoundTrip(t *testing.T) {
	e := newEnv(t)
	id := e.pipeline()

	e.do("POST", "/v1/editors/"+id+"/selection", map[string]string{"action": "all"}, nil)
	var copied struct {
		Clipboard json.RawMessage `json:"clipboard"`
	}
	if code := e.do("POST", "/v1/editors/"+id+"/clipboard/copy", nil, &copied); code != http.StatusOK {
		t.Fatalf("copy status = %d", code)
	}
	var pasted editorResp
	code := e.do("POST", "/v1/editors/"+id+"/clipboard/paste",
		map[string]any{"clipboard": copied.Clipboard, "position": map[string]float64{"x": 200, "y": 0}}, &pasted)
	if code != http.StatusOK {
		t.Fatalf("paste status = %d", code)
	}
	if len(pasted.Graph.Nodes) != 4 || len(pasted.Graph.Edges) != 2 {
		t.Errorf("after paste: %d nodes, %d edges", len(pasted.Graph.Nodes), len(pasted.Graph.Edges))
	}
}

func TestSaveAndLoad(t *testing.T) {
	e := newEnv(t)
	id := e.pipeline()

	var saved struct {
		Digest string `json:"digest"`
	}
	if code := e.do("POST", "/v1/editors/"+id+"/save", map[string]string{"name": "demo"}, &saved); code != http.StatusOK || saved.Digest == "" {
		t.Fatalf("save = %d %+v", code, saved)
	}

	var other editorResp
	e.do("POST", "/v1/editors", nil, &other)
	var loaded editorResp
	if code := e.do("POST", "/v1/editors/"+other.ID+"/load", map[string]string{"name": "demo"}, &loaded); code != http.StatusOK {
		t.Fatalf("load status = %d", code)
	}
	if len(loaded.Graph.Nodes) != 2 || len(loaded.Graph.Edges) != 1 {
		t.Errorf("loaded %d nodes, %d edges", len(loaded.Graph.Nodes), len(loaded.Graph.Edges))
	}

	var list struct {
		Graphs []store.Entry `json:"graphs"`
	}
	e.do("GET", "/v1/graphs", nil, &list)
	if len(list.Graphs) != 1 || list.Graphs[0].Name != "demo" {
		t.Errorf("graphs = %+v", list.Graphs)
	}
	if code := e.do("POST", "/v1/editors/"+other.ID+"/load", map[string]string{"name": "missing"}, nil); code != http.StatusNotFound {
		t.Errorf("missing graph status = %d", code)
	}
}

func TestCompileEndpoints(t *testing.T) {
	e := newEnv(t)
	id := e.pipeline()
	var ed editorResp
	e.do("GET", "/v1/editors/"+id, nil, &ed)

	var res engine.Result
	if code := e.do("POST", "/v1/compile", engine.Request{Name: "one", Graph: ed.Graph}, &res); code != http.StatusOK {
		t.Fatalf("compile status = %d (%s)", code, res.Error)
	}
	if !strings.Contains(res.Code, "main_2_out0 = blur(main_1_out0)") {
		t.Errorf("code = %q", res.Code)
	}

	var batch struct {
		Total   int              `json:"total"`
		Failed  int              `json:"failed"`
		Results []*engine.Result `json:"results"`
	}
	reqs := []engine.Request{{Name: "a", Graph: ed.Graph}, {Name: "b", Graph: dag.Graph{}}}
	if code := e.do("POST", "/v1/compile/batch", reqs, &batch); code != http.StatusOK {
		t.Fatalf("batch status = %d", code)
	}
	if batch.Total != 2 || batch.Failed != 0 || batch.Results[0].Name != "a" {
		t.Errorf("batch = %+v", batch)
	}
	if code := e.do("POST", "/v1/compile/batch", []engine.Request{}, nil); code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d", code)
	}
}

func TestSpecsAndHealthEndpoints(t *testing.T) {
	e := newEnv(t)
	var specs struct {
		Language   string              `json:"language"`
		Categories map[string][]string `json:"categories"`
	}
	e.do("GET", "/v1/specs", nil, &specs)
	if specs.Language != "Python" || len(specs.Categories["filters"]) != 1 {
		t.Errorf("specs = %+v", specs)
	}
	if code := e.do("POST", "/v1/specs/reload", nil, nil); code != http.StatusOK {
		t.Errorf("reload status = %d", code)
	}
	for _, path := range []string{"/healthz", "/readyz"} {
		if code := e.do("GET", path, nil, nil); code != http.StatusOK {
			t.Errorf("%s = %d", path, code)
		}
	}
}

func TestLiveSocket(t *testing.T) {
	e := newEnv(t)
	id := e.pipeline()

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/editors/" + id + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type  string    `json:"type"`
		Graph dag.Graph `json:"graph"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "graph" || len(first.Graph.Nodes) != 2 {
		t.Fatalf("initial message = %+v", first)
	}

	if err := conn.WriteJSON(map[string]any{"type": "changes", "changes": []map[string]any{{"type": "select"}}}); err != nil {
		t.Fatal(err)
	}
	var pushed struct {
		Type  string    `json:"type"`
		Graph dag.Graph `json:"graph"`
	}
	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.Type != "graph" || !pushed.Graph.Nodes[0].Selected {
		t.Errorf("push = %+v", pushed)
	}

	if err := conn.WriteJSON(map[string]any{"type": "code", "incremental": false}); err != nil {
		t.Fatal(err)
	}
	var reply struct {
		Type    string `json:"type"`
		Program struct {
			Generated int `json:"generated"`
		} `json:"program"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "code" || reply.Program.Generated != 2 {
		t.Errorf("reply = %+v", reply)
	}
}
