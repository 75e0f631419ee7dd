package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gyaneshwarpardhi/flowcode/internal/ctxlog"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/editor"
)

// editorResponse is returned by routes that change the graph.
type editorResponse struct {
	ID    string    `json:"id"`
	Graph dag.Graph `json:"graph"`
}

// withSession resolves {id} and runs fn while holding the session lock.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(s *session)) {
	s, ok := h.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("editor %q not found", r.PathValue("id")))
		return
	}
	s.lock()
	defer s.unlock()
	fn(s)
}

// mutate runs fn under the session lock and answers with the resulting graph.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(ed *editor.Editor) error) {
	h.withSession(w, r, func(s *session) {
		if err := fn(s.ed); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, editorResponse{ID: s.ed.ID(), Graph: s.ed.Graph()})
	})
}

// POST /v1/editors — open an editor, optionally seeded with a graph document.
func (h *Handler) createEditor(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ed := editor.New(h.compiler.Catalog(), h.compiler.Generator())
	if len(body) > 0 {
		var req struct {
			Graph json.RawMessage `json:"graph"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if len(req.Graph) > 0 {
			if err := ed.LoadJSON(req.Graph); err != nil {
				writeErr(w, err)
				return
			}
		}
	}
	h.sessions.add(ed)
	ctxlog.FromContext(r.Context()).Info("editor opened", "editor", ed.ID(), "nodes", ed.Graph().NodeCount())
	writeJSON(w, http.StatusCreated, editorResponse{ID: ed.ID(), Graph: ed.Graph()})
}

// GET /v1/editors/{id}
func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(*editor.Editor) error { return nil })
}

// DELETE /v1/editors/{id}
func (h *Handler) deleteEditor(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("editor %q not found", r.PathValue("id")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /v1/editors/{id}/graph — replace the graph with a persisted document.
func (h *Handler) putGraph(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error { return ed.LoadJSON(body) })
}

// POST /v1/editors/{id}/changes — apply an ordered change-list.
func (h *Handler) applyChanges(w http.ResponseWriter, r *http.Request) {
	var changes []editor.Change
	if !decode(w, r, &changes) {
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error { return ed.Apply(changes...) })
}

// PATCH /v1/editors/{id}/elements — move or (de)select named elements.
func (h *Handler) updateElements(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nodes []editor.ElementUpdate `json:"nodes"`
		Edges []editor.ElementUpdate `json:"edges"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error { return ed.UpdateElements(req.Nodes, req.Edges) })
}

// POST /v1/editors/{id}/nodes — instantiate a template.
func (h *Handler) addNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpecName string       `json:"specName"`
		Position dag.Position `json:"position"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(s *session) {
		n, err := s.ed.AddNodeFromSpec(req.SpecName, req.Position)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	})
}

// POST /v1/editors/{id}/connections/validate
func (h *Handler) validateConnection(w http.ResponseWriter, r *http.Request) {
	var c editor.Connection
	if !decode(w, r, &c) {
		return
	}
	h.withSession(w, r, func(s *session) {
		writeJSON(w, http.StatusOK, s.ed.ValidateConnection(c))
	})
}

// POST /v1/editors/{id}/connections — validate and, unless rejected, connect.
func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	var c editor.Connection
	if !decode(w, r, &c) {
		return
	}
	h.withSession(w, r, func(s *session) {
		st, err := s.ed.Connect(c)
		if err != nil {
			writeErr(w, err)
			return
		}
		status := http.StatusOK
		if st.Status == editor.Reject {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{
			"status":  st.Status,
			"message": st.Message,
			"graph":   s.ed.Graph(),
		})
	})
}

// POST /v1/editors/{id}/disconnect — drop the edges of a handle or a whole node.
func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID    string           `json:"nodeId"`
		HandleID  string           `json:"handleId"`
		Direction editor.Direction `json:"direction"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error {
		if req.HandleID == "" {
			return ed.DisconnectNode(req.NodeID)
		}
		if req.Direction != editor.Source && req.Direction != editor.Target {
			return fmt.Errorf("direction must be %q or %q", editor.Source, editor.Target)
		}
		return ed.DisconnectHandle(req.NodeID, req.HandleID, req.Direction)
	})
}

// POST /v1/editors/{id}/selection — all, none, node, edge or remove.
func (h *Handler) selection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		ID     string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error {
		switch req.Action {
		case "all":
			return ed.SelectAll()
		case "none":
			return ed.DeselectAll()
		case "node":
			return ed.SelectOnlyNode(req.ID)
		case "edge":
			return ed.SelectOnlyEdge(req.ID)
		case "remove":
			return ed.RemoveSelected()
		default:
			return fmt.Errorf("unknown selection action %q", req.Action)
		}
	})
}

// POST /v1/editors/{id}/clipboard/{op} — copy, cut, paste or duplicate.
// The clipboard lives with the client: copy and cut return it, paste takes it back.
func (h *Handler) clipboard(w http.ResponseWriter, r *http.Request) {
	op := r.PathValue("op")
	switch op {
	case "copy", "cut":
		h.withSession(w, r, func(s *session) {
			var (
				data []byte
				err  error
			)
			if op == "copy" {
				data, err = s.ed.Copy()
			} else {
				data, err = s.ed.Cut()
			}
			if err != nil {
				writeErr(w, err)
				return
			}
			if data == nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"clipboard": json.RawMessage(data),
				"graph":     s.ed.Graph(),
			})
		})
	case "paste":
		var req struct {
			Clipboard json.RawMessage `json:"clipboard"`
			Position  *dag.Position   `json:"position"`
			Offset    dag.Position    `json:"offset"`
		}
		if !decode(w, r, &req) {
			return
		}
		h.mutate(w, r, func(ed *editor.Editor) error { return ed.Paste(req.Clipboard, req.Position, req.Offset) })
	case "duplicate":
		h.mutate(w, r, func(ed *editor.Editor) error { return ed.Duplicate() })
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown clipboard operation %q", op))
	}
}

// POST /v1/editors/{id}/values — set a handle default or node property.
func (h *Handler) setValue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		NodeID   string `json:"nodeId"`
		ID       string `json:"id"`
		Value    any    `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error { return ed.SetValue(req.Category, req.NodeID, req.ID, req.Value) })
}

// POST /v1/editors/{id}/inspections — store a value reported by generated code.
func (h *Handler) updateInspection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
		Value  any    `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error { return ed.UpdateInspection(req.Handle, req.Value) })
}

// POST /v1/editors/{id}/batch/{node}/items — select batch images by glob.
func (h *Handler) selectBatchItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(s *session) {
		items, err := s.ed.SelectBatchItems(r.PathValue("node"), req.Pattern)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})
}

// GET /v1/editors/{id}/readiness — inputs blocking execution, per node.
func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session) {
		nr := s.ed.NotReadyNodes()
		writeJSON(w, http.StatusOK, map[string]any{
			"ready":         len(nr) == 0,
			"notReadyNodes": nr,
		})
	})
}

// GET /v1/editors/{id}/code?incremental=true&instrument=true
// Responds 204 when there is nothing to run.
func (h *Handler) code(w http.ResponseWriter, r *http.Request) {
	incremental, err := boolParam(r, "incremental", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	instrument, err := boolParam(r, "instrument", h.loader.Config().Codegen.Instrument)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withSession(w, r, func(s *session) {
		p, err := s.ed.Code(incremental, instrument)
		if err != nil {
			writeErr(w, err)
			return
		}
		if p == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("query parameter %s: %w", name, err)
	}
	return b, nil
}

// POST /v1/editors/{id}/save — persist the graph under a name.
func (h *Handler) saveGraph(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusNotFound, "graph store disabled")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(s *session) {
		digest, err := h.db.Save(r.Context(), req.Name, s.ed.Graph())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"name": req.Name, "digest": digest})
	})
}

// POST /v1/editors/{id}/load — replace the graph with a persisted one.
func (h *Handler) loadGraph(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusNotFound, "graph store disabled")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	g, _, err := h.db.Load(r.Context(), req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.mutate(w, r, func(ed *editor.Editor) error { return ed.Load(g) })
}
