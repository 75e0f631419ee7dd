// Package api exposes editor sessions, standalone compilation and the template
// catalog over HTTP, with a websocket for live graph updates.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/flowcode/internal/config"
	"github.com/gyaneshwarpardhi/flowcode/internal/engine"
	"github.com/gyaneshwarpardhi/flowcode/internal/metrics"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
	"github.com/gyaneshwarpardhi/flowcode/internal/store"
)

const maxBatchSize = 100

// Handler holds all HTTP handler dependencies.
type Handler struct {
	compiler *engine.Compiler
	loader   *config.Loader
	db       *store.DB
	sessions *sessionManager
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	// catalogReload re-reads the template catalog; nil when no catalog file is configured.
	catalogReload func() (*nodespec.Catalog, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithStore enables the graph persistence routes.
func WithStore(db *store.DB) Option {
	return func(h *Handler) { h.db = db }
}

// WithCatalogReload enables POST /v1/specs/reload.
func WithCatalogReload(fn func() (*nodespec.Catalog, error)) Option {
	return func(h *Handler) { h.catalogReload = fn }
}

// New creates an HTTP handler and registers all routes. Idle sessions are swept
// until ctx is done.
func New(ctx context.Context, compiler *engine.Compiler, loader *config.Loader, opts ...Option) http.Handler {
	h := &Handler{
		compiler: compiler,
		loader:   loader,
		sessions: newSessionManager(loader.Config().Server.SessionTTL()),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(h)
	}
	go h.sessions.cleanupLoop(ctx)

	h.mux.HandleFunc("POST /v1/editors", h.createEditor)
	h.mux.HandleFunc("GET /v1/editors/{id}", h.getGraph)
	h.mux.HandleFunc("DELETE /v1/editors/{id}", h.deleteEditor)
	h.mux.HandleFunc("PUT /v1/editors/{id}/graph", h.putGraph)
	h.mux.HandleFunc("POST /v1/editors/{id}/changes", h.applyChanges)
	h.mux.HandleFunc("PATCH /v1/editors/{id}/elements", h.updateElements)
	h.mux.HandleFunc("POST /v1/editors/{id}/nodes", h.addNode)
	h.mux.HandleFunc("POST /v1/editors/{id}/connections/validate", h.validateConnection)
	h.mux.HandleFunc("POST /v1/editors/{id}/connections", h.connect)
	h.mux.HandleFunc("POST /v1/editors/{id}/disconnect", h.disconnect)
	h.mux.HandleFunc("POST /v1/editors/{id}/selection", h.selection)
	h.mux.HandleFunc("POST /v1/editors/{id}/clipboard/{op}", h.clipboard)
	h.mux.HandleFunc("POST /v1/editors/{id}/values", h.setValue)
	h.mux.HandleFunc("POST /v1/editors/{id}/inspections", h.updateInspection)
	h.mux.HandleFunc("POST /v1/editors/{id}/batch/{node}/items", h.selectBatchItems)
	h.mux.HandleFunc("GET /v1/editors/{id}/readiness", h.readiness)
	h.mux.HandleFunc("GET /v1/editors/{id}/code", h.code)
	h.mux.HandleFunc("POST /v1/editors/{id}/save", h.saveGraph)
	h.mux.HandleFunc("POST /v1/editors/{id}/load", h.loadGraph)
	h.mux.HandleFunc("GET /v1/editors/{id}/live", h.live)
	h.mux.HandleFunc("GET /v1/graphs", h.listGraphs)
	h.mux.HandleFunc("POST /v1/compile", h.compile)
	h.mux.HandleFunc("POST /v1/compile/batch", h.compileBatch)
	h.mux.HandleFunc("GET /v1/specs", h.listSpecs)
	h.mux.HandleFunc("POST /v1/specs/reload", h.reloadSpecs)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// GET /v1/specs — list templates grouped by category.
func (h *Handler) listSpecs(w http.ResponseWriter, r *http.Request) {
	cat := h.compiler.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"language":   h.compiler.Language().Name(),
		"specs":      cat.Specs(),
		"categories": cat.Categories(),
	})
}

// POST /v1/specs/reload — re-read the template catalog and swap it in.
func (h *Handler) reloadSpecs(w http.ResponseWriter, r *http.Request) {
	if h.catalogReload == nil {
		writeError(w, http.StatusNotFound, "no catalog file configured")
		return
	}
	cat, err := h.catalogReload()
	if err != nil {
		metrics.CatalogReloads.WithLabelValues("error").Inc()
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.compiler.SwapCatalog(cat)
	metrics.CatalogReloads.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":    true,
		"specs_count": cat.Len(),
	})
}

// GET /healthz — always 200 (liveness).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the compile queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.compiler.QueueUtilization()
	metrics.CompileQueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// POST /v1/compile — synchronous standalone compilation.
func (h *Handler) compile(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !decode(w, r, &req) {
		return
	}
	res, err := h.compiler.Compile(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	status := http.StatusOK
	if res.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// POST /v1/compile/batch — compile up to 100 graphs concurrently.
func (h *Handler) compileBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []*engine.Request
	if !decode(w, r, &reqs) {
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one graph")
		return
	}
	if len(reqs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(reqs), maxBatchSize))
		return
	}
	results := h.compiler.CompileBatch(r.Context(), reqs)
	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(results),
		"failed":  failed,
		"results": results,
	})
}

// GET /v1/graphs — list persisted graphs.
func (h *Handler) listGraphs(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusNotFound, "graph store disabled")
		return
	}
	entries, err := h.db.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": entries})
}
