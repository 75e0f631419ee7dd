package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/editor"
	"github.com/gyaneshwarpardhi/flowcode/internal/registry"
	"github.com/gyaneshwarpardhi/flowcode/internal/store"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps domain errors onto status codes.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, editor.ErrUnknownNode),
		errors.Is(err, editor.ErrUnknownEdge),
		errors.Is(err, registry.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dag.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, dag.ErrStructural),
		errors.Is(err, codegen.ErrMultipleBatchNodes):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// decode reads a JSON request body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
