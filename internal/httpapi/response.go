// Package httpapi exposes the job-ingest, agent-protocol, ephemeral-query,
// and GitOps HTTP surface described in §6, as a gorilla/mux router wired
// into internal/system's lifecycle manager.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/logging"
)

// muxVar reads a path variable, matching mux.Vars(r)[name] without every
// handler repeating the map lookup.
func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// errorResponse is the JSON envelope every failed request answers with.
type errorResponse struct {
	Kind    apperrors.Kind         `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// writeJSON writes data as a status-coded JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError translates err into the apperrors-shaped JSON envelope,
// defaulting to a 500 for anything that isn't an *apperrors.Error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.KindConfiguration, "internal error", http.StatusInternalServerError)
	}
	writeJSON(w, appErr.HTTPStatus, errorResponse{
		Kind:    appErr.Kind,
		Message: appErr.Message,
		Details: appErr.Details,
		TraceID: logging.GetTraceID(r.Context()),
	})
}

// decodeJSON decodes r's body into v, writing a 400 response and returning
// false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		writeError(w, r, apperrors.Configuration("request_body", "missing body"))
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, apperrors.Configuration("request_body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}
