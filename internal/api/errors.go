// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/actionprobe/internal/app"
	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/kassir"
	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/probe"
	"github.com/ManuGH/actionprobe/internal/session"
	"github.com/ManuGH/actionprobe/internal/storage"
)

// Error codes of the JSON error body.
const (
	CodeInvalidBody    = "invalid_body"
	CodeInvalidInput   = "invalid_input"
	CodeEmptyBatch     = "empty_batch"
	CodeNoListing      = "no_listing"
	CodeAlreadyRunning = "already_running"
	CodeUpstream       = "upstream_error"
	CodeStorage        = "storage_error"
	CodeInternal       = "internal_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"upstreamStatus,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, ErrorBody) {
	body := ErrorBody{Detail: err.Error()}
	var remoteErr *kassir.RemoteError

	switch {
	case errors.Is(err, probe.ErrEmptyBatch):
		body.Error = CodeEmptyBatch
		return http.StatusBadRequest, body
	case errors.Is(err, app.ErrNoListing):
		body.Error = CodeNoListing
		return http.StatusBadRequest, body
	case errors.Is(err, action.ErrInvalidID),
		errors.Is(err, probe.ErrInvalidInterval),
		errors.Is(err, session.ErrCityMismatch):
		body.Error = CodeInvalidInput
		return http.StatusBadRequest, body
	case errors.Is(err, probe.ErrAlreadyRunning):
		body.Error = CodeAlreadyRunning
		return http.StatusConflict, body
	case errors.As(err, &remoteErr):
		body.Error = CodeUpstream
		body.Status = remoteErr.HTTPStatus
		return http.StatusBadGateway, body
	case storage.IsStorageError(err):
		body.Error = CodeStorage
		return http.StatusInternalServerError, body
	default:
		body.Error = CodeInternal
		return http.StatusInternalServerError, body
	}
}

// writeError logs and writes err as a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := classify(err)
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	ev := logger.Debug()
	if code >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).
		Str(xglog.FieldEvent, "api.error").
		Str("code", body.Error).
		Int(xglog.FieldStatusCode, code).
		Msg("request failed")
	writeJSON(w, code, body)
}

func writeBadRequest(w http.ResponseWriter, code, detail string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: code, Detail: detail})
}
