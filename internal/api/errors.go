// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/vlabel/internal/assign"
	"github.com/ManuGH/vlabel/internal/catalog"
	"github.com/ManuGH/vlabel/internal/log"
)

var (
	errMissingUser      = errors.New("missing user")
	errMissingID        = errors.New("missing id")
	errMissingPassword  = errors.New("missing password")
	errBadPassword      = errors.New("invalid password")
	errUnauthorized     = errors.New("unauthorized")
	errInvalidJSON      = errors.New("invalid json body")
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errForbidden        = errors.New("forbidden")
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeErrorStatus(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assign.ErrInvalidRequest),
		errors.Is(err, errMissingUser),
		errors.Is(err, errMissingID),
		errors.Is(err, errMissingPassword),
		errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized), errors.Is(err, errBadPassword):
		return http.StatusUnauthorized
	case errors.Is(err, assign.ErrInvalidAssignment), errors.Is(err, assign.ErrNotEligible):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrUnknownVideo):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and hides their detail from clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code < http.StatusInternalServerError {
		writeErrorStatus(w, code, err)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Error().Err(err).
		Str(log.FieldEvent, "request.failed").
		Str(log.FieldPath, r.URL.Path).
		Msg("request failed")

	msg := "internal error"
	if errors.Is(err, assign.ErrPersistence) {
		msg = "label could not be saved"
	}
	writeJSON(w, code, errorBody{Error: msg})
}
