// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ManuGH/vlabel/internal/assign"
	"github.com/ManuGH/vlabel/internal/ledger"
)

const maxBodyBytes = 64 << 10

type assignmentResponse struct {
	Done   bool   `json:"done,omitempty"`
	Reason string `json:"reason,omitempty"`
	ID     string `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
}

func toAssignmentResponse(a assign.Assignment) assignmentResponse {
	if a.Done {
		return assignmentResponse{Done: true, Reason: a.Reason}
	}
	return assignmentResponse{ID: a.ID, URL: a.URL}
}

type okResponse struct {
	OK bool `json:"ok"`
}

type labelRequest struct {
	ID         string  `json:"id"`
	User       string  `json:"user"`
	Label      string  `json:"label"`
	TimeMS     float64 `json:"time_ms"`
	DurationMS float64 `json:"duration_ms"`
}

type clipRequest struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type undoRequest struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

type undoResponse struct {
	OK     bool     `json:"ok"`
	Undone int      `json:"undone"`
	IDs    []string `json:"ids"`
}

type redoResponse struct {
	OK     bool `json:"ok"`
	Redone int  `json:"redone"`
}

type itemsResponse struct {
	Items []ledger.Record `json:"items"`
	Count int             `json:"count"`
}

// decodeBody reads a bounded JSON body into v. An empty body leaves v zero.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidJSON
	}
	return nil
}

func queryUser(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return assign.ClampLimit(n)
}

func newItems(recs []ledger.Record) itemsResponse {
	if recs == nil {
		recs = []ledger.Record{}
	}
	return itemsResponse{Items: recs, Count: len(recs)}
}

// GET /api/next?user=
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	user := queryUser(r)
	if user == "" {
		writeError(w, r, errMissingUser)
		return
	}
	a, err := s.engine.Next(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentResponse(a))
}

// GET /api/peek?user= (user optional)
func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Peek(r.Context(), queryUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentResponse(a))
}

// POST /api/label
func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	_, err := s.engine.Label(r.Context(), assign.LabelRequest{
		ID:         strings.TrimSpace(req.ID),
		User:       strings.TrimSpace(req.User),
		Label:      req.Label,
		TimeMS:     req.TimeMS,
		DurationMS: req.DurationMS,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// POST /api/skip
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req clipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, errMissingID)
		return
	}
	if _, err := s.engine.Skip(r.Context(), strings.TrimSpace(req.User), strings.TrimSpace(req.ID)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// POST /api/undo
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var req undoRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.engine.Undo(r.Context(), strings.TrimSpace(req.User), req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids := res.IDs
	if ids == nil {
		ids = []string{}
	}
	if len(ids) > 0 {
		s.audit.LabelsUndone(r, strings.TrimSpace(req.User), ids)
	}
	writeJSON(w, http.StatusOK, undoResponse{OK: true, Undone: res.Undone, IDs: ids})
}

// POST /api/redo
func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	var req clipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user := strings.TrimSpace(req.User)
	res, err := s.engine.Redo(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Redone > 0 {
		s.audit.LabelsRedone(r, user, res.IDs)
	}
	writeJSON(w, http.StatusOK, redoResponse{OK: true, Redone: res.Redone})
}

// POST /api/unlabel
func (s *Server) handleUnlabel(w http.ResponseWriter, r *http.Request) {
	var req clipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, id := strings.TrimSpace(req.User), strings.TrimSpace(req.ID)
	removed, err := s.engine.Unlabel(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if removed {
		s.audit.LabelRemoved(r, user, id)
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// GET /api/mystats?user=
func (s *Server) handleMyStats(w http.ResponseWriter, r *http.Request) {
	user := queryUser(r)
	if user == "" {
		writeError(w, r, errMissingUser)
		return
	}
	st, err := s.engine.MyStats(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /api/user_labels?user=&label=all|ok|not_ok&limit=
func (s *Server) handleUserLabels(w http.ResponseWriter, r *http.Request) {
	user := queryUser(r)
	if user == "" {
		writeError(w, r, errMissingUser)
		return
	}
	f := ledger.ParseFilter(r.URL.Query().Get("label"))
	recs, err := s.engine.UserLabels(user, f, queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItems(recs))
}
