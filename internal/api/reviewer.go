// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strings"

	"github.com/ManuGH/vlabel/internal/auth"
	"github.com/ManuGH/vlabel/internal/log"
)

type loginRequest struct {
	Password string `json:"password"`
}

type usersResponse struct {
	PerUser     map[string]int `json:"perUser"`
	TotalVideos int            `json:"totalVideos"`
}

// requireReviewer rejects requests without a valid reviewer session.
func (s *Server) requireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sessions == nil {
			writeError(w, r, errUnauthorized)
			return
		}
		if err := s.sessions.Verify(auth.ExtractToken(r)); err != nil {
			logger := log.WithComponentFromContext(r.Context(), "auth")
			logger.Debug().Err(err).Str(log.FieldEvent, "auth.rejected").Msg("reviewer session rejected")
			s.audit.AuthRejected(r, err.Error())
			writeError(w, r, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// POST /api/reviewer/login
func (s *Server) handleReviewerLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pwd := strings.TrimSpace(req.Password)
	if pwd == "" {
		writeError(w, r, errMissingPassword)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "auth")
	if s.sessions == nil || !auth.AuthorizePassword(pwd, s.cfg.ReviewerPassword) {
		logger.Warn().
			Str(log.FieldEvent, "auth.login_failed").
			Str("remote_addr", r.RemoteAddr).
			Msg("reviewer login failed")
		s.audit.AuthFailure(r, "invalid password")
		writeError(w, r, errBadPassword)
		return
	}

	token, exp, err := s.sessions.Issue()
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info().
		Str(log.FieldEvent, "auth.login").
		Str("remote_addr", r.RemoteAddr).
		Msg("reviewer session issued")
	s.audit.AuthSuccess(r)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// POST /api/reviewer/logout
func (s *Server) handleReviewerLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.audit.AuthLogout(r)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// GET /api/users
func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	perUser, total := s.engine.Users()
	writeJSON(w, http.StatusOK, usersResponse{PerUser: perUser, TotalVideos: total})
}

// GET /api/labels?user=&limit=
func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newItems(s.engine.Labels(queryUser(r), queryLimit(r))))
}

// GET /api/balance
func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Balance())
}
