// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/vlabel/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/", s.staticPage("index.html"))
	r.Get("/review", s.staticPage("review.html"))
	r.Get("/my", s.staticPage("my.html"))
	r.Get("/static/*", s.handleStatic)
	r.Get("/videos/*", s.handleVideo)
	r.Head("/videos/*", s.handleVideo)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit.Enabled {
			r.Use(middleware.APIRateLimit(s.cfg.RateLimit.RequestsPerMinute))
		}
		r.Get("/openapi.yaml", handleOpenAPI)

		// Annotator
		r.Get("/next", s.handleNext)
		r.Get("/peek", s.handlePeek)
		r.Post("/label", s.handleLabel)
		r.Post("/skip", s.handleSkip)
		r.Post("/undo", s.handleUndo)
		r.Post("/redo", s.handleRedo)
		r.Post("/unlabel", s.handleUnlabel)
		r.Get("/stats", s.handleStats)
		r.Get("/mystats", s.handleMyStats)
		r.Get("/user_labels", s.handleUserLabels)

		// Reviewer
		login := http.HandlerFunc(s.handleReviewerLogin)
		if s.cfg.RateLimit.Enabled {
			r.With(middleware.LoginRateLimit(s.cfg.RateLimit.LoginPerMinute)).Post("/reviewer/login", login)
		} else {
			r.Post("/reviewer/login", login)
		}
		r.Post("/reviewer/logout", s.handleReviewerLogout)
		r.Group(func(r chi.Router) {
			r.Use(s.requireReviewer)
			r.Get("/users", s.handleUsers)
			r.Get("/labels", s.handleLabels)
			r.Get("/balance", s.handleBalance)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorStatus(w, http.StatusNotFound, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorStatus(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
