// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP surface of the labeling engine: the annotator and
// reviewer JSON endpoints, clip and static file serving, and metrics.
package api

import (
	"context"
	"net/http"
	"os"

	"github.com/ManuGH/vlabel/internal/assign"
	"github.com/ManuGH/vlabel/internal/audit"
	"github.com/ManuGH/vlabel/internal/auth"
	"github.com/ManuGH/vlabel/internal/config"
	"github.com/ManuGH/vlabel/internal/ledger"
	"github.com/go-chi/chi/v5"
)

// Engine is the labeling engine as seen by the handlers.
type Engine interface {
	Next(ctx context.Context, user string) (assign.Assignment, error)
	Peek(ctx context.Context, user string) (assign.Assignment, error)
	Label(ctx context.Context, req assign.LabelRequest) (ledger.Record, error)
	Skip(ctx context.Context, user, id string) (bool, error)
	Undo(ctx context.Context, user string, count int) (assign.UndoResult, error)
	Redo(ctx context.Context, user string) (assign.RedoResult, error)
	Unlabel(ctx context.Context, user, id string) (bool, error)

	Stats() assign.Stats
	MyStats(user string) (assign.UserStats, error)
	UserLabels(user string, f ledger.Filter, limit int) ([]ledger.Record, error)
	Labels(user string, limit int) []ledger.Record
	Users() (map[string]int, int)
	Balance() assign.BalanceView
}

// VideoOpener opens clip files by id. Only local catalogs have one.
type VideoOpener interface {
	Open(id string) (*os.File, error)
}

// Config is the HTTP layer configuration.
type Config struct {
	StaticDir        string
	ReviewerPassword string
	RateLimit        config.RateLimitConfig
	// TracingService names server spans; empty disables HTTP tracing.
	TracingService string
}

// Server wires the engine into a chi router.
type Server struct {
	cfg      Config
	engine   Engine
	sessions *auth.Sessions
	videos   VideoOpener
	audit    *audit.Logger
	router   chi.Router
}

// New builds the server. videos may be nil when clips are served elsewhere.
func New(cfg Config, engine Engine, sessions *auth.Sessions, videos VideoOpener) *Server {
	s := &Server{cfg: cfg, engine: engine, sessions: sessions, videos: videos, audit: audit.NewLogger()}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }
