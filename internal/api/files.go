// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ManuGH/vlabel/internal/catalog"
	"github.com/ManuGH/vlabel/internal/log"
)

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

const (
	cacheImmutable = "public, max-age=604800, immutable"
	cacheVideo     = "public, max-age=604800"
	cacheNone      = "no-store"
)

// serveFile streams f with range support.
func serveFile(w http.ResponseWriter, r *http.Request, f *os.File, cache string) {
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeErrorStatus(w, http.StatusNotFound, errNotFound)
		return
	}
	w.Header().Set("Cache-Control", cache)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// GET /videos/* serves clips from a local catalog. Byte ranges are honoured.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if s.videos == nil {
		writeErrorStatus(w, http.StatusNotFound, errNotFound)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, catalog.URLPrefix)
	if slices.Contains(strings.Split(id, "/"), "..") {
		writeErrorStatus(w, http.StatusForbidden, errForbidden)
		return
	}

	f, err := s.videos.Open(id)
	if err != nil {
		code := http.StatusNotFound
		if errors.Is(err, fs.ErrPermission) {
			code = http.StatusForbidden
		} else if !errors.Is(err, fs.ErrNotExist) {
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Warn().Err(err).Str(log.FieldVideoID, id).Msg("open clip")
		}
		writeErrorStatus(w, code, errors.New(strings.ToLower(http.StatusText(code))))
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Accept-Ranges", "bytes")
	if ct, ok := videoTypes[strings.ToLower(filepath.Ext(id))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	serveFile(w, r, f, cacheVideo)
}

// openStatic opens rel under the static dir. rel is cleaned as an absolute
// path first so it can never climb out.
func (s *Server) openStatic(rel string) (*os.File, error) {
	if s.cfg.StaticDir == "" {
		return nil, fs.ErrNotExist
	}
	clean := path.Clean("/" + rel)
	// #nosec G304 -- confined to the static dir by the clean above
	return os.Open(filepath.Join(s.cfg.StaticDir, filepath.FromSlash(clean)))
}

// staticPage serves one of the top-level HTML pages uncached.
func (s *Server) staticPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := s.openStatic(name)
		if err != nil {
			writeErrorStatus(w, http.StatusNotFound, errNotFound)
			return
		}
		defer func() { _ = f.Close() }()
		serveFile(w, r, f, cacheNone)
	}
}

// GET /static/*
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	f, err := s.openStatic(strings.TrimPrefix(r.URL.Path, "/static/"))
	if err != nil {
		writeErrorStatus(w, http.StatusNotFound, errNotFound)
		return
	}
	defer func() { _ = f.Close() }()
	serveFile(w, r, f, cacheImmutable)
}
