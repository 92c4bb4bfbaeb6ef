// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/ManuGH/vlabel/internal/log"
	"golang.org/x/text/unicode/norm"
)

// URLPrefix is where the HTTP layer serves files of an FSSource.
const URLPrefix = "/videos/"

// FSSource discovers clips under a local directory tree.
type FSSource struct {
	root string
	exts map[string]struct{}
}

// NewFSSource scans root for files whose extension is in exts
// (case-insensitive, with or without the leading dot).
func NewFSSource(root string, exts []string) *FSSource {
	return &FSSource{root: filepath.Clean(root), exts: extSet(exts)}
}

func (s *FSSource) Name() string { return "fs" }

// Root returns the directory being scanned.
func (s *FSSource) Root() string { return s.root }

// Scan walks the tree and returns matching files as sorted ids. Symlinks
// resolving outside the root are skipped. A missing root yields no ids.
func (s *FSSource) Scan(ctx context.Context) ([]string, error) {
	logger := log.WithComponent("catalog")

	rootResolved, err := filepath.EvalSymlinks(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str(log.FieldPath, s.root).Msg("videos dir does not exist")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve videos dir: %w", err)
	}

	var ids []string
	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logger.Debug().Err(walkErr).Str(log.FieldPath, p).Msg("walk error, skipping")
			if d != nil && d.IsDir() && p != s.root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !hasExt(d.Name(), s.exts) {
			return nil
		}

		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			return nil
		}
		if rel, err := filepath.Rel(rootResolved, resolved); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			logger.Warn().Str(log.FieldPath, p).Msg("path escapes videos dir, skipping")
			return nil
		}
		if info, err := os.Stat(resolved); err != nil || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		if id := NormalizeID(filepath.ToSlash(rel)); id != "" {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan videos dir: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// URL is the HTTP path the clip is served under.
func (s *FSSource) URL(_ context.Context, id string) (string, error) {
	return URLPrefix + escapePath(id), nil
}

// Open resolves id to a file under the root, refusing anything that would
// leave it. Ids are NFC; files stored decomposed are found through their NFD
// spelling.
func (s *FSSource) Open(id string) (*os.File, error) {
	clean := NormalizeID(id)
	if clean == "" || slices.Contains(strings.Split(filepath.ToSlash(id), "/"), "..") {
		return nil, fs.ErrNotExist
	}
	rootResolved, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return nil, err
	}

	var resolved string
	for _, candidate := range []string{clean, norm.NFD.String(clean)} {
		resolved, err = filepath.EvalSymlinks(filepath.Join(s.root, filepath.FromSlash(candidate)))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if rel, err := filepath.Rel(rootResolved, resolved); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fs.ErrPermission
	}
	// #nosec G304 -- confined to the videos dir above
	return os.Open(resolved)
}
