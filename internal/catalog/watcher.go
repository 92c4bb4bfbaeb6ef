// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/vlabel/internal/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher triggers Catalog.Refresh when files appear under an FSSource root.
// fsnotify is not recursive, so every directory is watched individually and
// new subdirectories are added as they are created.
type Watcher struct {
	cat      *Catalog
	root     string
	debounce time.Duration
}

// NewWatcher returns a watcher for cat rooted at root.
func NewWatcher(cat *Catalog, root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{cat: cat, root: root, debounce: debounce}
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithComponent("catalog")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.root); err != nil {
		return fmt.Errorf("watch videos dir: %w", err)
	}
	logger.Info().
		Str(log.FieldEvent, "catalog.watcher_started").
		Str(log.FieldPath, w.root).
		Msg("watching videos dir for new clips")

	// Debounce: reset timer on each event
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(log.FieldEvent, "catalog.watcher_stopped").Msg("catalog watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						logger.Warn().Err(err).Str(log.FieldPath, event.Name).Msg("watch new directory")
					}
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			if _, err := w.cat.Refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("rescan after change failed")
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error().
				Err(err).
				Str(log.FieldEvent, "catalog.watcher_error").
				Msg("catalog watcher error")
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return fw.Add(p)
	})
}
