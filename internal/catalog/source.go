// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrUnknownVideo is returned for ids the catalog has never discovered.
var ErrUnknownVideo = errors.New("catalog: unknown video")

// Source enumerates clip ids from storage and turns an id into a playable URL.
// Scan must return ids in a stable order.
type Source interface {
	Name() string
	Scan(ctx context.Context) ([]string, error)
	URL(ctx context.Context, id string) (string, error)
}

// NormalizeID turns a storage path into a catalog id: slash separated,
// relative, NFC normalised. It returns "" for paths that escape the root.
func NormalizeID(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)[1:]
	if p == "" || p == "." {
		return ""
	}
	return norm.NFC.String(p)
}

// hasExt reports whether name ends in one of exts (lowercase, dotted).
func hasExt(name string, exts map[string]struct{}) bool {
	ext := strings.ToLower(path.Ext(name))
	_, ok := exts[ext]
	return ok
}

func extSet(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}

// escapePath percent-encodes each segment of id, keeping the slashes.
func escapePath(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
