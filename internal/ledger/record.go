// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ledger

import (
	"fmt"
	"strings"
)

// Label is the verdict an annotator gives a clip.
type Label string

const (
	LabelOK    Label = "ok"
	LabelNotOK Label = "not_ok"
)

// ParseLabel validates a wire label.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelOK, LabelNotOK:
		return Label(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLabel, s)
}

// Filter narrows EntriesForUser results by label.
type Filter string

const (
	FilterAll   Filter = "all"
	FilterOK    Filter = "ok"
	FilterNotOK Filter = "not_ok"
)

// ParseFilter maps the query value to a Filter. Unknown values mean all.
func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterOK:
		return FilterOK
	case FilterNotOK:
		return FilterNotOK
	default:
		return FilterAll
	}
}

func (f Filter) match(l Label) bool {
	switch f {
	case FilterOK, FilterNotOK:
		return Label(f) == l
	default:
		return true
	}
}

// Record is one committed labeling action. Field names are the journal's
// on-disk keys.
type Record struct {
	ID         string  `json:"id"`
	User       string  `json:"user"`
	Label      Label   `json:"label"`
	TimeMS     float64 `json:"time_ms"`
	DurationMS float64 `json:"duration_ms"`
	TS         int64   `json:"ts"`
}

const opRemove = "remove"

// line is the union of every journal line shape. Lines without an op are
// label records, which keeps journals written before tombstones existed
// readable.
type line struct {
	Op         string  `json:"op,omitempty"`
	ID         string  `json:"id"`
	User       string  `json:"user"`
	Label      Label   `json:"label,omitempty"`
	TimeMS     float64 `json:"time_ms,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
	TS         int64   `json:"ts"`
	At         int64   `json:"at,omitempty"`
}

type tombstone struct {
	Op   string `json:"op"`
	ID   string `json:"id"`
	User string `json:"user"`
	TS   int64  `json:"ts"`
	At   int64  `json:"at"`
}

func (l line) record() Record {
	return Record{ID: l.ID, User: l.User, Label: l.Label, TimeMS: l.TimeMS, DurationMS: l.DurationMS, TS: l.TS}
}
