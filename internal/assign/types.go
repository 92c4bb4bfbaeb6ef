// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assign

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/vlabel/internal/ledger"
)

var (
	// ErrNotEligible: the video is already labeled or leased by someone else.
	ErrNotEligible = errors.New("video not eligible")
	// ErrInvalidAssignment: the caller holds no live lease on the video.
	ErrInvalidAssignment = errors.New("no live assignment for this user and video")
	ErrInvalidRequest    = errors.New("invalid request")
	// ErrPersistence is re-exported so callers need not import ledger.
	ErrPersistence = ledger.ErrPersistence
)

// Done reasons.
const (
	ReasonQuotaMet   = "quota_met"
	ReasonNoEligible = "no_eligible"
)

// User label listing bounds.
const (
	DefaultListLimit = 1000
	MaxListLimit     = 20000
)

// Catalog is what the service needs from the video catalog.
type Catalog interface {
	List() []string
	Len() int
	Position(id string) (int, bool)
	URL(ctx context.Context, id string) (string, error)
	MaybeRefresh(ctx context.Context)
}

// Config is the engine configuration.
type Config struct {
	LeaseTTL            time.Duration
	SingleLabelPerVideo bool
	ActiveWindow        time.Duration
}

// Assignment answers Next and Peek. Either Done is set (with a Reason) or ID
// and URL name the clip.
type Assignment struct {
	Done   bool
	Reason string
	ID     string
	URL    string
}

// LabelRequest is a label submission.
type LabelRequest struct {
	ID         string
	User       string
	Label      string
	TimeMS     float64
	DurationMS float64
}

// Stats is the global progress view.
type Stats struct {
	Total               int            `json:"total"`
	Labeled             int            `json:"labeled"`
	Remaining           int            `json:"remaining"`
	PerUser             map[string]int `json:"perUser"`
	SingleLabelPerVideo bool           `json:"singleLabelPerVideo"`
}

// UserStats is one annotator's progress against their target.
type UserStats struct {
	Labeled   int `json:"labeled"`
	Target    int `json:"target"`
	Remaining int `json:"remaining"`
}

// UndoResult lists freed ids in the order they were undone.
type UndoResult struct {
	Undone int
	IDs    []string
}

// RedoResult lists restored ids in commit order.
type RedoResult struct {
	Redone int
	IDs    []string
}

// QuotaView is the reviewer's per-user balancing snapshot.
type QuotaView struct {
	User      string `json:"user"`
	Labeled   int    `json:"labeled"`
	Credited  int    `json:"credited"`
	Target    int    `json:"target"`
	Remaining int    `json:"remaining"`
	Leases    int    `json:"leases"`
	Done      bool   `json:"done"`
}

// BalanceView is the reviewer's balancing snapshot.
type BalanceView struct {
	Total     int         `json:"total"`
	Labeled   int         `json:"labeled"`
	Remaining int         `json:"remaining"`
	Leases    int         `json:"leases"`
	Users     []QuotaView `json:"users"`
}

// ClampLimit applies the listing default and bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
