// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lease keeps the in-memory soft locks that mark a clip as being
// watched. Expiry is lazy: nothing runs in the background, callers sweep.
package lease

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrAlreadyLeased = errors.New("lease: held by another user")
	ErrInvalidTTL    = errors.New("lease: invalid ttl")
)

// Lease is a snapshot of one claim.
type Lease struct {
	VideoID    string
	User       string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Live reports whether the lease is unexpired at now.
func (l Lease) Live(now time.Time) bool { return now.Before(l.ExpiresAt) }

// Table maps video id to its current lease.
type Table struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]Lease
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// NewTable returns an empty lease table.
func NewTable(opts ...Option) *Table {
	t := &Table{now: time.Now, leases: make(map[string]Lease)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TryAcquire leases id to user for ttl. Re-acquiring your own lease refreshes
// its expiry; a live lease held by someone else fails with ErrAlreadyLeased.
func (t *Table) TryAcquire(id, user string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		return Lease{}, ErrInvalidTTL
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.leases[id]; ok && cur.Live(now) {
		if cur.User != user {
			return Lease{}, ErrAlreadyLeased
		}
		// Re-entry: renew
		cur.ExpiresAt = now.Add(ttl)
		t.leases[id] = cur
		return cur, nil
	}
	l := Lease{VideoID: id, User: user, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	t.leases[id] = l
	return l, nil
}

// Release drops user's lease on id. Absent or foreign leases are left alone.
func (t *Table) Release(id, user string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.leases[id]; ok && cur.User == user {
		delete(t.leases, id)
		return true
	}
	return false
}

// SweepExpired removes every expired lease and returns how many went.
func (t *Table) SweepExpired() int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, l := range t.leases {
		if !l.Live(now) {
			delete(t.leases, id)
			n++
		}
	}
	return n
}

// Holder returns the live lease on id, if any. It does not sweep.
func (t *Table) Holder(id string) (Lease, bool) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.leases[id]
	if !ok || !l.Live(now) {
		return Lease{}, false
	}
	return l, true
}

// IsLeased reports whether id has a live lease.
func (t *Table) IsLeased(id string) bool {
	_, ok := t.Holder(id)
	return ok
}

// HeldBy reports whether user holds a live lease on id.
func (t *Table) HeldBy(id, user string) bool {
	l, ok := t.Holder(id)
	return ok && l.User == user
}

// LeasesOf returns user's live leases, oldest acquisition first.
func (t *Table) LeasesOf(user string) []Lease {
	now := t.now()
	t.mu.Lock()
	var out []Lease
	for _, l := range t.leases {
		if l.User == user && l.Live(now) {
			out = append(out, l)
		}
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].VideoID < out[j].VideoID
		}
		return out[i].AcquiredAt.Before(out[j].AcquiredAt)
	})
	return out
}

// Len counts live leases.
func (t *Table) Len() int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, l := range t.leases {
		if l.Live(now) {
			n++
		}
	}
	return n
}
