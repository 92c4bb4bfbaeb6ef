// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package balance

import (
	"sort"
	"sync"
	"time"
)

type presence struct {
	first    uint64
	lastSeen time.Time
}

// Tracker is the bounded-recency set of active users. A user is active while
// their last request is younger than the window. A user who lapses and comes
// back is first-seen again.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seq    uint64
	users  map[string]*presence
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides time.Now.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a tracker that forgets users idle for window or longer.
func NewTracker(window time.Duration, opts ...TrackerOption) *Tracker {
	t := &Tracker{window: window, now: time.Now, users: make(map[string]*presence)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Touch records a request from user.
func (t *Tracker) Touch(user string) {
	if user == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)
	if p, ok := t.users[user]; ok {
		p.lastSeen = now
		return
	}
	t.seq++
	t.users[user] = &presence{first: t.seq, lastSeen: now}
}

// Active prunes lapsed users and returns the rest in first-seen order.
func (t *Tracker) Active() []string {
	return t.ActiveWith("")
}

// ActiveWith is Active plus user appended as the newest arrival when they
// are not already active. Nothing is recorded, so read-only callers can ask
// "what would my share be" without joining.
func (t *Tracker) ActiveWith(user string) []string {
	now := t.now()
	t.mu.Lock()
	t.pruneLocked(now)
	type row struct {
		user  string
		first uint64
	}
	rows := make([]row, 0, len(t.users)+1)
	for u, p := range t.users {
		rows = append(rows, row{u, p.first})
	}
	_, known := t.users[user]
	t.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].first < rows[j].first })
	out := make([]string, 0, len(rows)+1)
	for _, r := range rows {
		out = append(out, r.user)
	}
	if user != "" && !known {
		out = append(out, user)
	}
	return out
}

// IsActive reports whether user is inside the window.
func (t *Tracker) IsActive(user string) bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.users[user]
	return ok && now.Sub(p.lastSeen) < t.window
}

func (t *Tracker) pruneLocked(now time.Time) {
	for u, p := range t.users {
		if now.Sub(p.lastSeen) >= t.window {
			delete(t.users, u)
		}
	}
}
