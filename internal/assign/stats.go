// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assign

import (
	"fmt"
	"sort"

	"github.com/ManuGH/vlabel/internal/ledger"
)

// Stats is the global progress view. In multi-label mode Labeled counts
// records, not videos.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.catalog.List()
	plan := s.planLocked(ids, nil)

	labeled := s.ledger.Len()
	if s.cfg.SingleLabelPerVideo {
		labeled = s.ledger.LabeledVideos()
	}
	return Stats{
		Total:               plan.Total,
		Labeled:             labeled,
		Remaining:           plan.Remaining,
		PerUser:             s.ledger.CountByUser(),
		SingleLabelPerVideo: s.cfg.SingleLabelPerVideo,
	}
}

// MyStats reports user's progress against the target they would get if they
// asked for work now. It does not mark the user active.
func (s *Service) MyStats(user string) (UserStats, error) {
	if user == "" {
		return UserStats{}, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	ids := s.catalog.List()
	plan := s.planLocked(ids, s.active.ActiveWith(user))
	q, _ := plan.Quota(user)
	return UserStats{
		Labeled:   s.ledger.Count(user),
		Target:    q.Target,
		Remaining: q.Remaining,
	}, nil
}

// UserLabels lists user's live records matching f, newest first.
func (s *Service) UserLabels(user string, f ledger.Filter, limit int) ([]ledger.Record, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	return s.ledger.EntriesForUser(user, f, ClampLimit(limit)), nil
}

// Labels lists live records newest first, optionally for one user.
func (s *Service) Labels(user string, limit int) []ledger.Record {
	return s.ledger.Entries(user, ClampLimit(limit))
}

// Users returns every user's live record count and the catalog size.
func (s *Service) Users() (map[string]int, int) {
	return s.ledger.CountByUser(), s.catalog.Len()
}

// Balance is the reviewer's view of the current plan: every active user's
// share plus anyone else holding records.
func (s *Service) Balance() BalanceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	ids := s.catalog.List()
	active := s.active.Active()
	plan := s.planLocked(ids, active)

	credited := make(map[string]int)
	for _, id := range ids {
		if u, ok := s.ledger.FirstLabeler(id); ok {
			credited[u]++
		}
	}
	counts := s.ledger.CountByUser()
	users := make(map[string]struct{}, len(counts)+len(active))
	for u := range counts {
		users[u] = struct{}{}
	}
	for _, u := range active {
		users[u] = struct{}{}
	}

	view := BalanceView{
		Total:     plan.Total,
		Labeled:   plan.Labeled,
		Remaining: plan.Remaining,
		Leases:    s.leases.Len(),
		Users:     make([]QuotaView, 0, len(users)),
	}
	for u := range users {
		qv := QuotaView{
			User:     u,
			Labeled:  counts[u],
			Credited: credited[u],
			Leases:   len(s.leases.LeasesOf(u)),
		}
		if q, ok := plan.Quota(u); ok {
			qv.Target, qv.Remaining, qv.Done = q.Target, q.Remaining, q.Done()
		} else {
			qv.Target, qv.Done = credited[u], true
		}
		view.Users = append(view.Users, qv)
	}
	sort.Slice(view.Users, func(i, j int) bool { return view.Users[i].User < view.Users[j].User })
	return view
}
