// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package balance computes per-annotator fair-share targets. Nothing here is
// persisted: a Plan is rebuilt from live counts on every request, so users
// joining or leaving and the catalog growing take effect immediately.
package balance

import "sort"

// Input is the aggregate state a Plan is computed from.
type Input struct {
	// Total is the catalog size T.
	Total int
	// Labeled is L, the number of catalog videos with at least one label.
	Labeled int
	// Credited maps each user to the labeled videos attributed to them. Every
	// labeled video is credited to exactly one user, so the values sum to at
	// most Labeled.
	Credited map[string]int
	// Active lists the active users in first-seen order.
	Active []string
}

// Quota is one active user's share.
type Quota struct {
	User      string
	Labeled   int
	Target    int
	Remaining int
}

// Done reports whether the user has reached their target.
func (q Quota) Done() bool { return q.Labeled >= q.Target }

// Plan is the result of Compute.
type Plan struct {
	Total     int
	Labeled   int
	Remaining int
	Quotas    map[string]Quota
}

// Quota returns user's share. ok is false when user is not active.
func (p Plan) Quota(user string) (Quota, bool) {
	q, ok := p.Quotas[user]
	return q, ok
}

// SumTargets adds up every active user's target.
func (p Plan) SumTargets() int {
	sum := 0
	for _, q := range p.Quotas {
		sum += q.Target
	}
	return sum
}

// Compute water-fills the remaining work R = T - L onto the active users.
//
// Users are ordered by credited count (ties by first-seen order). The k
// least-progressed users are lifted to a common level λ, the largest k for
// which that level does not drop below anyone's current count; the remainder
// goes one each to the first users in that order. Everyone else keeps
// target = credited. The sum of targets is R + Σcredited, never above T.
//
// With equal counts this reduces to floor(L_u + R/|A|) plus remainder.
func Compute(in Input) Plan {
	remaining := in.Total - in.Labeled
	if remaining < 0 {
		remaining = 0
	}
	p := Plan{
		Total:     in.Total,
		Labeled:   in.Labeled,
		Remaining: remaining,
		Quotas:    make(map[string]Quota, len(in.Active)),
	}
	if len(in.Active) == 0 {
		return p
	}

	type slot struct {
		user    string
		order   int
		labeled int
	}
	slots := make([]slot, 0, len(in.Active))
	seen := make(map[string]struct{}, len(in.Active))
	for i, u := range in.Active {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		slots = append(slots, slot{user: u, order: i, labeled: in.Credited[u]})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].labeled != slots[j].labeled {
			return slots[i].labeled < slots[j].labeled
		}
		return slots[i].order < slots[j].order
	})

	// Largest prefix k whose members can all be lifted to the k-th count.
	k, sum := 0, 0
	for i, s := range slots {
		if (i+1)*s.labeled-(sum+s.labeled) > remaining {
			break
		}
		k = i + 1
		sum += s.labeled
	}

	pool := remaining + sum
	level, extra := pool/k, pool%k

	for i, s := range slots {
		target := s.labeled
		if i < k {
			target = level
			if i < extra {
				target++
			}
		}
		q := Quota{User: s.user, Labeled: s.labeled, Target: target}
		if target > s.labeled {
			q.Remaining = target - s.labeled
		}
		p.Quotas[s.user] = q
	}
	return p
}
