// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package assign is the labeling engine: it hands clips to annotators under
// lease, commits labels to the journal, keeps workloads balanced and
// implements undo/redo on top of the journal.
//
// One mutex covers every read-pick-lease sequence and every mutation. The
// only I/O done while holding it is the fsync'd journal append; catalog
// rescans and URL signing happen outside.
package assign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/vlabel/internal/balance"
	"github.com/ManuGH/vlabel/internal/lease"
	"github.com/ManuGH/vlabel/internal/ledger"
	"github.com/ManuGH/vlabel/internal/log"
	"github.com/ManuGH/vlabel/internal/metrics"
	"github.com/ManuGH/vlabel/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ManuGH/vlabel/internal/assign"

// Service owns all mutable engine state.
type Service struct {
	cfg     Config
	catalog Catalog
	ledger  *ledger.Ledger
	leases  *lease.Table
	active  *balance.Tracker
	tracer  trace.Tracer

	mu      sync.Mutex
	cursors map[string]int             // user -> catalog position of last assignment
	redo    map[string][]ledger.Record // user -> most recently undone batch
}

// Option configures a Service.
type Option func(*Service)

// WithClock drives lease expiry and the activity window from now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.leases = lease.NewTable(lease.WithClock(now))
		s.active = balance.NewTracker(s.cfg.ActiveWindow, balance.WithTrackerClock(now))
	}
}

// New builds a Service over an opened ledger and catalog. All derived state
// comes from the ledger's replay.
func New(cfg Config, cat Catalog, led *ledger.Ledger, opts ...Option) (*Service, error) {
	if cfg.LeaseTTL <= 0 {
		return nil, fmt.Errorf("%w: lease ttl must be positive", ErrInvalidRequest)
	}
	if cfg.ActiveWindow <= 0 {
		return nil, fmt.Errorf("%w: active window must be positive", ErrInvalidRequest)
	}
	s := &Service{
		cfg:     cfg,
		catalog: cat,
		ledger:  led,
		leases:  lease.NewTable(),
		active:  balance.NewTracker(cfg.ActiveWindow),
		tracer:  telemetry.Tracer(tracerName),
		cursors: make(map[string]int),
		redo:    make(map[string][]ledger.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the engine configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) startSpan(ctx context.Context, name, user, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(telemetry.AssignmentAttributes(user, id)...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(errorType(err))...)
	}
	span.End()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAssignment):
		return "invalid_assignment"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

// sweepLocked drops expired leases and publishes lease metrics.
func (s *Service) sweepLocked() {
	expired := s.leases.SweepExpired()
	metrics.SetLeases(s.leases.Len(), expired)
}

// planLocked computes quotas for the given active set. Each labeled catalog
// video is credited to the user of its oldest live record.
func (s *Service) planLocked(ids []string, active []string) balance.Plan {
	in := balance.Input{Total: len(ids), Credited: make(map[string]int), Active: active}
	for _, id := range ids {
		if u, ok := s.ledger.FirstLabeler(id); ok {
			in.Labeled++
			in.Credited[u]++
		}
	}
	return balance.Compute(in)
}

// eligibleLocked: unlabeled (any live record makes a video ineligible in both
// modes) and not under a live lease.
func (s *Service) eligibleLocked(id string) bool {
	return !s.ledger.IsLabeled(id) && !s.leases.IsLeased(id)
}

// candidatesLocked yields eligible ids in catalog order starting after the
// user's previous assignment, wrapping once around.
func (s *Service) candidatesLocked(user string, ids []string, yield func(pos int, id string) bool) {
	n := len(ids)
	if n == 0 {
		return
	}
	start := 0
	if c, ok := s.cursors[user]; ok {
		start = c + 1
	}
	for i := 0; i < n; i++ {
		pos := (start + i) % n
		if !s.eligibleLocked(ids[pos]) {
			continue
		}
		if !yield(pos, ids[pos]) {
			return
		}
	}
}

// decision is the outcome of the shared Next/Peek logic.
type decision struct {
	id        string
	pos       int
	reason    string
	held      bool
	target    int
	remaining int
}

// decideLocked picks what user should get next without mutating anything.
// A user whose live leases already cover their remaining quota is handed
// back their oldest lease instead of a new clip.
func (s *Service) decideLocked(user string, ids []string, plan balance.Plan) decision {
	q, ok := plan.Quota(user)
	if user != "" && (!ok || q.Done()) {
		return decision{reason: ReasonQuotaMet, target: q.Target}
	}
	d := decision{target: q.Target, remaining: q.Remaining}
	if user != "" {
		if held := s.leases.LeasesOf(user); len(held) > 0 && len(held) >= q.Remaining {
			d.id, d.held = held[0].VideoID, true
			d.pos, _ = s.catalog.Position(d.id)
			return d
		}
	}
	found := false
	s.candidatesLocked(user, ids, func(pos int, id string) bool {
		d.id, d.pos, found = id, pos, true
		return false
	})
	if !found {
		d.reason = ReasonNoEligible
	}
	return d
}

// Next leases the next clip to user, or reports that nothing is owed.
func (s *Service) Next(ctx context.Context, user string) (_ Assignment, err error) {
	if user == "" {
		return Assignment{}, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	s.catalog.MaybeRefresh(ctx)

	ctx, span := s.startSpan(ctx, "assign.next", user, "")
	defer func() { endSpan(span, err) }()
	logger := log.WithComponentFromContext(ctx, "assign")

	s.mu.Lock()
	s.sweepLocked()
	s.active.Touch(user)
	active := s.active.Active()
	metrics.SetActiveUsers(len(active))
	ids := s.catalog.List()
	plan := s.planLocked(ids, active)
	d := s.decideLocked(user, ids, plan)

	outcome := "leased"
	if d.reason == "" {
		if d.held {
			outcome = "redelivered"
		}
		if _, lerr := s.leases.TryAcquire(d.id, user, s.cfg.LeaseTTL); lerr != nil {
			// Cannot happen under the lock; fall back to a fresh pick.
			d = decision{reason: ReasonNoEligible}
			s.candidatesLocked(user, ids, func(pos int, id string) bool {
				if _, e := s.leases.TryAcquire(id, user, s.cfg.LeaseTTL); e != nil {
					return true
				}
				d = decision{id: id, pos: pos}
				return false
			})
		}
	}
	s.mu.Unlock()

	span.SetAttributes(telemetry.QuotaAttributes(d.target, d.remaining)...)
	if d.reason != "" {
		metrics.RecordDone(d.reason)
		span.SetAttributes(attribute.String(telemetry.DoneReasonKey, d.reason))
		logger.Debug().
			Str(log.FieldEvent, "assign.done").
			Str(log.FieldUser, user).
			Str(log.FieldReason, d.reason).
			Int(log.FieldTarget, d.target).
			Msg("nothing to assign")
		return Assignment{Done: true, Reason: d.reason}, nil
	}

	span.SetAttributes(attribute.String(telemetry.VideoIDKey, d.id))
	url, err := s.catalog.URL(ctx, d.id)
	s.mu.Lock()
	if err != nil {
		// A redelivered lease predates this call and stays with the user.
		if !d.held {
			s.leases.Release(d.id, user)
		}
		s.mu.Unlock()
		return Assignment{}, fmt.Errorf("resolve url for %s: %w", d.id, err)
	}
	s.cursors[user] = d.pos
	s.mu.Unlock()

	metrics.RecordAssignment(outcome)
	logger.Info().
		Str(log.FieldEvent, "assign.leased").
		Str(log.FieldUser, user).
		Str(log.FieldVideoID, d.id).
		Bool("redelivered", d.held).
		Int(log.FieldRemaining, d.remaining).
		Msg("clip assigned")
	return Assignment{ID: d.id, URL: url}, nil
}

// Peek previews what Next would return without changing any state. An empty
// user previews the first eligible clip with no quota applied.
func (s *Service) Peek(ctx context.Context, user string) (_ Assignment, err error) {
	ctx, span := s.startSpan(ctx, "assign.peek", user, "")
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	ids := s.catalog.List()
	var d decision
	if user == "" {
		d = s.decideLocked("", ids, balance.Plan{})
	} else {
		d = s.decideLocked(user, ids, s.planLocked(ids, s.active.ActiveWith(user)))
	}
	s.mu.Unlock()

	if d.reason != "" {
		return Assignment{Done: true, Reason: d.reason}, nil
	}
	url, err := s.catalog.URL(ctx, d.id)
	if err != nil {
		return Assignment{}, fmt.Errorf("resolve url for %s: %w", d.id, err)
	}
	return Assignment{ID: d.id, URL: url}, nil
}

// Label commits a label for a clip the caller holds under lease.
func (s *Service) Label(ctx context.Context, req LabelRequest) (rec ledger.Record, err error) {
	ctx, span := s.startSpan(ctx, "assign.label", req.User, req.ID)
	defer func() { endSpan(span, err) }()
	logger := log.WithComponentFromContext(ctx, "assign")

	if req.ID == "" || req.User == "" {
		metrics.RecordLabelReject("invalid_request")
		return ledger.Record{}, fmt.Errorf("%w: id and user are required", ErrInvalidRequest)
	}
	label, err := ledger.ParseLabel(req.Label)
	if err != nil {
		metrics.RecordLabelReject("invalid_request")
		return ledger.Record{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.leases.HeldBy(req.ID, req.User) {
		metrics.RecordLabelReject("invalid_assignment")
		return ledger.Record{}, fmt.Errorf("%w: %s", ErrInvalidAssignment, req.ID)
	}
	if s.cfg.SingleLabelPerVideo && s.ledger.IsLabeled(req.ID) {
		metrics.RecordLabelReject("not_eligible")
		return ledger.Record{}, fmt.Errorf("%w: %s already labeled", ErrNotEligible, req.ID)
	}

	// Append first: in-memory state only moves once the line is durable.
	rec, err = s.ledger.Append(ledger.Record{
		ID:         req.ID,
		User:       req.User,
		Label:      label,
		TimeMS:     req.TimeMS,
		DurationMS: req.DurationMS,
	})
	if err != nil {
		metrics.RecordLabelReject("persistence")
		logger.Error().Err(err).
			Str(log.FieldEvent, "label.persist_failed").
			Str(log.FieldUser, req.User).
			Str(log.FieldVideoID, req.ID).
			Msg("label not committed")
		return ledger.Record{}, err
	}
	s.leases.Release(req.ID, req.User)
	delete(s.redo, req.User)
	s.active.Touch(req.User)

	metrics.RecordLabel(string(label))
	logger.Info().
		Str(log.FieldEvent, "label.committed").
		Str(log.FieldUser, req.User).
		Str(log.FieldVideoID, req.ID).
		Str(log.FieldLabel, string(label)).
		Int64("ts", rec.TS).
		Msg("label committed")
	return rec, nil
}

// Skip releases the caller's lease without labeling. Foreign or missing
// leases are ignored.
func (s *Service) Skip(ctx context.Context, user, id string) (released bool, err error) {
	_, span := s.startSpan(ctx, "assign.skip", user, id)
	defer func() { endSpan(span, err) }()
	if user == "" || id == "" {
		return false, fmt.Errorf("%w: id and user are required", ErrInvalidRequest)
	}

	s.mu.Lock()
	released = s.leases.Release(id, user)
	s.active.Touch(user)
	s.mu.Unlock()

	if released {
		metrics.RecordSkip()
		logger := log.WithComponentFromContext(ctx, "assign")
		logger.Debug().
			Str(log.FieldEvent, "assign.skipped").
			Str(log.FieldUser, user).
			Str(log.FieldVideoID, id).
			Msg("clip skipped")
	}
	return released, nil
}
