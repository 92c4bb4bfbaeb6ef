// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assign

import (
	"context"
	"fmt"

	"github.com/ManuGH/vlabel/internal/ledger"
	"github.com/ManuGH/vlabel/internal/log"
	"github.com/ManuGH/vlabel/internal/metrics"
	"github.com/ManuGH/vlabel/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Undo removes up to count of user's newest records. The freed ids are
// returned in journal order and become the user's redo batch. Nothing to undo
// is not an error.
func (s *Service) Undo(ctx context.Context, user string, count int) (_ UndoResult, err error) {
	ctx, span := s.startSpan(ctx, "assign.undo", user, "")
	defer func() { endSpan(span, err) }()
	if user == "" || count <= 0 {
		return UndoResult{}, fmt.Errorf("%w: user and a positive count are required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.ledger.Latest(user, count)
	undone := make([]ledger.Record, 0, len(batch))
	for _, rec := range batch {
		ok, rerr := s.ledger.RemoveRecord(rec)
		if rerr != nil {
			err = rerr
			break
		}
		if ok {
			undone = append(undone, rec)
		}
	}
	s.active.Touch(user)

	res := UndoResult{Undone: len(undone), IDs: make([]string, 0, len(undone))}
	if len(undone) == 0 {
		return res, err
	}

	// Whatever the user was looking at goes back to the pool so the freed
	// clips come up next.
	for _, l := range s.leases.LeasesOf(user) {
		s.leases.Release(l.VideoID, user)
	}
	earliest := -1
	for _, rec := range undone {
		res.IDs = append(res.IDs, rec.ID)
		if pos, ok := s.catalog.Position(rec.ID); ok && (earliest < 0 || pos < earliest) {
			earliest = pos
		}
	}
	if earliest <= 0 {
		delete(s.cursors, user)
	} else {
		s.cursors[user] = earliest - 1
	}
	s.redo[user] = undone

	metrics.RecordUndoRedo("undo", len(undone))
	span.SetAttributes(attribute.Int(telemetry.CountKey, len(undone)))
	logger := log.WithComponentFromContext(ctx, "assign")
	logger.Info().
		Str(log.FieldEvent, "undo.applied").
		Str(log.FieldUser, user).
		Int(log.FieldCount, len(undone)).
		Strs("ids", res.IDs).
		Msg("labels undone")
	return res, err
}

// Redo re-commits the user's last undone batch in the order it was undone,
// keeping each record's original timestamp. Records whose clip was labeled or
// leased by someone else in the meantime are dropped.
func (s *Service) Redo(ctx context.Context, user string) (_ RedoResult, err error) {
	ctx, span := s.startSpan(ctx, "assign.redo", user, "")
	defer func() { endSpan(span, err) }()
	if user == "" {
		return RedoResult{}, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.active.Touch(user)

	batch := s.redo[user]
	res := RedoResult{IDs: []string{}}
	skipped := 0
	for i, rec := range batch {
		if s.cfg.SingleLabelPerVideo && s.ledger.IsLabeled(rec.ID) {
			skipped++
			continue
		}
		if h, ok := s.leases.Holder(rec.ID); ok && h.User != user {
			skipped++
			continue
		}
		s.leases.Release(rec.ID, user)
		if _, rerr := s.ledger.Restore(rec); rerr != nil {
			// Keep what was not restored so a retry can finish the batch.
			s.redo[user] = batch[i:]
			err = rerr
			break
		}
		res.IDs = append(res.IDs, rec.ID)
		if pos, ok := s.catalog.Position(rec.ID); ok {
			s.cursors[user] = pos
		}
	}
	if err == nil {
		delete(s.redo, user)
	}
	res.Redone = len(res.IDs)
	if res.Redone == 0 && skipped == 0 {
		return res, err
	}

	metrics.RecordUndoRedo("redo", res.Redone)
	span.SetAttributes(attribute.Int(telemetry.CountKey, res.Redone))
	logger := log.WithComponentFromContext(ctx, "assign")
	logger.Info().
		Str(log.FieldEvent, "redo.applied").
		Str(log.FieldUser, user).
		Int(log.FieldCount, res.Redone).
		Int("skipped", skipped).
		Msg("labels redone")
	return res, err
}

// Unlabel removes user's newest record for id regardless of recency. The redo
// batch is left alone.
func (s *Service) Unlabel(ctx context.Context, user, id string) (removed bool, err error) {
	ctx, span := s.startSpan(ctx, "assign.unlabel", user, id)
	defer func() { endSpan(span, err) }()
	if user == "" || id == "" {
		return false, fmt.Errorf("%w: id and user are required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, removed, err = s.ledger.Remove(user, id)
	if err != nil || !removed {
		return false, err
	}

	logger := log.WithComponentFromContext(ctx, "assign")
	logger.Info().
		Str(log.FieldEvent, "label.removed").
		Str(log.FieldUser, user).
		Str(log.FieldVideoID, id).
		Msg("label removed")
	return true, nil
}
