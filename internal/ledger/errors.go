// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence reports that a journal write did not become durable.
	ErrPersistence   = errors.New("ledger: persistence failure")
	ErrInvalidLabel  = errors.New("ledger: invalid label")
	ErrInvalidRecord = errors.New("ledger: invalid record")
	ErrClosed        = errors.New("ledger: closed")

	// ErrLocked: another process (or Ledger) has the journal open for writing.
	ErrLocked = errors.New("ledger: journal is locked by another writer")
)

// PersistenceError carries the failed operation and the underlying I/O error.
// errors.Is(err, ErrPersistence) holds for every PersistenceError.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
