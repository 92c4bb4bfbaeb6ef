// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ledger is the durable label journal. Every label and every removal
// is one JSON line appended and fsync'd before the call returns; the
// in-memory view is rebuilt by replaying the file from the start.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/vlabel/internal/log"
	"github.com/ManuGH/vlabel/internal/metrics"
	"github.com/google/renameio/v2"
)

const maxLineBytes = 1 << 20

// ReplayStats summarises the last journal replay.
type ReplayStats struct {
	Lines      int
	Records    int
	Tombstones int
	Malformed  int
	// Orphans are tombstones that matched no live record.
	Orphans int
}

type entry struct {
	rec     Record
	removed bool
}

// journalFile is the append handle; *os.File satisfies it.
type journalFile interface {
	io.Writer
	io.Seeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

// Ledger holds the replayed journal and the append handle.
type Ledger struct {
	mu   sync.RWMutex
	path string
	f    journalFile
	lock *os.File // held for the life of a writable ledger
	now  func() time.Time

	entries []entry
	byID    map[string][]int // live entry indexes per video, journal order
	byUser  map[string][]int // all entry indexes per user, journal order
	counts  map[string]int
	live    int
	lastTS  int64
	replay  ReplayStats
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func newLedger(path string, opts []Option) *Ledger {
	l := &Ledger{
		path:   path,
		now:    time.Now,
		byID:   make(map[string][]int),
		byUser: make(map[string][]int),
		counts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open replays the journal at path (creating it if absent) and keeps it open
// for appends. Only one writable Ledger may hold a journal at a time; a
// second Open fails with ErrLocked.
func Open(path string, opts ...Option) (_ *Ledger, err error) {
	l := newLedger(path, opts)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	// #nosec G304 -- journal path comes from operator configuration
	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger lock: %w", err)
	}
	if err := lockFile(lock); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = lock.Close()
		}
	}()

	torn, err := l.replayFile()
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- journal path comes from operator configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	if torn {
		// Terminate a partial trailing line so the next record starts clean.
		if _, err := f.Write([]byte("\n")); err != nil {
			_ = f.Close()
			return nil, &PersistenceError{Op: "repair", Err: err}
		}
	}
	l.f = f
	l.lock = lock

	metrics.SetLedgerMalformed(l.replay.Malformed)
	l.logReplay()
	return l, nil
}

// OpenReadOnly replays an existing journal without touching the file: no
// lock, no repair of a torn tail. Every write on the result fails with
// ErrClosed.
func OpenReadOnly(path string, opts ...Option) (*Ledger, error) {
	l := newLedger(path, opts)
	// #nosec G304 -- journal path comes from operator configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := l.replayFrom(f); err != nil {
		return nil, err
	}
	l.logReplay()
	return l, nil
}

func (l *Ledger) logReplay() {
	logger := log.WithComponent("ledger")
	logger.Info().
		Str(log.FieldEvent, "ledger.replayed").
		Str(log.FieldPath, l.path).
		Int("records", l.replay.Records).
		Int("tombstones", l.replay.Tombstones).
		Int("malformed", l.replay.Malformed).
		Int("live", l.live).
		Msg("journal replayed")
}

// replayFile reports whether the file ended without a newline.
func (l *Ledger) replayFile() (bool, error) {
	// #nosec G304 -- journal path comes from operator configuration
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()
	return l.replayFrom(f)
}

func (l *Ledger) replayFrom(r io.Reader) (bool, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	torn := false
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			torn = raw[len(raw)-1] != '\n'
			l.replayLine(raw)
		}
		if errors.Is(err, io.EOF) {
			return torn, nil
		}
		if err != nil {
			return false, fmt.Errorf("read ledger: %w", err)
		}
	}
}

func (l *Ledger) replayLine(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return
	}
	l.replay.Lines++
	if len(raw) > maxLineBytes {
		l.replay.Malformed++
		return
	}
	var ln line
	if err := json.Unmarshal(raw, &ln); err != nil || ln.ID == "" || ln.User == "" {
		l.replay.Malformed++
		return
	}
	switch ln.Op {
	case "":
		if _, err := ParseLabel(string(ln.Label)); err != nil {
			l.replay.Malformed++
			return
		}
		l.apply(ln.record())
		l.replay.Records++
	case opRemove:
		l.replay.Tombstones++
		if !l.unapply(ln.ID, ln.User, func(r Record) bool { return r.TS == ln.TS }) {
			l.replay.Orphans++
		}
	default:
		l.replay.Malformed++
	}
}

func (l *Ledger) apply(rec Record) {
	idx := len(l.entries)
	l.entries = append(l.entries, entry{rec: rec})
	l.byID[rec.ID] = append(l.byID[rec.ID], idx)
	l.byUser[rec.User] = append(l.byUser[rec.User], idx)
	l.counts[rec.User]++
	l.live++
	if rec.TS > l.lastTS {
		l.lastTS = rec.TS
	}
}

// unapply removes the newest live record of (user, id) that matches.
func (l *Ledger) unapply(id, user string, match func(Record) bool) bool {
	idxs := l.byID[id]
	for i := len(idxs) - 1; i >= 0; i-- {
		e := &l.entries[idxs[i]]
		if e.rec.User != user || !match(e.rec) {
			continue
		}
		e.removed = true
		if len(idxs) == 1 {
			delete(l.byID, id)
		} else {
			l.byID[id] = append(idxs[:i:i], idxs[i+1:]...)
		}
		l.counts[user]--
		if l.counts[user] <= 0 {
			delete(l.counts, user)
		}
		l.live--
		return true
	}
	return false
}

func (l *Ledger) findLive(id, user string, match func(Record) bool) (Record, bool) {
	idxs := l.byID[id]
	for i := len(idxs) - 1; i >= 0; i-- {
		rec := l.entries[idxs[i]].rec
		if rec.User == user && match(rec) {
			return rec, true
		}
	}
	return Record{}, false
}

func validate(rec Record) error {
	if rec.ID == "" || rec.User == "" {
		return fmt.Errorf("%w: id and user are required", ErrInvalidRecord)
	}
	if _, err := ParseLabel(string(rec.Label)); err != nil {
		return err
	}
	return nil
}

// Append stamps rec with a fresh ts, writes it durably and applies it.
// Stamps are strictly increasing across the life of the journal.
func (l *Ledger) Append(rec Record) (Record, error) {
	if err := validate(rec); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.TS = l.now().UnixMilli()
	if rec.TS <= l.lastTS {
		rec.TS = l.lastTS + 1
	}
	return rec, l.commit(rec)
}

// Restore re-appends a previously committed record keeping its ts. Used by
// redo so the restored record is identical to the undone one.
func (l *Ledger) Restore(rec Record) (Record, error) {
	if err := validate(rec); err != nil {
		return Record{}, err
	}
	if rec.TS == 0 {
		return l.Append(rec)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return rec, l.commit(rec)
}

func (l *Ledger) commit(rec Record) error {
	if err := l.writeLine("append", rec); err != nil {
		return err
	}
	l.apply(rec)
	return nil
}

// Remove deletes the most recent record user holds for id.
func (l *Ledger) Remove(user, id string) (Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.findLive(id, user, func(Record) bool { return true })
	if !ok {
		return Record{}, false, nil
	}
	if err := l.tombstone(rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// RemoveRecord deletes exactly rec, matched by id, user and ts.
func (l *Ledger) RemoveRecord(rec Record) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.findLive(rec.ID, rec.User, func(r Record) bool { return r.TS == rec.TS }); !ok {
		return false, nil
	}
	if err := l.tombstone(rec); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) tombstone(rec Record) error {
	t := tombstone{Op: opRemove, ID: rec.ID, User: rec.User, TS: rec.TS, At: l.now().UnixMilli()}
	if err := l.writeLine("remove", t); err != nil {
		return err
	}
	l.unapply(rec.ID, rec.User, func(r Record) bool { return r.TS == rec.TS })
	return nil
}

func (l *Ledger) writeLine(op string, v any) (err error) {
	if l.f == nil {
		return &PersistenceError{Op: op, Err: ErrClosed}
	}
	start := time.Now()
	defer func() { metrics.ObserveLedgerAppend(time.Since(start), err) }()

	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}
	buf = append(buf, '\n')

	off, err := l.f.Seek(0, io.SeekEnd)
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	if _, werr := l.f.Write(buf); werr != nil {
		return l.rollback(op, off, werr)
	}
	if serr := l.f.Sync(); serr != nil {
		return l.rollback(op, off, serr)
	}
	return nil
}

// rollback cuts the journal back to off after a failed write, so neither a
// partial line nor an unsynced record the caller was told failed survives.
// If the cut itself fails the handle is dropped and later writes get
// ErrClosed rather than appending onto a broken line.
func (l *Ledger) rollback(op string, off int64, cause error) error {
	terr := l.f.Truncate(off)
	if terr == nil {
		terr = l.f.Sync()
	}
	if terr == nil {
		return &PersistenceError{Op: op, Err: cause}
	}

	_ = l.f.Close()
	l.f = nil
	logger := log.WithComponent("ledger")
	logger.Error().
		Err(terr).
		Str(log.FieldEvent, "ledger.rollback_failed").
		Str(log.FieldPath, l.path).
		Int64("offset", off).
		Msg("journal could not be restored after a failed write; appends disabled")
	return &PersistenceError{Op: op, Err: errors.Join(cause, fmt.Errorf("truncate to %d: %w", off, terr))}
}

// CurrentLabel returns the newest live record for id.
func (l *Ledger) CurrentLabel(id string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idxs := l.byID[id]
	if len(idxs) == 0 {
		return Record{}, false
	}
	return l.entries[idxs[len(idxs)-1]].rec, true
}

// IsLabeled reports whether id has at least one live record.
func (l *Ledger) IsLabeled(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID[id]) > 0
}

// FirstLabeler returns the user of the oldest live record for id.
func (l *Ledger) FirstLabeler(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idxs := l.byID[id]
	if len(idxs) == 0 {
		return "", false
	}
	return l.entries[idxs[0]].rec.User, true
}

// LabeledVideos is the number of distinct videos with a live record.
func (l *Ledger) LabeledVideos() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// Len is the number of live records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.live
}

// Count returns user's live record count.
func (l *Ledger) Count(user string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[user]
}

// CountByUser returns a copy of the per-user live record counts.
func (l *Ledger) CountByUser() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.counts))
	for u, n := range l.counts {
		out[u] = n
	}
	return out
}

// Latest returns up to n of user's newest live records in journal order.
func (l *Ledger) Latest(user string, n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	idxs := l.byUser[user]
	var out []Record
	for i := len(idxs) - 1; i >= 0 && len(out) < n; i-- {
		if e := l.entries[idxs[i]]; !e.removed {
			out = append(out, e.rec)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// EntriesForUser returns user's live records matching f, newest first.
// limit <= 0 means unbounded.
func (l *Ledger) EntriesForUser(user string, f Filter, limit int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idxs := l.byUser[user]
	out := make([]Record, 0, min(len(idxs), max(limit, 0)))
	for i := len(idxs) - 1; i >= 0; i-- {
		e := l.entries[idxs[i]]
		if e.removed || !f.match(e.rec.Label) {
			continue
		}
		out = append(out, e.rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Entries returns live records newest first, optionally for one user.
func (l *Ledger) Entries(user string, limit int) []Record {
	if user != "" {
		return l.EntriesForUser(user, FilterAll, limit)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].removed {
			continue
		}
		out = append(out, l.entries[i].rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ReplayStats returns what the startup replay saw.
func (l *Ledger) ReplayStats() ReplayStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.replay
}

// Path returns the journal file location.
func (l *Ledger) Path() string { return l.path }

// Compact atomically rewrites the journal with only live records, dropping
// tombstones and the records they cancel.
func (l *Ledger) Compact() (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	logger := log.WithComponent("ledger")

	pending, err := renameio.NewPendingFile(l.path, renameio.WithPermissions(0o644))
	if err != nil {
		return &PersistenceError{Op: "compact", Err: err}
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			logger.Debug().Err(cerr).Msg("cleanup pending journal")
		}
	}()

	w := bufio.NewWriter(pending)
	enc := json.NewEncoder(w)
	kept := make([]entry, 0, l.live)
	for _, e := range l.entries {
		if e.removed {
			continue
		}
		if err := enc.Encode(e.rec); err != nil {
			return &PersistenceError{Op: "compact", Err: err}
		}
		kept = append(kept, entry{rec: e.rec})
	}
	if err := w.Flush(); err != nil {
		return &PersistenceError{Op: "compact", Err: err}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return &PersistenceError{Op: "compact", Err: err}
	}

	// The old handle points at the replaced inode.
	_ = l.f.Close()
	l.f = nil
	// #nosec G304 -- journal path comes from operator configuration
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistenceError{Op: "reopen", Err: err}
	}
	l.f = f

	dropped := len(l.entries) - len(kept)
	l.reindex(kept)
	logger.Info().
		Str(log.FieldEvent, "ledger.compacted").
		Int("live", l.live).
		Int("dropped", dropped).
		Msg("journal compacted")
	return nil
}

func (l *Ledger) reindex(kept []entry) {
	l.entries = nil
	l.byID = make(map[string][]int)
	l.byUser = make(map[string][]int)
	l.counts = make(map[string]int)
	l.live = 0
	last := l.lastTS
	for _, e := range kept {
		l.apply(e.rec)
	}
	if last > l.lastTS {
		l.lastTS = last
	}
}

// Close releases the append handle and the journal lock.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.f != nil {
		err = l.f.Close()
		l.f = nil
	}
	if l.lock != nil {
		err = errors.Join(err, l.lock.Close())
		l.lock = nil
	}
	return err
}
