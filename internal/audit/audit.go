// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audit provides structured audit logging for reviewer access and
// for operations that remove labels. It follows the WHO/WHAT/WHEN pattern.
package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/vlabel/internal/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Reviewer authentication
	EventAuthSuccess  EventType = "auth.success"
	EventAuthFailure  EventType = "auth.failure"
	EventAuthLogout   EventType = "auth.logout"
	EventAuthRejected EventType = "auth.rejected"

	// Label removal and restoration
	EventLabelRemoved EventType = "label.removed"
	EventLabelsUndone EventType = "label.undone"
	EventLabelsRedone EventType = "label.redone"

	// Journal maintenance
	EventJournalCompacted EventType = "journal.compacted"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`             // WHO: annotator name, client address, or "operator"
	Action     string            `json:"action"`            // WHAT: human-readable action description
	Resource   string            `json:"resource"`          // Resource affected (endpoint, clip id, journal path)
	Result     string            `json:"result"`            // success, failure, denied
	RemoteAddr string            `json:"remote_addr"`       // Client IP address
	UserAgent  string            `json:"user_agent"`        // Client user agent
	RequestID  string            `json:"request_id"`        // Correlation ID
	Details    map[string]string `json:"details,omitempty"` // Additional context
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith writes audit events through base.
func NewLoggerWith(base zerolog.Logger) *Logger {
	return &Logger{
		logger: base.With().Str("log_type", "audit").Logger(),
		now:    time.Now,
	}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		logEvent.Str("remote_addr", event.RemoteAddr)
	}
	if event.UserAgent != "" {
		logEvent.Str("user_agent", event.UserAgent)
	}
	if event.RequestID != "" {
		logEvent.Str("request_id", event.RequestID)
	}
	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// LogRequest fills the client fields of event from r and logs it.
func (l *Logger) LogRequest(r *http.Request, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(r.Context())
	}
	if event.RemoteAddr == "" {
		event.RemoteAddr = r.RemoteAddr
	}
	if event.UserAgent == "" {
		event.UserAgent = r.UserAgent()
	}
	if event.Actor == "" {
		event.Actor = event.RemoteAddr
	}
	if event.Resource == "" {
		event.Resource = r.URL.Path
	}
	l.Log(event)
}

// AuthSuccess logs a reviewer login.
func (l *Logger) AuthSuccess(r *http.Request) {
	l.LogRequest(r, Event{
		Type:   EventAuthSuccess,
		Action: "reviewer logged in",
		Result: "success",
	})
}

// AuthFailure logs a rejected reviewer password.
func (l *Logger) AuthFailure(r *http.Request, reason string) {
	l.LogRequest(r, Event{
		Type:    EventAuthFailure,
		Action:  "reviewer login failed",
		Result:  "failure",
		Details: map[string]string{"reason": reason},
	})
}

// AuthLogout logs a reviewer logout.
func (l *Logger) AuthLogout(r *http.Request) {
	l.LogRequest(r, Event{
		Type:   EventAuthLogout,
		Action: "reviewer logged out",
		Result: "success",
	})
}

// AuthRejected logs a reviewer endpoint hit without a valid session.
func (l *Logger) AuthRejected(r *http.Request, reason string) {
	l.LogRequest(r, Event{
		Type:    EventAuthRejected,
		Action:  "accessed reviewer endpoint without a valid session",
		Result:  "denied",
		Details: map[string]string{"reason": reason},
	})
}

// LabelRemoved logs an explicit unlabel.
func (l *Logger) LabelRemoved(r *http.Request, user, id string) {
	l.LogRequest(r, Event{
		Type:     EventLabelRemoved,
		Actor:    user,
		Action:   "removed label",
		Resource: id,
		Result:   "success",
	})
}

// LabelsUndone logs an undo batch.
func (l *Logger) LabelsUndone(r *http.Request, user string, ids []string) {
	l.LogRequest(r, Event{
		Type:     EventLabelsUndone,
		Actor:    user,
		Action:   "undid labels",
		Resource: strings.Join(ids, ","),
		Result:   "success",
		Details:  map[string]string{"count": strconv.Itoa(len(ids))},
	})
}

// LabelsRedone logs a redo batch.
func (l *Logger) LabelsRedone(r *http.Request, user string, ids []string) {
	l.LogRequest(r, Event{
		Type:     EventLabelsRedone,
		Actor:    user,
		Action:   "redid labels",
		Resource: strings.Join(ids, ","),
		Result:   "success",
		Details:  map[string]string{"count": strconv.Itoa(len(ids))},
	})
}

// JournalCompacted logs an offline journal rewrite.
func (l *Logger) JournalCompacted(path string, linesBefore, live int) {
	l.Log(Event{
		Type:     EventJournalCompacted,
		Actor:    "operator",
		Action:   "compacted journal",
		Resource: path,
		Result:   "success",
		Details: map[string]string{
			"lines_before": strconv.Itoa(linesBefore),
			"live":         strconv.Itoa(live),
		},
	})
}
