// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/vlabel/internal/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLoggerWith(zerolog.New(&buf)), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, NewLogger())
}

func TestLogger_Log(t *testing.T) {
	l, buf := newBufferedLogger()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	l.Log(Event{
		Timestamp: ts,
		Type:      EventAuthSuccess,
		Actor:     "10.0.0.1",
		Action:    "reviewer logged in",
		Resource:  "/api/reviewer/login",
		Result:    "success",
		Details:   map[string]string{"extra": "1"},
	})

	m := lastEntry(t, buf)
	assert.Equal(t, "audit", m["log_type"])
	assert.Equal(t, "auth.success", m["event_type"])
	assert.Equal(t, "10.0.0.1", m["actor"])
	assert.Equal(t, "1", m["extra"])
	assert.Equal(t, "audit event", m["message"])
	assert.NotContains(t, m, "user_agent", "empty optional fields are omitted")
}

func TestLogger_LogRequestFillsClientFields(t *testing.T) {
	l, buf := newBufferedLogger()

	r := httptest.NewRequest(http.MethodPost, "/api/reviewer/login", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	r.Header.Set("User-Agent", "curl/8")
	r = r.WithContext(log.ContextWithRequestID(r.Context(), "req-42"))

	l.AuthFailure(r, "bad password")

	m := lastEntry(t, buf)
	assert.Equal(t, "auth.failure", m["event_type"])
	assert.Equal(t, "192.0.2.7:5555", m["actor"])
	assert.Equal(t, "192.0.2.7:5555", m["remote_addr"])
	assert.Equal(t, "curl/8", m["user_agent"])
	assert.Equal(t, "req-42", m["request_id"])
	assert.Equal(t, "/api/reviewer/login", m["resource"])
	assert.Equal(t, "bad password", m["reason"])
}

func TestLogger_LabelEvents(t *testing.T) {
	l, buf := newBufferedLogger()
	r := httptest.NewRequest(http.MethodPost, "/api/undo", nil)

	l.LabelsUndone(r, "alice", []string{"a.mp4", "b.mp4"})
	m := lastEntry(t, buf)
	assert.Equal(t, "label.undone", m["event_type"])
	assert.Equal(t, "alice", m["actor"])
	assert.Equal(t, "a.mp4,b.mp4", m["resource"])
	assert.Equal(t, "2", m["count"])

	l.LabelRemoved(r, "bob", "c.mp4")
	m = lastEntry(t, buf)
	assert.Equal(t, "label.removed", m["event_type"])
	assert.Equal(t, "c.mp4", m["resource"])

	l.JournalCompacted("/data/labels.jsonl", 10, 7)
	m = lastEntry(t, buf)
	assert.Equal(t, "journal.compacted", m["event_type"])
	assert.Equal(t, "operator", m["actor"])
	assert.Equal(t, "10", m["lines_before"])
	assert.Equal(t, "7", m["live"])
}
