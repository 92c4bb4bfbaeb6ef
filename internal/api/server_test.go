// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/vlabel/internal/assign"
	"github.com/ManuGH/vlabel/internal/auth"
	"github.com/ManuGH/vlabel/internal/catalog"
	"github.com/ManuGH/vlabel/internal/config"
	"github.com/ManuGH/vlabel/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "hunter22"

type testEnv struct {
	handler http.Handler
	svc     *assign.Service
	led     *ledger.Ledger
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newTestEnv(t *testing.T, rl config.RateLimitConfig) *testEnv {
	t.Helper()
	videos := t.TempDir()
	writeFile(t, videos, "a.mp4", "clip:a.mp4")
	writeFile(t, videos, "b.mp4", "clip:b.mp4")
	writeFile(t, videos, "sub/c.webm", "clip:sub/c.webm")
	writeFile(t, videos, "notes.txt", "ignored")

	static := t.TempDir()
	writeFile(t, static, "index.html", "<html>label</html>")
	writeFile(t, static, "review.html", "<html>review</html>")
	writeFile(t, static, "app.js", "console.log(1)")

	src := catalog.NewFSSource(videos, []string{".mp4", ".webm"})
	cat, err := catalog.New(context.Background(), src)
	require.NoError(t, err)

	led, err := ledger.Open(filepath.Join(t.TempDir(), "labels.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	svc, err := assign.New(assign.Config{
		LeaseTTL:            3 * time.Minute,
		SingleLabelPerVideo: true,
		ActiveWindow:        10 * time.Minute,
	}, cat, led)
	require.NoError(t, err)

	sessions, err := auth.NewSessions([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	srv := New(Config{
		StaticDir:        static,
		ReviewerPassword: testPassword,
		RateLimit:        rl,
	}, svc, sessions, src)
	return &testEnv{handler: srv.Handler(), svc: svc, led: led}
}

func (e *testEnv) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestAnnotatorFlow(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	rr := env.do(t, http.MethodGet, "/api/next?user=alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	next := decode[assignmentResponse](t, rr)
	assert.Equal(t, "a.mp4", next.ID)
	assert.Equal(t, "/videos/a.mp4", next.URL)
	assert.False(t, next.Done)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = env.do(t, http.MethodPost, "/api/label",
		`{"id":"a.mp4","user":"alice","label":"ok","time_ms":1200,"duration_ms":5000}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[okResponse](t, rr).OK)

	rr = env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[assign.Stats](t, rr)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Labeled)
	assert.Equal(t, 2, stats.Remaining)
	assert.Equal(t, map[string]int{"alice": 1}, stats.PerUser)
	assert.True(t, stats.SingleLabelPerVideo)

	rr = env.do(t, http.MethodGet, "/api/mystats?user=alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	mine := decode[assign.UserStats](t, rr)
	assert.Equal(t, assign.UserStats{Labeled: 1, Target: 3, Remaining: 2}, mine)

	rr = env.do(t, http.MethodGet, "/api/user_labels?user=alice&label=ok", "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[itemsResponse](t, rr)
	require.Equal(t, 1, items.Count)
	assert.Equal(t, "a.mp4", items.Items[0].ID)
	assert.InDelta(t, 1200, items.Items[0].TimeMS, 0.001)

	rr = env.do(t, http.MethodGet, "/api/user_labels?user=alice&label=not_ok", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"items":[],"count":0}`, rr.Body.String())
}

func TestLabelErrors(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"no lease", `{"id":"a.mp4","user":"alice","label":"ok"}`, http.StatusConflict},
		{"bad label", `{"id":"a.mp4","user":"alice","label":"maybe"}`, http.StatusBadRequest},
		{"missing user", `{"id":"a.mp4","label":"ok"}`, http.StatusBadRequest},
		{"broken json", `{"id":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/label", tt.body)
			assert.Equal(t, tt.code, rr.Code)
			body := decode[errorBody](t, rr)
			assert.False(t, body.OK)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMissingUserRejected(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})
	for _, target := range []string{"/api/next", "/api/mystats", "/api/user_labels?label=ok"} {
		rr := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
	rr := env.do(t, http.MethodPost, "/api/skip", `{"user":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPeekAndSkip(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	rr := env.do(t, http.MethodGet, "/api/peek", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a.mp4", decode[assignmentResponse](t, rr).ID)

	rr = env.do(t, http.MethodGet, "/api/next?user=alice", "")
	require.Equal(t, "a.mp4", decode[assignmentResponse](t, rr).ID)

	rr = env.do(t, http.MethodPost, "/api/skip", `{"id":"a.mp4","user":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// Released clip goes back to the pool; bob sees it first.
	rr = env.do(t, http.MethodGet, "/api/next?user=bob", "")
	assert.Equal(t, "a.mp4", decode[assignmentResponse](t, rr).ID)
}

func TestUndoRedoUnlabel(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	for range 2 {
		next := decode[assignmentResponse](t, env.do(t, http.MethodGet, "/api/next?user=alice", ""))
		rr := env.do(t, http.MethodPost, "/api/label", `{"id":"`+next.ID+`","user":"alice","label":"not_ok"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/api/undo", `{"user":"alice","count":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	undo := decode[undoResponse](t, rr)
	assert.Equal(t, 2, undo.Undone)
	assert.Equal(t, []string{"a.mp4", "b.mp4"}, undo.IDs)
	assert.Equal(t, 0, env.led.Len())

	rr = env.do(t, http.MethodPost, "/api/redo", `{"user":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[redoResponse](t, rr).Redone)
	assert.Equal(t, 2, env.led.Len())

	rr = env.do(t, http.MethodPost, "/api/redo", `{"user":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[redoResponse](t, rr).Redone)

	rr = env.do(t, http.MethodPost, "/api/unlabel", `{"id":"b.mp4","user":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, env.led.IsLabeled("b.mp4"))

	rr = env.do(t, http.MethodPost, "/api/undo", `{"user":"alice","count":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/undo", `{"user":"nobody","count":3}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true,"undone":0,"ids":[]}`, rr.Body.String())
}

func TestReviewerEndpoints(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	next := decode[assignmentResponse](t, env.do(t, http.MethodGet, "/api/next?user=alice", ""))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/label",
		`{"id":"`+next.ID+`","user":"alice","label":"ok"}`).Code)

	for _, target := range []string{"/api/users", "/api/labels", "/api/balance"} {
		rr := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
	}

	rr := env.do(t, http.MethodPost, "/api/reviewer/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/reviewer/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/reviewer/login", `{"password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)

	rr = env.do(t, http.MethodGet, "/api/users", "", session)
	require.Equal(t, http.StatusOK, rr.Code)
	users := decode[usersResponse](t, rr)
	assert.Equal(t, map[string]int{"alice": 1}, users.PerUser)
	assert.Equal(t, 3, users.TotalVideos)

	rr = env.do(t, http.MethodGet, "/api/labels?limit=5", "", session)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[itemsResponse](t, rr).Count)

	rr = env.do(t, http.MethodGet, "/api/balance", "", session)
	require.Equal(t, http.StatusOK, rr.Code)
	bal := decode[assign.BalanceView](t, rr)
	assert.Equal(t, 3, bal.Total)
	assert.Equal(t, 1, bal.Labeled)
	require.Len(t, bal.Users, 1)
	assert.Equal(t, "alice", bal.Users[0].User)

	// Bearer tokens work too.
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+session.Value)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rr = env.do(t, http.MethodPost, "/api/reviewer/logout", "", session)
	require.Equal(t, http.StatusOK, rr.Code)
	cleared := rr.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	rr = env.do(t, http.MethodGet, "/api/users", "", &http.Cookie{Name: auth.CookieName, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, LoginPerMinute: 2})

	var last int
	for range 3 {
		last = env.do(t, http.MethodPost, "/api/reviewer/login", `{"password":"wrong"}`).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestVideoServing(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	rr := env.do(t, http.MethodGet, "/videos/a.mp4", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "clip:a.mp4", rr.Body.String())
	assert.Equal(t, "video/mp4", rr.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rr.Header().Get("Accept-Ranges"))

	req := httptest.NewRequest(http.MethodGet, "/videos/sub/c.webm", nil)
	req.Header.Set("Range", "bytes=0-3")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "clip", rec.Body.String())
	assert.Equal(t, "bytes 0-3/15", rec.Header().Get("Content-Range"))
	assert.Equal(t, "video/webm", rec.Header().Get("Content-Type"))

	rr = env.do(t, http.MethodHead, "/videos/b.mp4", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/videos/sub/../../etc/passwd", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodGet, "/videos/missing.mp4", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	rr := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "label")
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	rr = env.do(t, http.MethodGet, "/review", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "review")

	rr = env.do(t, http.MethodGet, "/my", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/static/app.js", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, cacheImmutable, rr.Header().Get("Cache-Control"))

	rr = env.do(t, http.MethodGet, "/static/../index.html", "")
	assert.Equal(t, http.StatusOK, rr.Code, "cleaned path stays inside the static dir")
}

func TestRouterFallbacks(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	rr := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = env.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"ok":false,"error":"not found"}`, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/label", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/yaml", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "openapi: 3.0.3"))
}
