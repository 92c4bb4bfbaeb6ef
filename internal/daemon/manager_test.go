// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/vlabel/internal/log"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func testServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     10 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 2 * time.Second,
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestNewManager_MissingLogger(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{
		Logger:     zerolog.Nop(),
		APIHandler: http.NotFoundHandler(),
		Listener:   listen(t),
	})
	if !errors.Is(err, ErrMissingLogger) {
		t.Fatalf("NewManager() error = %v, want ErrMissingLogger", err)
	}
}

func TestNewManager_MissingAPIHandler(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{Logger: log.WithComponent("test")})
	if !errors.Is(err, ErrMissingAPIHandler) {
		t.Fatalf("NewManager() error = %v, want ErrMissingAPIHandler", err)
	}
}

func TestNewManager_MissingListenAddr(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{
		Logger:     log.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	})
	if !errors.Is(err, ErrMissingListenAddr) {
		t.Fatalf("NewManager() error = %v, want ErrMissingListenAddr", err)
	}
}

func TestManager_ServesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln := listen(t)
	addr := ln.Addr().String()

	taskStopped := make(chan struct{})
	var mu sync.Mutex
	var order []string

	mgr, err := NewManager(testServerConfig(), Deps{
		Logger: log.WithComponent("test"),
		APIHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("OK"))
		}),
		Listener: ln,
		Tasks: []Task{{
			Name: "waiter",
			Run: func(ctx context.Context) error {
				<-ctx.Done()
				close(taskStopped)
				return ctx.Err()
			},
		}},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	for _, name := range []string{"first", "second"} {
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()

	client := &http.Client{Timeout: time.Second}
	var body string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get("http://" + addr + "/")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			body = string(b)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if body != "OK" {
		t.Fatalf("GET / body = %q, want OK", body)
	}
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	select {
	case <-taskStopped:
	default:
		t.Error("task was not stopped")
	}
	if strings.Join(order, ",") != "second,first" {
		t.Errorf("hook order = %v, want LIFO", order)
	}
}

func TestManager_TaskFailureStopsServer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("boom")
	hookRan := false
	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:     log.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
		Listener:   listen(t),
		Tasks: []Task{{
			Name: "broken",
			Run:  func(context.Context) error { return boom },
		}},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	mgr.RegisterShutdownHook("close", func(context.Context) error {
		hookRan = true
		return nil
	})

	err = mgr.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want boom", err)
	}
	if !hookRan {
		t.Error("shutdown hook did not run")
	}
}

func TestManager_StartTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:     log.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
		Listener:   listen(t),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := mgr.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestManager_HookErrorsJoined(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:     log.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
		Listener:   listen(t),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	closeErr := errors.New("close failed")
	mgr.RegisterShutdownHook("ledger", func(context.Context) error { return closeErr })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mgr.Start(ctx); !errors.Is(err, closeErr) {
		t.Fatalf("Start() error = %v, want close failed", err)
	}
}
