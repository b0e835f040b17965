// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinvent/pinvent/internal/config"
	"github.com/pinvent/pinvent/internal/observability"
	"github.com/pinvent/pinvent/internal/store"
	"github.com/pinvent/pinvent/pkg/errutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() config.Config {
	return config.Config{
		Env:         config.EnvDevelopment,
		FrontendURL: "http://localhost:3000",
		HTTP: config.HTTPConfig{
			Addr:           "127.0.0.1:0",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			RequestTimeout: 5 * time.Second,
			CORSOrigins:    []string{"http://localhost:3000"},
			AuthRateLimit:  20,
		},
		Log:      config.LogConfig{Format: "json"},
		Database: config.DatabaseConfig{URL: "postgres://pinvent@localhost/pinvent"},
		Session:  config.SessionConfig{Secret: testSecret, CookieName: "token"},
		Metrics:  config.MetricsConfig{Addr: "127.0.0.1:0"},
		Jobs:     config.JobsConfig{PurgeSchedule: "*/15 * * * *"},
	}
}

type mockObservabilityServer struct {
	mu       sync.Mutex
	ready    observability.ReadinessChecker
	errCh    chan error
	startErr error
	started  bool
	stopped  bool
}

func (s *mockObservabilityServer) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = true
	return s.errCh, nil
}

func (s *mockObservabilityServer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *mockObservabilityServer) Addr() string { return "127.0.0.1:9100" }

func (s *mockObservabilityServer) readiness() observability.ReadinessChecker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *mockObservabilityServer) wasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *mockObservabilityServer) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type serveHarness struct {
	db      pgxmock.PgxPoolIface
	obs     *mockObservabilityServer
	addr    chan string
	logs    *lockedWriter
	deps    *Deps
	migrate *autoMigrator
}

type autoMigrator struct {
	upCalled, closeCalled bool
	upErr                 error
}

func (m *autoMigrator) Up() error {
	m.upCalled = true
	return m.upErr
}

func (m *autoMigrator) Close() error {
	m.closeCalled = true
	return nil
}

func newServeHarness(t *testing.T) *serveHarness {
	t.Helper()
	db, err := pgxmock.NewPool()
	require.NoError(t, err)

	h := &serveHarness{
		db:      db,
		obs:     &mockObservabilityServer{errCh: make(chan error, 1)},
		addr:    make(chan string, 1),
		logs:    &lockedWriter{w: new(bytes.Buffer)},
		migrate: &autoMigrator{},
	}
	h.deps = &Deps{
		DatabaseFactory: func(context.Context, store.PostgresConfig, *slog.Logger) (Database, error) {
			return h.db, nil
		},
		MigratorFactory: func(string) (AutoMigrator, error) {
			return h.migrate, nil
		},
		ObservabilityServerFactory: func(_ string, _ *observability.Metrics, ready observability.ReadinessChecker, _ *slog.Logger) ObservabilityServer {
			h.obs.mu.Lock()
			h.obs.ready = ready
			h.obs.mu.Unlock()
			return h.obs
		},
		Listen: func(network, address string) (net.Listener, error) {
			ln, err := net.Listen(network, address)
			if err == nil {
				h.addr <- ln.Addr().String()
			}
			return ln, err
		},
		LogOutput: h.logs,
	}
	return h
}

type lockedWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.String()
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// start runs runServe in the background and returns the API address and a
// channel with its result.
func (h *serveHarness) start(t *testing.T, ctx context.Context, cfg config.Config) (string, <-chan error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, h.deps) }()

	select {
	case addr := <-h.addr:
		return addr, done
	case err := <-done:
		t.Fatalf("runServe returned before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the API listener")
	}
	return "", nil
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(15 * time.Second):
		t.Fatal("runServe did not return")
		return nil
	}
}

func TestRunServe_ServesUntilCancelled(t *testing.T) {
	h := newServeHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, done := h.start(t, ctx, testConfig())

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Home page", string(body))

	resp, err = client.Get("http://" + addr + "/api/users/loggedin")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.JSONEq(t, "false", string(body))

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.True(t, h.obs.wasStopped())
	assert.False(t, h.migrate.upCalled, "auto-migrate is off by default")
	assert.Contains(t, h.logs.String(), "redis.addr not set")
	assert.Contains(t, h.logs.String(), "mail.host not set")
}

func TestRunServe_ReadinessPingsDatabase(t *testing.T) {
	h := newServeHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, done := h.start(t, ctx, testConfig())
	require.Eventually(t, h.obs.wasStarted, 5*time.Second, 10*time.Millisecond)
	ready := h.obs.readiness()
	require.NotNil(t, ready)

	h.db.ExpectPing()
	require.NoError(t, ready(context.Background()))

	h.db.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.Error(t, ready(context.Background()))

	cancel()
	require.NoError(t, waitDone(t, done))
	require.NoError(t, h.db.ExpectationsWereMet())
}

func TestRunServe_ObservabilityFailureStopsServer(t *testing.T) {
	h := newServeHarness(t)

	_, done := h.start(t, context.Background(), testConfig())
	h.obs.errCh <- errors.New("listener died")

	err := waitDone(t, done)
	errutil.AssertErrorCode(t, err, "SERVER_FAILED")
	assert.True(t, h.obs.wasStopped())
}

func TestRunServe_AutoMigrate(t *testing.T) {
	h := newServeHarness(t)
	cfg := testConfig()
	cfg.Database.AutoMigrate = true
	cfg.Metrics.Addr = ""
	ctx, cancel := context.WithCancel(context.Background())

	_, done := h.start(t, ctx, cfg)
	cancel()
	require.NoError(t, waitDone(t, done))

	assert.True(t, h.migrate.upCalled)
	assert.True(t, h.migrate.closeCalled)
	assert.False(t, h.obs.wasStarted(), "metrics.addr empty disables the observability server")
}

func TestRunServe_AutoMigrateFailure(t *testing.T) {
	h := newServeHarness(t)
	h.migrate.upErr = errors.New("dirty database")
	cfg := testConfig()
	cfg.Database.AutoMigrate = true

	err := runServe(context.Background(), cfg, h.deps)
	errutil.AssertErrorCode(t, err, "AUTO_MIGRATION_FAILED")
	assert.True(t, h.migrate.closeCalled)
}

func TestRunServe_DatabaseUnavailable(t *testing.T) {
	h := newServeHarness(t)
	h.deps.DatabaseFactory = func(context.Context, store.PostgresConfig, *slog.Logger) (Database, error) {
		return nil, errors.New("connection refused")
	}

	err := runServe(context.Background(), testConfig(), h.deps)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestRunServe_ObservabilityStartFailure(t *testing.T) {
	h := newServeHarness(t)
	h.obs.startErr = errors.New("address in use")

	err := runServe(context.Background(), testConfig(), h.deps)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_START_FAILED")
}

func TestRunServe_WithRedisDenylist(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newServeHarness(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()
	ctx, cancel := context.WithCancel(context.Background())

	_, done := h.start(t, ctx, cfg)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.NotContains(t, h.logs.String(), "redis.addr not set")
}

func TestRunServe_RedisUnavailable(t *testing.T) {
	h := newServeHarness(t)
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	err := runServe(context.Background(), cfg, h.deps)
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
}
