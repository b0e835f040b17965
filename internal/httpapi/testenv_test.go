// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/internal/auth/authtest"
	"github.com/pinvent/pinvent/internal/contact"
	"github.com/pinvent/pinvent/internal/httpapi"
	"github.com/pinvent/pinvent/internal/observability"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testFrontend = "https://shop.example.com"
	testSupport  = "support@shop.example.com"
)

var resetLinkRE = regexp.MustCompile(`/resetpassword/([0-9a-f]{64}[0-9A-HJKMNP-TV-Z]{26})`)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	clock    *clock
	users    *authtest.Users
	resets   *authtest.ResetTokens
	denylist *authtest.Denylist
	mailer   *authtest.Mailer
	metrics  *observability.Metrics
	logs     *bytes.Buffer
	handler  http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*httpapi.Config)) *testEnv {
	t.Helper()
	e := &testEnv{
		clock:    &clock{t: time.Now().UTC().Truncate(time.Second)},
		users:    authtest.NewUsers(),
		resets:   authtest.NewResetTokens(),
		denylist: authtest.NewDenylist(),
		mailer:   &authtest.Mailer{},
		metrics:  observability.NewMetrics(),
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(&syncWriter{w: e.logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	codec, err := auth.NewTokenCodec([]byte(testSecret), auth.WithCodecClock(e.clock.Now))
	require.NoError(t, err)
	opts := []auth.Option{
		auth.WithClock(e.clock.Now),
		auth.WithLogger(logger),
		auth.WithDenylist(e.denylist),
	}
	accounts, err := auth.NewService(e.users, codec, authtest.PlainHasher{}, opts...)
	require.NoError(t, err)
	guard, err := auth.NewGuard(codec, e.users, opts...)
	require.NoError(t, err)
	resets, err := auth.NewPasswordResetService(e.users, e.resets, authtest.PlainHasher{}, e.mailer, testFrontend, opts...)
	require.NoError(t, err)
	support, err := contact.NewService(e.mailer, testSupport, logger)
	require.NoError(t, err)

	cfg := httpapi.Config{
		CookieName:     "token",
		CORSOrigins:    []string{"http://localhost:3000"},
		AuthRateLimit:  1000,
		RequestTimeout: 5 * time.Second,
		Logger:         logger,
		Metrics:        e.metrics,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	e.handler, err = httpapi.NewRouter(httpapi.Services{
		Accounts: accounts,
		Guard:    guard,
		Resets:   resets,
		Contact:  support,
	}, cfg)
	require.NoError(t, err)
	return e
}

// syncWriter serializes writes from concurrent handlers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// do sends body as JSON (or raw when it is a string) with the given cookies.
func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its session cookie.
func (e *testEnv) register(t *testing.T, name, email, password string) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/users/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorResponse struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type userResponse struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Role  string  `json:"role"`
	Phone *string `json:"phone"`
}

func (e *testEnv) scrapeMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func deleteUser(t *testing.T, e *testEnv, id string) {
	t.Helper()
	parsed, err := ulid.Parse(id)
	require.NoError(t, err)
	e.users.Delete(parsed)
}
