package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/keygen"
	"github.com/keygate/keygate/internal/license"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testClock is a mutable time source for deterministic expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	keys     *store.KeyStore
	svc      *license.Service
	authSvc  *service.AuthService
	cfgStore *config.Store
	clock    *testClock
	router   chi.Router
}

// newTestEnv creates a fresh environment: in-memory key store, lifecycle
// engine on a fixed clock, auth service with a known secret, and a Chi router
// with all routes mounted (no middleware, direct handler testing).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfgStore, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { cfgStore.Close() })

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	keys := store.New()
	svc := license.New(keys, keygen.New(""), logger, license.WithClock(clock.Now))
	authSvc := service.NewAuthService(cfgStore, testPassword, testJWTSecret)

	keyHandler := NewKeyHandler(svc, authSvc)
	sysHandler := NewSystemHandler(svc, authSvc, cfgStore)

	r := chi.NewRouter()
	r.Get("/", sysHandler.Home)
	r.Post("/create", keyHandler.Create)
	r.Post("/create-bulk", keyHandler.CreateBulk)
	r.Post("/verify", keyHandler.Verify)
	r.Get("/info/{key}", keyHandler.Info)
	r.Post("/list", keyHandler.List)
	r.Post("/delete", keyHandler.Delete)
	r.Post("/api/v1/session", sysHandler.Login)
	r.Get("/api/v1/stats", sysHandler.Stats)
	r.Get("/api/v1/audit", sysHandler.Audit)

	return &testEnv{
		keys:     keys,
		svc:      svc,
		authSvc:  authSvc,
		cfgStore: cfgStore,
		clock:    clock,
		router:   r,
	}
}

// createKey mints one key through the engine and returns its identifier.
func (e *testEnv) createKey(t *testing.T, durationHours int) string {
	t.Helper()
	rec, err := e.svc.CreateKey(durationHours)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	return rec.Key
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// doAuth is do with an Authorization header attached.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", authorization)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
