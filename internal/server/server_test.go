package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/keygen"
	"github.com/keygate/keygate/internal/license"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

const testSecret = "test-admin-secret"

// newTestServer wires a full server over in-memory state, middleware chain
// included.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfgStore, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { cfgStore.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := license.New(store.New(), keygen.New(""), logger)
	authSvc := service.NewAuthService(cfgStore, testSecret, "test-jwt-secret")

	return New(DefaultConfig(), svc, authSvc, cfgStore, logger)
}

func doJSON(t *testing.T, srv *Server, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = buf
	}
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// Probes and ambient surface
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, "GET", "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, "GET", "/healthz", nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestOpenAPIServed(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, "GET", "/openapi.json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("openapi.json is not JSON: %v", err)
	}
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v, want 3.1.0", doc["openapi"])
	}
}

func TestStatusPage(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, "GET", "/", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("Active Keys")) {
		t.Error("status page missing key counts")
	}
}

// ---------------------------------------------------------------------------
// End-to-end key flow through the full middleware chain
// ---------------------------------------------------------------------------

func TestCreateVerifyFlow(t *testing.T) {
	srv := newTestServer(t)

	// Mint.
	rr := doJSON(t, srv, "POST", "/create", map[string]interface{}{"password": testSecret})
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created model.CreateKeyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}

	// Redeem.
	rr = doJSON(t, srv, "POST", "/verify", map[string]string{
		"key": created.Key, "hwid": "device-A", "username": "alice",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rr.Code)
	}
	var verified model.VerifyResult
	if err := json.Unmarshal(rr.Body.Bytes(), &verified); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if !verified.Valid {
		t.Fatalf("verify valid=false, message=%q", verified.Message)
	}

	// Inspect.
	rr = doJSON(t, srv, "GET", "/info/"+created.Key, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("info status = %d", rr.Code)
	}
	var info model.KeyInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if !info.Used || info.Username != "alice" {
		t.Errorf("info = %+v, want used by alice", info)
	}

	// Delete.
	rr = doJSON(t, srv, "POST", "/delete", map[string]string{
		"password": testSecret, "key": created.Key,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	// Gone.
	rr = doJSON(t, srv, "GET", "/info/"+created.Key, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("info after delete status = %d, want 404", rr.Code)
	}
}

func TestAdminGateBlocksMutation(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, "POST", "/create", map[string]string{"password": "wrong"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Unauthorized" {
		t.Errorf("error = %q, want %q", resp.Error, "Unauthorized")
	}
}

// ---------------------------------------------------------------------------
// Session-gated admin API
// ---------------------------------------------------------------------------

func TestStatsRequiresSession(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, "GET", "/api/v1/stats", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stats status = %d, want 401", rr.Code)
	}

	// Exchange the secret for a token and retry.
	rr = doJSON(t, srv, "POST", "/api/v1/session", map[string]string{"secret": testSecret})
	if rr.Code != http.StatusOK {
		t.Fatalf("session status = %d", rr.Code)
	}
	var login struct {
		Token string `json:"session_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated stats status = %d; body = %s", rec.Code, rec.Body.String())
	}

	var stats model.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
}
