package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/license"
	"github.com/keygate/keygate/internal/service"
)

// defaultSessionTTL is the lifetime of a session token issued by Login when
// no override is configured.
const defaultSessionTTL = 24 * time.Hour

// SystemHandler serves the status page and the supplemental admin API:
// session exchange, live stats, and the audit trail.
type SystemHandler struct {
	svc        *license.Service
	authSvc    *service.AuthService
	cfgStore   *config.Store // optional; nil disables the audit endpoint
	sessionTTL time.Duration
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(svc *license.Service, authSvc *service.AuthService, cfgStore *config.Store) *SystemHandler {
	return &SystemHandler{
		svc:        svc,
		authSvc:    authSvc,
		cfgStore:   cfgStore,
		sessionTTL: defaultSessionTTL,
	}
}

// SetSessionTTL overrides the lifetime of issued session tokens.
// Non-positive values keep the default.
func (h *SystemHandler) SetSessionTTL(d time.Duration) {
	if d > 0 {
		h.sessionTTL = d
	}
}

// ---------------------------------------------------------------------------
// Status page
// ---------------------------------------------------------------------------

const statusPage = `<html>
    <head>
        <title>Keygate</title>
        <style>
            body {
                background: #0f0f14;
                color: #fff;
                font-family: 'Segoe UI', sans-serif;
                display: flex;
                justify-content: center;
                align-items: center;
                height: 100vh;
                margin: 0;
            }
            .container {
                text-align: center;
                background: #1a1a20;
                padding: 40px;
                border-radius: 15px;
                border: 2px solid #28c850;
            }
            h1 { color: #28c850; }
            .stats {
                margin-top: 20px;
                font-size: 14px;
                color: #888;
            }
        </style>
    </head>
    <body>
        <div class="container">
            <h1>Keygate Key System</h1>
            <p>API Status: <span style="color: #28c850;">Online</span></p>
            <div class="stats">
                <p>Active Keys: %d</p>
                <p>Used Keys: %d</p>
            </div>
        </div>
    </body>
</html>
`

// Home renders the HTML status page with live key counts.
// GET /
func (h *SystemHandler) Home(w http.ResponseWriter, r *http.Request) {
	stats := h.svc.Stats()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, statusPage, stats.Active, stats.Used)
}

// ---------------------------------------------------------------------------
// Session exchange
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for Login.
type loginRequest struct {
	Secret string `json:"secret"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// Login exchanges the admin shared secret for a JWT session token. The
// privileged key endpoints then accept the token as a bearer header instead
// of the body password.
// POST /api/v1/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.authSvc.VerifyAdminSecret(r.Context(), req.Secret); err != nil {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return
	}

	token, err := h.authSvc.IssueSession(r.Context(), h.sessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(h.sessionTTL.Seconds()),
	})
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// Stats returns the live/used key counts as JSON. Sits behind the session
// middleware; the status page exposes the same numbers without auth.
// GET /api/v1/stats
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Audit returns recent key lifecycle events, newest first. The trail is
// display metadata recorded best-effort; it is not a source of truth for key
// state.
// GET /api/v1/audit?limit=N
func (h *SystemHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.cfgStore == nil {
		writeError(w, http.StatusNotFound, "Audit trail not enabled")
		return
	}

	limit := queryInt(r, "limit", 100)
	events, err := h.cfgStore.ListKeyEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}
