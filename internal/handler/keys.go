package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/license"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// KeyHandler exposes the key lifecycle over HTTP: create, bulk-create,
// verify, inspect, list, delete. The privileged operations (everything except
// verify and inspect) pass through the administrative gate first.
type KeyHandler struct {
	svc     *license.Service
	authSvc *service.AuthService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(svc *license.Service, authSvc *service.AuthService) *KeyHandler {
	return &KeyHandler{svc: svc, authSvc: authSvc}
}

// authorize admits a request to a privileged endpoint. The shared secret
// travels in the request body; a valid bearer session token is accepted as an
// alternative so CLI and dashboard clients do not have to re-send the secret
// on every call.
func (h *KeyHandler) authorize(r *http.Request, password string) error {
	if tok := bearerToken(r); tok != "" {
		if err := h.authSvc.ValidateSession(r.Context(), tok); err == nil {
			return nil
		}
	}
	return h.authSvc.VerifyAdminSecret(r.Context(), password)
}

// createRequest is the expected payload for Create.
type createRequest struct {
	Password string `json:"password"`
	Duration int    `json:"duration"` // hours; 0 means default
}

// Create mints one key.
// POST /create
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.authorize(r, req.Password); err != nil {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return
	}

	rec, err := h.svc.CreateKey(req.Duration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.CreateKeyResponse{
		Success:    true,
		Key:        rec.Key,
		Expiration: rec.ExpiresAt.UnixMilli(),
		Duration:   fmt.Sprintf("%dh", rec.DurationHours),
	})
}

// createBulkRequest is the expected payload for CreateBulk.
type createBulkRequest struct {
	Password string `json:"password"`
	Count    int    `json:"count"`
	Duration int    `json:"duration"`
}

// CreateBulk mints a batch of keys in one call. The count is clamped server
// side; there is no rollback if the batch fails partway, so the response
// reflects only what was actually created.
// POST /create-bulk
func (h *KeyHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req createBulkRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.authorize(r, req.Password); err != nil {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return
	}

	records, err := h.svc.CreateKeysBulk(req.Count, req.Duration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create keys: "+err.Error())
		return
	}

	keys := make([]string, 0, len(records))
	for i := range records {
		keys = append(keys, records[i].Key)
	}

	writeJSON(w, http.StatusOK, model.BulkCreateResponse{
		Success: true,
		Count:   len(keys),
		Keys:    keys,
	})
}

// verifyRequest is the expected payload for Verify.
type verifyRequest struct {
	Key      string `json:"key"`
	HWID     string `json:"hwid"`
	Username string `json:"username"`
	UserID   string `json:"userid"`
}

// Verify redeems a key for a device. Unknown, expired, and wrong-device
// outcomes are 200 responses with valid=false; only a missing key or HWID is
// a client error.
// POST /verify
func (h *KeyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Verify(req.Key, req.HWID, req.Username, req.UserID)
	if err != nil {
		if errors.Is(err, license.ErrMissingFields) {
			writeJSON(w, http.StatusBadRequest, model.VerifyResult{
				Valid:   false,
				Message: "Missing key or HWID",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "Verification failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Info returns the read-only view of a key. No gate: the identifier itself is
// the capability, and the view exposes nothing a holder does not already know.
// GET /info/{key}
func (h *KeyHandler) Info(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	info, err := h.svc.Inspect(key)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to inspect key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// listRequest is the expected payload for List.
type listRequest struct {
	Password string `json:"password"`
}

// List returns a summary of every live key.
// POST /list
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.authorize(r, req.Password); err != nil {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return
	}

	keys := h.svc.ListAll()
	writeJSON(w, http.StatusOK, model.ListKeysResponse{
		Count: len(keys),
		Keys:  keys,
	})
}

// deleteRequest is the expected payload for Delete.
type deleteRequest struct {
	Password string `json:"password"`
	Key      string `json:"key"`
}

// Delete evicts a key.
// POST /delete
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.authorize(r, req.Password); err != nil {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return
	}

	if !h.svc.DeleteKey(req.Key) {
		writeError(w, http.StatusNotFound, "Key not found")
		return
	}

	writeJSON(w, http.StatusOK, model.ActionResponse{
		Success: true,
		Message: "Key deleted",
	})
}
