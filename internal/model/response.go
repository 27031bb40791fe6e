package model

// ErrorResponse is the envelope for transport-level failures (unauthorized,
// not found, malformed input). Domain-invalid redemption outcomes do not use
// it; they are VerifyResult values with Valid=false.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateKeyResponse is returned by the single-key create operation.
type CreateKeyResponse struct {
	Success    bool   `json:"success"`
	Key        string `json:"key"`
	Expiration int64  `json:"expiration"` // unix milliseconds
	Duration   string `json:"duration"`   // e.g. "24h"
}

// BulkCreateResponse is returned by the bulk create operation.
type BulkCreateResponse struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Keys    []string `json:"keys"`
}

// ListKeysResponse wraps the administrative key listing.
type ListKeysResponse struct {
	Count int          `json:"count"`
	Keys  []KeySummary `json:"keys"`
}

// ActionResponse is the generic success envelope for mutations that return
// no resource body (delete, logout).
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
