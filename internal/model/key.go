package model

import "time"

// KeyRecord is the authoritative state of one issued access key. The record
// lives in the in-memory key store; everything handed out of the store is a
// copy, so handlers and services never alias store-owned state.
type KeyRecord struct {
	Key           string     `json:"key"`
	CreatedAt     time.Time  `json:"created"`
	ExpiresAt     time.Time  `json:"expiration"`
	DurationHours int        `json:"duration"`
	Used          bool       `json:"used"`
	HWID          *string    `json:"hwid,omitempty"`     // nil until first redemption, then immutable
	Username      *string    `json:"username,omitempty"` // display metadata captured at first redemption
	UserID        *string    `json:"userid,omitempty"`
	FirstUsedAt   *time.Time `json:"first_used,omitempty"`
}

// Clone returns a deep copy of the record. Pointer fields are duplicated so
// the copy shares no mutable state with the original.
func (r *KeyRecord) Clone() KeyRecord {
	out := *r
	out.HWID = cloneString(r.HWID)
	out.Username = cloneString(r.Username)
	out.UserID = cloneString(r.UserID)
	if r.FirstUsedAt != nil {
		t := *r.FirstUsedAt
		out.FirstUsedAt = &t
	}
	return out
}

// Expired reports whether the record's validity window has passed at the
// given instant.
func (r *KeyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// TimeLeft returns the whole seconds remaining until expiry, floored at 0.
func (r *KeyRecord) TimeLeft(now time.Time) int64 {
	left := r.ExpiresAt.Sub(now) / time.Second
	if left < 0 {
		return 0
	}
	return int64(left)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// KeySummary is the per-key line item returned by the list operation.
type KeySummary struct {
	Key      string  `json:"key"`
	Used     bool    `json:"used"`
	Username *string `json:"username"`
	Expired  bool    `json:"expired"`
	TimeLeft int64   `json:"timeLeft"`
}

// VerifyResult is the outcome of a redemption attempt. Domain-invalid
// outcomes (unknown key, expired, bound to another device) are successful
// responses with Valid=false, not errors. Expiration and TimeLeft are
// pointers so a valid redemption always carries both fields on the wire,
// even when the remaining time has floored to 0, while invalid outcomes
// keep the reduced {valid, message} shape.
type VerifyResult struct {
	Valid      bool   `json:"valid"`
	Message    string `json:"message"`
	Expiration *int64 `json:"expiration,omitempty"` // unix milliseconds
	TimeLeft   *int64 `json:"timeLeft,omitempty"`   // whole seconds, floored at 0
	Username   string `json:"username,omitempty"`
}

// KeyInfo is the read-only inspection view of a key. Expired is computed
// against the current time even when the record has not been swept yet.
type KeyInfo struct {
	Key        string `json:"key"`
	Used       bool   `json:"used"`
	Username   string `json:"username"`
	Created    string `json:"created"`    // ISO-8601
	Expiration string `json:"expiration"` // ISO-8601
	TimeLeft   string `json:"timeLeft"`   // e.g. "3599s"
	Expired    bool   `json:"expired"`
}

// Stats is the live/used key count pair surfaced on the status page and
// through the MCP status tool.
type Stats struct {
	Active int `json:"active"`
	Used   int `json:"used"`
}
