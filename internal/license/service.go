// Package license implements the key lifecycle: minting, redemption with
// first-use hardware binding, inspection, listing, and deletion. All state
// lives in the injected store; this layer adds policy and validation.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

const (
	// DefaultDurationHours is applied when a create request omits the
	// duration or passes a non-positive value.
	DefaultDurationHours = 24
	// DefaultBulkCount is applied when a bulk request omits the count.
	DefaultBulkCount = 10
	// MaxBulkCount caps a single bulk request. Larger requests are clamped,
	// not rejected.
	MaxBulkCount = 100

	// maxGenerateAttempts bounds the re-roll loop on identifier collision.
	maxGenerateAttempts = 5
)

var (
	// ErrGenerationExhausted means every generation attempt collided with a
	// live identifier. With a 36^12 space this is astronomically unlikely,
	// but it is a defined outcome rather than a crash.
	ErrGenerationExhausted = errors.New("key generation exhausted: all attempts collided")
	// ErrMissingFields is returned by Verify when the identifier or
	// hardware id is empty.
	ErrMissingFields = errors.New("missing key or hwid")
	// ErrNotFound is returned by Inspect for unknown identifiers.
	ErrNotFound = errors.New("key not found")
)

// Redemption messages returned to clients. These are part of the wire
// contract: client software matches on them.
const (
	msgInvalidKey  = "Invalid key"
	msgKeyExpired  = "Key expired"
	msgKeyMismatch = "Key already used on another device"
	msgVerified    = "Key verified successfully"
	msgNotUsedYet  = "Not used yet"
)

// AuditSink receives key lifecycle events for the audit trail. Recording is
// fire-and-forget; implementations must tolerate concurrent calls.
type AuditSink interface {
	KeyEvent(ctx context.Context, action, key, detail string)
}

// KeyGenerator produces opaque key identifiers. keygen.Generator is the
// production implementation; it makes no uniqueness promise, so CreateKey
// re-rolls on duplicate inserts.
type KeyGenerator interface {
	Generate() string
}

// Service is the lifecycle engine. Zero-value is not usable; construct with
// New.
type Service struct {
	store           *store.KeyStore
	gen             KeyGenerator
	audit           AuditSink // optional
	logger          *slog.Logger
	now             func() time.Time
	defaultDuration int // hours, applied when a request passes <= 0
}

// Option configures a Service.
type Option func(*Service)

// WithAudit attaches an audit sink recording create/bind/delete events.
func WithAudit(sink AuditSink) Option {
	return func(s *Service) { s.audit = sink }
}

// WithClock overrides the time source. Tests use this to make expiry
// deterministic.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultDuration overrides the validity window (in hours) applied when
// a create request omits the duration. Non-positive values keep
// DefaultDurationHours.
func WithDefaultDuration(hours int) Option {
	return func(s *Service) {
		if hours > 0 {
			s.defaultDuration = hours
		}
	}
}

// New creates a Service over the given store and generator.
func New(st *store.KeyStore, gen KeyGenerator, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:           st,
		gen:             gen,
		logger:          logger,
		now:             time.Now,
		defaultDuration: DefaultDurationHours,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateKey mints one key valid for durationHours (default 24 when
// non-positive). Identifier collisions against live records are retried a
// bounded number of times; exhaustion surfaces as ErrGenerationExhausted.
func (s *Service) CreateKey(durationHours int) (model.KeyRecord, error) {
	if durationHours <= 0 {
		durationHours = s.defaultDuration
	}

	now := s.now()
	rec := model.KeyRecord{
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(durationHours) * time.Hour),
		DurationHours: durationHours,
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		rec.Key = s.gen.Generate()
		err := s.store.Insert(rec)
		if err == nil {
			s.logger.Info("key created", "key", rec.Key, "duration_hours", durationHours)
			s.recordEvent("created", rec.Key, fmt.Sprintf("duration=%dh", durationHours))
			return rec, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return model.KeyRecord{}, err
		}
		s.logger.Warn("key collision, re-rolling", "attempt", attempt+1)
	}
	return model.KeyRecord{}, ErrGenerationExhausted
}

// CreateKeysBulk mints up to MaxBulkCount keys in one call. The count
// defaults to DefaultBulkCount and is clamped to [1, MaxBulkCount]. There is
// no rollback: if a creation fails mid-batch, earlier records stay live and
// the error is returned.
func (s *Service) CreateKeysBulk(count, durationHours int) ([]model.KeyRecord, error) {
	if count <= 0 {
		count = DefaultBulkCount
	}
	if count > MaxBulkCount {
		count = MaxBulkCount
	}

	records := make([]model.KeyRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := s.CreateKey(durationHours)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Verify redeems a key for the given hardware id. The first successful
// redemption binds the key to the device; later redemptions succeed only
// from the same device. Unknown, expired, and foreign-device outcomes are
// valid=false results, not errors; only malformed input is an error.
func (s *Service) Verify(key, hwid, username, userID string) (model.VerifyResult, error) {
	if key == "" || hwid == "" {
		return model.VerifyResult{}, ErrMissingFields
	}

	now := s.now()
	res := s.store.CompareAndBind(key, hwid, username, userID, now)

	switch res.Status {
	case store.BindNotFound:
		return model.VerifyResult{Valid: false, Message: msgInvalidKey}, nil
	case store.BindExpired:
		s.recordEvent("expired", key, "evicted on verify")
		return model.VerifyResult{Valid: false, Message: msgKeyExpired}, nil
	case store.BindMismatch:
		return model.VerifyResult{Valid: false, Message: msgKeyMismatch}, nil
	}

	if res.Status == store.BindBoundNow {
		s.logger.Info("key bound", "key", key, "username", username)
		s.recordEvent("bound", key, "hwid="+hwid)
	}

	rec := res.Record
	exp := rec.ExpiresAt.UnixMilli()
	left := rec.TimeLeft(now)
	out := model.VerifyResult{
		Valid:      true,
		Message:    msgVerified,
		Expiration: &exp,
		TimeLeft:   &left,
	}
	if rec.Username != nil {
		out.Username = *rec.Username
	}
	return out, nil
}

// Inspect returns the read-only view of a key. The expired flag is computed
// against the current time, so a record that outlived its window but has not
// been swept yet still reports expired=true.
func (s *Service) Inspect(key string) (model.KeyInfo, error) {
	rec, ok := s.store.Get(key)
	if !ok {
		return model.KeyInfo{}, ErrNotFound
	}

	now := s.now()
	info := model.KeyInfo{
		Key:        rec.Key,
		Used:       rec.Used,
		Username:   msgNotUsedYet,
		Created:    rec.CreatedAt.UTC().Format(time.RFC3339),
		Expiration: rec.ExpiresAt.UTC().Format(time.RFC3339),
		TimeLeft:   fmt.Sprintf("%ds", rec.TimeLeft(now)),
		Expired:    rec.Expired(now),
	}
	if rec.Username != nil && *rec.Username != "" {
		info.Username = *rec.Username
	}
	return info, nil
}

// ListAll returns a summary per live record. Expiry flags and remaining
// seconds reflect the moment of the call.
func (s *Service) ListAll() []model.KeySummary {
	now := s.now()
	records := s.store.Snapshot()

	out := make([]model.KeySummary, 0, len(records))
	for i := range records {
		rec := &records[i]
		out = append(out, model.KeySummary{
			Key:      rec.Key,
			Used:     rec.Used,
			Username: rec.Username,
			Expired:  rec.Expired(now),
			TimeLeft: rec.TimeLeft(now),
		})
	}
	return out
}

// DeleteKey evicts a key and reports whether it existed.
func (s *Service) DeleteKey(key string) bool {
	removed := s.store.Remove(key)
	if removed {
		s.logger.Info("key deleted", "key", key)
		s.recordEvent("deleted", key, "")
	}
	return removed
}

// Stats returns the live and used key counts.
func (s *Service) Stats() model.Stats {
	return s.store.Stats()
}

// recordEvent forwards to the audit sink without blocking the caller.
func (s *Service) recordEvent(action, key, detail string) {
	if s.audit == nil {
		return
	}
	go s.audit.KeyEvent(context.Background(), action, key, detail)
}
