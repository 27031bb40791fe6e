// Package store holds the live key table. It is the only owner of mutable
// key state: every record handed out is a copy, and every mutation goes
// through a method that runs as a single critical section.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// ErrDuplicateKey is returned by Insert when the identifier already exists.
var ErrDuplicateKey = errors.New("duplicate key")

// BindStatus classifies the outcome of a CompareAndBind call.
type BindStatus int

const (
	// BindNotFound means no live record exists for the identifier.
	BindNotFound BindStatus = iota
	// BindExpired means the record's window had passed; it has been evicted.
	BindExpired
	// BindBoundNow means this call won the first-use bind.
	BindBoundNow
	// BindAlreadyBound means the key was already bound to this hardware id.
	BindAlreadyBound
	// BindMismatch means the key is bound to a different hardware id.
	// The record was not mutated.
	BindMismatch
)

// BindResult carries the status plus a copy of the record for the outcomes
// where the caller needs its fields (BoundNow, AlreadyBound).
type BindResult struct {
	Status BindStatus
	Record *model.KeyRecord
}

// KeyStore is a concurrency-safe mapping from identifier to key record.
// A single mutex guards the whole table: per-identifier striping would buy
// throughput this workload does not need, and the coarse lock makes the
// read-then-conditionally-write in CompareAndBind trivially atomic.
type KeyStore struct {
	mu   sync.Mutex
	keys map[string]*model.KeyRecord
}

// New returns an empty KeyStore.
func New() *KeyStore {
	return &KeyStore{keys: make(map[string]*model.KeyRecord)}
}

// Insert adds a record. Returns ErrDuplicateKey if the identifier is already
// present; the existing record is left untouched.
func (s *KeyStore) Insert(rec model.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[rec.Key]; ok {
		return ErrDuplicateKey
	}
	stored := rec.Clone()
	s.keys[rec.Key] = &stored
	return nil
}

// Get returns a copy of the record for the identifier, or false if absent.
// Get never mutates the table; expired-but-unswept records are returned
// as-is so callers can present the lazy-expiry view.
func (s *KeyStore) Get(key string) (model.KeyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[key]
	if !ok {
		return model.KeyRecord{}, false
	}
	return rec.Clone(), true
}

// CompareAndBind is the redemption synchronization point. In one critical
// section it resolves the identifier, evicts it if expired, binds it on
// first use, and otherwise checks the stored hardware id. Two concurrent
// first-use calls with different hardware ids therefore resolve to exactly
// one BindBoundNow and one BindMismatch; the loser never overwrites the
// winner's bind.
func (s *KeyStore) CompareAndBind(key, hwid, username, userID string, now time.Time) BindResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[key]
	if !ok {
		return BindResult{Status: BindNotFound}
	}

	if rec.Expired(now) {
		delete(s.keys, key)
		return BindResult{Status: BindExpired}
	}

	if !rec.Used {
		rec.Used = true
		rec.HWID = &hwid
		rec.Username = &username
		rec.UserID = &userID
		first := now
		rec.FirstUsedAt = &first
		cp := rec.Clone()
		return BindResult{Status: BindBoundNow, Record: &cp}
	}

	if rec.HWID != nil && *rec.HWID == hwid {
		cp := rec.Clone()
		return BindResult{Status: BindAlreadyBound, Record: &cp}
	}
	return BindResult{Status: BindMismatch}
}

// Remove evicts the record if present and reports whether it was there.
func (s *KeyStore) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; !ok {
		return false
	}
	delete(s.keys, key)
	return true
}

// SweepExpired evicts every record whose window has passed and returns the
// number evicted.
func (s *KeyStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, rec := range s.keys {
		if rec.Expired(now) {
			delete(s.keys, key)
			evicted++
		}
	}
	return evicted
}

// Snapshot returns a point-in-time copy of every live record. Mutating the
// returned slice or its records has no effect on the store.
func (s *KeyStore) Snapshot() []model.KeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.KeyRecord, 0, len(s.keys))
	for _, rec := range s.keys {
		out = append(out, rec.Clone())
	}
	return out
}

// Len returns the number of live records.
func (s *KeyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Stats counts live and used records in one pass.
func (s *KeyStore) Stats() model.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.Stats{Active: len(s.keys)}
	for _, rec := range s.keys {
		if rec.Used {
			st.Used++
		}
	}
	return st
}
