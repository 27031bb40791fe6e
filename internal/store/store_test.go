package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/model"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRecord(key string, expiresAt time.Time) model.KeyRecord {
	return model.KeyRecord{
		Key:           key,
		CreatedAt:     testNow.Add(-time.Hour),
		ExpiresAt:     expiresAt,
		DurationHours: 24,
	}
}

func mustInsert(t *testing.T, s *KeyStore, rec model.KeyRecord) {
	t.Helper()
	if err := s.Insert(rec); err != nil {
		t.Fatalf("Insert(%s): %v", rec.Key, err)
	}
}

// ---------------------------------------------------------------------------
// Insert / Get / Remove
// ---------------------------------------------------------------------------

func TestInsertDuplicate(t *testing.T) {
	s := New()
	rec := newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour))

	mustInsert(t, s, rec)
	if err := s.Insert(rec); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("second Insert = %v, want ErrDuplicateKey", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour)))

	got, ok := s.Get("KG-AAAA-BBBB-CCCC")
	if !ok {
		t.Fatal("Get: record not found")
	}

	// Mutating the returned copy must not leak into the store.
	got.Used = true
	hw := "HW-EVIL"
	got.HWID = &hw

	again, _ := s.Get("KG-AAAA-BBBB-CCCC")
	if again.Used || again.HWID != nil {
		t.Error("store record mutated through a Get copy")
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, ok := s.Get("KG-ZZZZ-ZZZZ-ZZZZ"); ok {
		t.Error("Get on empty store returned a record")
	}
}

func TestRemove(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour)))

	if !s.Remove("KG-AAAA-BBBB-CCCC") {
		t.Error("Remove of live record = false, want true")
	}
	if s.Remove("KG-AAAA-BBBB-CCCC") {
		t.Error("Remove of removed record = true, want false")
	}
	if _, ok := s.Get("KG-AAAA-BBBB-CCCC"); ok {
		t.Error("removed record still reachable")
	}
}

// ---------------------------------------------------------------------------
// CompareAndBind
// ---------------------------------------------------------------------------

func TestCompareAndBindFirstUse(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour)))

	res := s.CompareAndBind("KG-AAAA-BBBB-CCCC", "HW-1", "alice", "u1", testNow)
	if res.Status != BindBoundNow {
		t.Fatalf("Status = %v, want BindBoundNow", res.Status)
	}
	if res.Record == nil || res.Record.HWID == nil || *res.Record.HWID != "HW-1" {
		t.Fatalf("bound record HWID = %v, want HW-1", res.Record)
	}
	if res.Record.FirstUsedAt == nil || !res.Record.FirstUsedAt.Equal(testNow) {
		t.Errorf("FirstUsedAt = %v, want %v", res.Record.FirstUsedAt, testNow)
	}
	if !res.Record.Used {
		t.Error("bound record not marked used")
	}
}

func TestCompareAndBindRepeatSameDevice(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour)))
	s.CompareAndBind("KG-AAAA-BBBB-CCCC", "HW-1", "alice", "u1", testNow)

	res := s.CompareAndBind("KG-AAAA-BBBB-CCCC", "HW-1", "alice", "u1", testNow.Add(time.Minute))
	if res.Status != BindAlreadyBound {
		t.Fatalf("Status = %v, want BindAlreadyBound", res.Status)
	}
	// FirstUsedAt and username stay as captured on the winning call.
	if !res.Record.FirstUsedAt.Equal(testNow) {
		t.Errorf("FirstUsedAt moved on repeat bind: %v", res.Record.FirstUsedAt)
	}
	if *res.Record.Username != "alice" {
		t.Errorf("Username = %q, want alice", *res.Record.Username)
	}
}

func TestCompareAndBindMismatchDoesNotMutate(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour)))
	s.CompareAndBind("KG-AAAA-BBBB-CCCC", "HW-1", "alice", "u1", testNow)

	res := s.CompareAndBind("KG-AAAA-BBBB-CCCC", "HW-2", "mallory", "u2", testNow)
	if res.Status != BindMismatch {
		t.Fatalf("Status = %v, want BindMismatch", res.Status)
	}

	rec, _ := s.Get("KG-AAAA-BBBB-CCCC")
	if *rec.HWID != "HW-1" {
		t.Errorf("stored HWID = %q, want HW-1 (mismatch must not overwrite)", *rec.HWID)
	}
	if *rec.Username != "alice" {
		t.Errorf("stored Username = %q, want alice", *rec.Username)
	}
}

func TestCompareAndBindNotFound(t *testing.T) {
	s := New()
	res := s.CompareAndBind("KG-ZZZZ-ZZZZ-ZZZZ", "HW-1", "", "", testNow)
	if res.Status != BindNotFound {
		t.Errorf("Status = %v, want BindNotFound", res.Status)
	}
}

func TestCompareAndBindExpiredEvicts(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(-time.Minute)))

	res := s.CompareAndBind("KG-AAAA-BBBB-CCCC", "HW-1", "", "", testNow)
	if res.Status != BindExpired {
		t.Fatalf("Status = %v, want BindExpired", res.Status)
	}
	// Eviction is immediate; the record must not resurrect.
	if _, ok := s.Get("KG-AAAA-BBBB-CCCC"); ok {
		t.Error("expired record still reachable after CompareAndBind")
	}
	if res := s.CompareAndBind("KG-AAAA-BBBB-CCCC", "HW-1", "", "", testNow); res.Status != BindNotFound {
		t.Errorf("post-eviction Status = %v, want BindNotFound", res.Status)
	}
}

// TestCompareAndBindRace races N distinct hardware ids on one never-used key.
// Exactly one caller must win the bind; everyone else must observe a
// mismatch, and the stored hardware id must be the winner's.
func TestCompareAndBindRace(t *testing.T) {
	const n = 64

	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour)))

	results := make([]BindResult, n)
	hwids := make([]string, n)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		hwids[i] = "HW-" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = s.CompareAndBind("KG-AAAA-BBBB-CCCC", hwids[i], "user", "uid", testNow)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	winnerHW := ""
	for i, res := range results {
		switch res.Status {
		case BindBoundNow:
			winners++
			winnerHW = hwids[i]
		case BindAlreadyBound:
			// Two goroutines can share a hardware id string only if the ids
			// collide; they are constructed distinct, so this is a failure.
			t.Errorf("goroutine %d saw BindAlreadyBound with distinct hwid", i)
		case BindMismatch:
			// expected for losers
		default:
			t.Errorf("goroutine %d: unexpected status %v", i, res.Status)
		}
	}

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	rec, _ := s.Get("KG-AAAA-BBBB-CCCC")
	if rec.HWID == nil || *rec.HWID != winnerHW {
		t.Errorf("stored HWID = %v, want winner %q", rec.HWID, winnerHW)
	}
}

// ---------------------------------------------------------------------------
// Sweep / Snapshot / Stats
// ---------------------------------------------------------------------------

func TestSweepExpired(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-0000-0000", testNow.Add(-time.Hour)))
	mustInsert(t, s, newRecord("KG-BBBB-0000-0000", testNow.Add(-time.Minute)))
	mustInsert(t, s, newRecord("KG-CCCC-0000-0000", testNow.Add(time.Hour)))

	if n := s.SweepExpired(testNow); n != 2 {
		t.Errorf("SweepExpired = %d, want 2", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", s.Len())
	}
	if _, ok := s.Get("KG-CCCC-0000-0000"); !ok {
		t.Error("live record swept")
	}
	// A second sweep finds nothing.
	if n := s.SweepExpired(testNow); n != 0 {
		t.Errorf("second SweepExpired = %d, want 0", n)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-BBBB-CCCC", testNow.Add(time.Hour)))

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot length = %d, want 1", len(snap))
	}
	snap[0].Used = true
	hw := "HW-EVIL"
	snap[0].HWID = &hw

	rec, _ := s.Get("KG-AAAA-BBBB-CCCC")
	if rec.Used || rec.HWID != nil {
		t.Error("store record mutated through snapshot")
	}
}

func TestStats(t *testing.T) {
	s := New()
	mustInsert(t, s, newRecord("KG-AAAA-0000-0000", testNow.Add(time.Hour)))
	mustInsert(t, s, newRecord("KG-BBBB-0000-0000", testNow.Add(time.Hour)))
	s.CompareAndBind("KG-AAAA-0000-0000", "HW-1", "alice", "u1", testNow)

	st := s.Stats()
	if st.Active != 2 || st.Used != 1 {
		t.Errorf("Stats = %+v, want {Active:2 Used:1}", st)
	}
}

// TestConcurrentMixedOperations exercises the table under parallel inserts,
// sweeps, and binds. It asserts nothing beyond invariants the race detector
// and the store's own accounting can check.
func TestConcurrentMixedOperations(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := newRecord(
					"KG-"+string(rune('A'+i))+"000-0000-"+string(rune('A'+j%26))+"000",
					testNow.Add(time.Duration(j%3-1)*time.Hour),
				)
				_ = s.Insert(key)
				s.CompareAndBind(key.Key, "HW-1", "u", "", testNow)
				s.SweepExpired(testNow)
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	// Everything still reachable must be live.
	for _, rec := range s.Snapshot() {
		if rec.Expired(testNow) {
			t.Errorf("expired record %s survived sweeping", rec.Key)
		}
	}
}
