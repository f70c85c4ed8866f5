package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// countingStore counts list calls reaching the underlying store.
type countingStore struct {
	*MemoryStore
	lists int
}

func (s *countingStore) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	s.lists++
	return s.MemoryStore.ListByDoctorDate(ctx, doctorID, date)
}

func newCachedEngine(t *testing.T) (*Engine, *CachedStore, *countingStore) {
	t.Helper()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cached, err := NewCachedStore(inner, 16)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return NewEngine(cached, DefaultRules()), cached, inner
}

func TestCachedStore_ServesRepeatedReads(t *testing.T) {
	e, cached, inner := newCachedEngine(t)
	doctor := uuid.New()
	date := mustDate(t, "2025-06-05")

	for i := 0; i < 3; i++ {
		if _, err := e.ComputeAvailableSlots(context.Background(), doctor, date, testNow); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inner.lists != 1 {
		t.Errorf("expected 1 list against the store, got %d", inner.lists)
	}
	if cached.Len() != 1 {
		t.Errorf("expected 1 cached day, got %d", cached.Len())
	}
}

func TestCachedStore_BookEvictsDay(t *testing.T) {
	e, _, _ := newCachedEngine(t)
	doctor := uuid.New()
	date := mustDate(t, "2025-06-05")

	before, _ := e.ComputeAvailableSlots(context.Background(), doctor, date, testNow)
	mustBook(t, e, candidate(t, doctor, "2025-06-05", "11:00"))
	after, _ := e.ComputeAvailableSlots(context.Background(), doctor, date, testNow)

	if len(before) != 17 || len(after) != 16 {
		t.Errorf("expected 17 then 16 slots, got %d then %d", len(before), len(after))
	}
}

func TestCachedStore_CancelEvictsDay(t *testing.T) {
	e, _, _ := newCachedEngine(t)
	doctor := uuid.New()
	date := mustDate(t, "2025-06-05")

	appt := mustBook(t, e, candidate(t, doctor, "2025-06-05", "11:00"))
	booked, _ := e.ComputeAvailableSlots(context.Background(), doctor, date, testNow)
	if _, err := e.Cancel(context.Background(), appt.ID, testNow); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	freed, _ := e.ComputeAvailableSlots(context.Background(), doctor, date, testNow)

	if len(booked) != 16 || len(freed) != 17 {
		t.Errorf("expected 16 then 17 slots, got %d then %d", len(booked), len(freed))
	}
}

func TestCachedStore_ReturnsCopies(t *testing.T) {
	_, cached, _ := newCachedEngine(t)
	doctor := uuid.New()
	date := mustDate(t, "2025-06-05")
	if err := cached.Insert(context.Background(), &Appointment{DoctorID: doctor, PatientID: uuid.New(), Date: date, Time: NewTimeOfDay(9, 0)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first, _ := cached.ListByDoctorDate(context.Background(), doctor, date)
	first[0].Time = NewTimeOfDay(16, 0)
	second, _ := cached.ListByDoctorDate(context.Background(), doctor, date)
	if second[0].Time != NewTimeOfDay(9, 0) {
		t.Errorf("cached entry was mutated through a returned pointer: %s", second[0].Time)
	}
}

func TestNewCachedStore_InvalidSize(t *testing.T) {
	if _, err := NewCachedStore(NewMemoryStore(), 0); err == nil {
		t.Error("expected error for zero cache size")
	}
}

// stallingStore parks the first list call after it has read its snapshot
// until release is closed.
type stallingStore struct {
	*MemoryStore
	calls   atomic.Int32
	loaded  chan struct{}
	release chan struct{}
}

func (s *stallingStore) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	items, err := s.MemoryStore.ListByDoctorDate(ctx, doctorID, date)
	if s.calls.Add(1) == 1 {
		close(s.loaded)
		<-s.release
	}
	return items, err
}

func TestCachedStore_SlowFillDoesNotOutliveBooking(t *testing.T) {
	inner := &stallingStore{MemoryStore: NewMemoryStore(), loaded: make(chan struct{}), release: make(chan struct{})}
	cached, err := NewCachedStore(inner, 16)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	e := NewEngine(cached, DefaultRules())
	doctor := uuid.New()
	date := mustDate(t, "2025-06-05")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = e.ComputeAvailableSlots(context.Background(), doctor, date, testNow)
	}()

	<-inner.loaded
	mustBook(t, e, candidate(t, doctor, "2025-06-05", "11:00"))
	close(inner.release)
	wg.Wait()

	slots, err := e.ComputeAvailableSlots(context.Background(), doctor, date, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range slots {
		if s == NewTimeOfDay(11, 0) {
			t.Fatalf("booked 11:00 still listed as free: %v", slots)
		}
	}
	if len(slots) != 16 {
		t.Errorf("expected 16 slots, got %d", len(slots))
	}
}

func TestCachedStore_FillLandsWithoutWrites(t *testing.T) {
	_, cached, inner := newCachedEngine(t)
	doctor := uuid.New()
	date := mustDate(t, "2025-06-05")

	_, _ = cached.ListByDoctorDate(context.Background(), doctor, date)
	_, _ = cached.ListByDoctorDate(context.Background(), doctor, date)
	if inner.lists != 1 || cached.Len() != 1 {
		t.Errorf("expected a single load to be cached, got %d loads and %d entries", inner.lists, cached.Len())
	}
}
