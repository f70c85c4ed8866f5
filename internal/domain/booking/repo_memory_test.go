package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_UniqueSlot(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	doctor := uuid.New()
	date := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)

	a := &Appointment{DoctorID: doctor, PatientID: uuid.New(), Date: date, Time: NewTimeOfDay(11, 0)}
	if err := m.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if a.ID == uuid.Nil || a.CreatedAt.IsZero() {
		t.Error("expected id and created_at to be assigned")
	}

	dup := &Appointment{DoctorID: doctor, PatientID: uuid.New(), Date: date.Add(9 * time.Hour), Time: NewTimeOfDay(11, 0)}
	if err := m.Insert(ctx, dup); !errors.Is(err, ErrDuplicateSlot) {
		t.Errorf("expected ErrDuplicateSlot, got %v", err)
	}

	found, err := m.FindByDoctorDateTime(ctx, doctor, date, NewTimeOfDay(11, 0))
	if err != nil || found.ID != a.ID {
		t.Errorf("expected to find %s, got %v (%v)", a.ID, found, err)
	}
	if _, err := m.FindByDoctorDateTime(ctx, doctor, date, NewTimeOfDay(11, 30)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	a := &Appointment{DoctorID: uuid.New(), PatientID: uuid.New(), Date: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC), Time: NewTimeOfDay(9, 0)}
	m.Insert(ctx, a)

	deleted, err := m.Delete(ctx, a.ID)
	if err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got %v (%v)", deleted, err)
	}
	deleted, _ = m.Delete(ctx, a.ID)
	if deleted {
		t.Error("second delete should report nothing removed")
	}
	if err := m.Insert(ctx, &Appointment{DoctorID: a.DoctorID, PatientID: uuid.New(), Date: a.Date, Time: a.Time}); err != nil {
		t.Errorf("expected slot to be reusable, got %v", err)
	}
}

func TestMemoryStore_WithTxDiscardsOnError(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(ctx context.Context, tx ReservationStore) error {
		p := &Patient{Name: "A", Age: 30, Gender: "male", Address: "x"}
		if err := tx.InsertPatient(ctx, p); err != nil {
			return err
		}
		a := &Appointment{DoctorID: uuid.New(), PatientID: p.ID, Date: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC), Time: NewTimeOfDay(9, 0)}
		if err := tx.Insert(ctx, a); err != nil {
			return err
		}
		if _, err := tx.GetByID(ctx, a.ID); err != nil {
			t.Errorf("staged appointment should be visible inside the transaction: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(m.patients) != 0 || len(m.appointments) != 0 {
		t.Error("failed transaction must not write")
	}
}

func TestMemoryStore_WithTxCommits(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	doctor := uuid.New()
	date := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)

	var id uuid.UUID
	err := m.WithTx(ctx, func(ctx context.Context, tx ReservationStore) error {
		a := &Appointment{DoctorID: doctor, PatientID: uuid.New(), Date: date, Time: NewTimeOfDay(9, 0)}
		if err := tx.Insert(ctx, a); err != nil {
			return err
		}
		id = a.ID
		dup := &Appointment{DoctorID: doctor, PatientID: uuid.New(), Date: date, Time: NewTimeOfDay(9, 0)}
		if err := tx.Insert(ctx, dup); !errors.Is(err, ErrDuplicateSlot) {
			t.Errorf("expected staged duplicate to be rejected, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, _ := m.ListByDoctorDate(ctx, doctor, date)
	if len(items) != 1 || items[0].ID != id {
		t.Errorf("expected committed appointment %s, got %v", id, items)
	}
}
