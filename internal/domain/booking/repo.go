package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReservationStore persists patients and appointments. Dates passed in are
// calendar dates (see DateOf); implementations compare them by day.
type ReservationStore interface {
	// FindByDoctorDateTime returns ErrNotFound when the slot is free.
	FindByDoctorDateTime(ctx context.Context, doctorID uuid.UUID, date time.Time, t TimeOfDay) (*Appointment, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error)
	// GetByID returns ErrNotFound when the appointment does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Insert assigns the ID and returns ErrDuplicateSlot when the
	// doctor/date/time triple is taken.
	Insert(ctx context.Context, a *Appointment) error
	InsertPatient(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// WithTx runs fn against a transactional view of the store. Writes made
	// through that view are committed only if fn returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx ReservationStore) error) error
}
