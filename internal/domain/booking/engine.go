package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Engine enforces the scheduling rules and answers availability queries.
// Every operation takes the current moment explicitly; the engine never
// reads the wall clock.
type Engine struct {
	store ReservationStore
	rules Rules
}

func NewEngine(store ReservationStore, rules Rules) *Engine {
	return &Engine{store: store, rules: rules}
}

// Rules returns the policy the engine enforces.
func (e *Engine) Rules() Rules { return e.rules }

// Validate checks candidate against every rule and reports all violations
// together as ValidationErrors. It returns a wrapped ErrStoreUnavailable if the
// conflict lookup fails. It performs no writes.
func (e *Engine) Validate(ctx context.Context, c AppointmentCandidate, now time.Time) error {
	errs, _, err := e.validate(ctx, c, now)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (e *Engine) validate(ctx context.Context, c AppointmentCandidate, now time.Time) (ValidationErrors, TimeOfDay, error) {
	errs := e.rules.checkDate(c.Date, now)

	t, parseErr := ParseTimeOfDay(c.Time)
	if parseErr != nil {
		errs = append(errs, ValidationError{
			Kind:    InvalidTimeFormat,
			Field:   "time",
			Message: "appointment time must look like 14:30 or 2:30 PM",
		})
	} else {
		errs = append(errs, e.rules.checkTime(c.Date, t, now)...)
	}

	errs = append(errs, checkPatient(c.DoctorID, c.Patient)...)

	if parseErr == nil && !c.Date.IsZero() && c.DoctorID != uuid.Nil {
		_, err := e.store.FindByDoctorDateTime(ctx, c.DoctorID, DateOf(c.Date), t)
		switch {
		case err == nil:
			errs = append(errs, slotTaken())
		case errors.Is(err, ErrNotFound):
		default:
			return nil, 0, storeError("find appointment", err)
		}
	}
	return errs, t, nil
}

func slotTaken() ValidationError {
	return ValidationError{
		Kind:    SlotAlreadyBooked,
		Field:   "time",
		Message: "the doctor already has an appointment at this time",
	}
}

// Book validates candidate and, if it passes, writes a new patient and the
// appointment in one transaction. A uniqueness conflict raised by the store
// (a concurrent booking won the slot) is reported as SlotAlreadyBooked.
func (e *Engine) Book(ctx context.Context, c AppointmentCandidate, now time.Time) (*Appointment, error) {
	errs, t, err := e.validate(ctx, c, now)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var appt *Appointment
	err = e.store.WithTx(ctx, func(ctx context.Context, tx ReservationStore) error {
		patient := &Patient{
			Name:    strings.TrimSpace(c.Patient.Name),
			Age:     c.Patient.Age,
			Gender:  strings.ToLower(strings.TrimSpace(c.Patient.Gender)),
			Address: strings.TrimSpace(c.Patient.Address),
			Phone:   normalizePhone(c.Patient.Phone),
		}
		if err := tx.InsertPatient(ctx, patient); err != nil {
			return err
		}
		a := &Appointment{
			DoctorID:  c.DoctorID,
			PatientID: patient.ID,
			Date:      DateOf(c.Date),
			Time:      t,
		}
		if err := tx.Insert(ctx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			return nil, ValidationErrors{slotTaken()}
		}
		return nil, storeError("book appointment", err)
	}
	return appt, nil
}

// Cancel removes an appointment that has not started yet and returns it.
// Unlike booking, no buffer applies: anything strictly in the future can be
// cancelled.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	appt, err := e.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("get appointment", err)
	}
	if e.rules.hasStarted(appt.Date, appt.Time, now) {
		return nil, ErrAlreadyPast
	}
	deleted, err := e.store.Delete(ctx, id)
	if err != nil {
		return nil, storeError("delete appointment", err)
	}
	if !deleted {
		// Removed by someone else between the read and the delete.
		return nil, ErrNotFound
	}
	return appt, nil
}

// QuerySlots returns every slot of the day in ascending order, each tagged
// with whether it can still be booked.
func (e *Engine) QuerySlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]SlotStatus, error) {
	day := DateOf(date)
	booked, err := e.store.ListByDoctorDate(ctx, doctorID, day)
	if err != nil {
		return nil, storeError("list appointments", err)
	}
	taken := make(map[TimeOfDay]bool, len(booked))
	for _, a := range booked {
		taken[a.Time] = true
	}

	candidates := e.rules.Slots()
	result := make([]SlotStatus, 0, len(candidates))
	for _, t := range candidates {
		s := SlotStatus{Time: t, Available: true}
		switch {
		case e.rules.tooSoon(day, t, now):
			s.Available, s.Reason = false, SlotReasonTooSoon
		case taken[t]:
			s.Available, s.Reason = false, SlotReasonBooked
		}
		result = append(result, s)
	}
	return result, nil
}

// ComputeAvailableSlots returns the bookable times for a doctor on date in
// ascending order.
func (e *Engine) ComputeAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]TimeOfDay, error) {
	statuses, err := e.QuerySlots(ctx, doctorID, date, now)
	if err != nil {
		return nil, err
	}
	free := make([]TimeOfDay, 0, len(statuses))
	for _, s := range statuses {
		if s.Available {
			free = append(free, s.Time)
		}
	}
	return free, nil
}

// GetAppointment is a plain read for the management views.
func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := e.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("get appointment", err)
	}
	return appt, nil
}

// ListAppointments returns a doctor's appointments on date ordered by time.
func (e *Engine) ListAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	items, err := e.store.ListByDoctorDate(ctx, doctorID, DateOf(date))
	if err != nil {
		return nil, storeError("list appointments", err)
	}
	return items, nil
}
