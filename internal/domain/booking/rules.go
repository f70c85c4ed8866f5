package booking

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Rules holds the clinic's scheduling policy.
type Rules struct {
	OpensAt       TimeOfDay
	ClosesAt      TimeOfDay
	SlotInterval  time.Duration
	BookingBuffer time.Duration
	ClosedDays    []time.Weekday
}

// DefaultRules is the clinic policy: 09:00 to 17:00 inclusive, half-hour slots,
// bookings at least 30 minutes ahead, closed Friday and Saturday.
func DefaultRules() Rules {
	return Rules{
		OpensAt:       NewTimeOfDay(9, 0),
		ClosesAt:      NewTimeOfDay(17, 0),
		SlotInterval:  30 * time.Minute,
		BookingBuffer: 30 * time.Minute,
		ClosedDays:    []time.Weekday{time.Friday, time.Saturday},
	}
}

func (r Rules) isClosed(day time.Weekday) bool {
	for _, d := range r.ClosedDays {
		if d == day {
			return true
		}
	}
	return false
}

func (r Rules) withinHours(t TimeOfDay) bool {
	return t >= r.OpensAt && t <= r.ClosesAt
}

// tooSoon applies the same-day buffer: on today's date a time must be
// strictly later than now plus the buffer.
func (r Rules) tooSoon(date time.Time, t TimeOfDay, now time.Time) bool {
	if !DateOf(date).Equal(DateOf(now)) {
		return false
	}
	return t.Duration() <= sinceMidnight(now)+r.BookingBuffer
}

// hasStarted reports whether an appointment at date/t is no longer strictly in
// the future. No buffer applies.
func (r Rules) hasStarted(date time.Time, t TimeOfDay, now time.Time) bool {
	day, today := DateOf(date), DateOf(now)
	if day.Before(today) {
		return true
	}
	return day.Equal(today) && t.Duration() <= sinceMidnight(now)
}

// Slots returns every slot boundary from opening to closing, both inclusive.
func (r Rules) Slots() []TimeOfDay {
	step := int(r.SlotInterval / time.Minute)
	if step <= 0 {
		step = 30
	}
	var slots []TimeOfDay
	for t := r.OpensAt; t <= r.ClosesAt; t += TimeOfDay(step) {
		slots = append(slots, t)
	}
	return slots
}

var validGenders = map[string]bool{"male": true, "female": true, "other": true}

// Lengths count characters, matching the VARCHAR limits of the patient table.
const (
	maxNameLength    = 100
	maxAddressLength = 250
	maxPhoneLength   = 20
	minPatientAge    = 1
	maxPatientAge    = 120
)

// checkDate evaluates the calendar rules that do not need a parsed time.
func (r Rules) checkDate(date, now time.Time) ValidationErrors {
	var errs ValidationErrors
	if date.IsZero() {
		return append(errs, ValidationError{Kind: FieldRequired, Field: "date", Message: "appointment date is required"})
	}
	if r.isClosed(date.Weekday()) {
		errs = append(errs, ValidationError{
			Kind:    ClosedDay,
			Field:   "date",
			Message: fmt.Sprintf("the clinic is closed on %s", date.Weekday()),
		})
	}
	if DateOf(date).Before(DateOf(now)) {
		errs = append(errs, ValidationError{Kind: DateInPast, Field: "date", Message: "appointment date cannot be in the past"})
	}
	return errs
}

// checkTime evaluates the time-of-day rules against an already parsed time.
func (r Rules) checkTime(date time.Time, t TimeOfDay, now time.Time) ValidationErrors {
	var errs ValidationErrors
	if !r.withinHours(t) {
		errs = append(errs, ValidationError{
			Kind:    OutsideBusinessHours,
			Field:   "time",
			Message: fmt.Sprintf("appointments must be between %s and %s", r.OpensAt, r.ClosesAt),
		})
	}
	if !date.IsZero() && r.tooSoon(date, t, now) {
		errs = append(errs, ValidationError{
			Kind:    TooSoon,
			Field:   "time",
			Message: fmt.Sprintf("same-day appointments must be more than %d minutes from now", int(r.BookingBuffer/time.Minute)),
		})
	}
	return errs
}

func checkPatient(doctorID uuid.UUID, p PatientInput) ValidationErrors {
	var errs ValidationErrors
	if doctorID == uuid.Nil {
		errs = append(errs, ValidationError{Kind: FieldRequired, Field: "doctor_id", Message: "doctor is required"})
	}

	name := strings.TrimSpace(p.Name)
	switch {
	case name == "":
		errs = append(errs, ValidationError{Kind: FieldRequired, Field: "patient.name", Message: "patient name is required"})
	case utf8.RuneCountInString(name) > maxNameLength:
		errs = append(errs, ValidationError{Kind: FieldInvalid, Field: "patient.name", Message: fmt.Sprintf("patient name must be at most %d characters", maxNameLength)})
	}

	if p.Age < minPatientAge || p.Age > maxPatientAge {
		errs = append(errs, ValidationError{Kind: FieldInvalid, Field: "patient.age", Message: fmt.Sprintf("patient age must be between %d and %d", minPatientAge, maxPatientAge)})
	}

	gender := strings.ToLower(strings.TrimSpace(p.Gender))
	switch {
	case gender == "":
		errs = append(errs, ValidationError{Kind: FieldRequired, Field: "patient.gender", Message: "patient gender is required"})
	case !validGenders[gender]:
		errs = append(errs, ValidationError{Kind: FieldInvalid, Field: "patient.gender", Message: fmt.Sprintf("invalid gender: %s", p.Gender)})
	}

	address := strings.TrimSpace(p.Address)
	switch {
	case address == "":
		errs = append(errs, ValidationError{Kind: FieldRequired, Field: "patient.address", Message: "patient address is required"})
	case utf8.RuneCountInString(address) > maxAddressLength:
		errs = append(errs, ValidationError{Kind: FieldInvalid, Field: "patient.address", Message: fmt.Sprintf("patient address must be at most %d characters", maxAddressLength)})
	}

	if phone := normalizePhone(p.Phone); phone != nil && utf8.RuneCountInString(*phone) > maxPhoneLength {
		errs = append(errs, ValidationError{Kind: FieldInvalid, Field: "patient.phone", Message: fmt.Sprintf("patient phone must be at most %d characters", maxPhoneLength)})
	}
	return errs
}

// normalizePhone trims the optional phone and treats a blank one as absent.
func normalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	s := strings.TrimSpace(*phone)
	if s == "" {
		return nil
	}
	return &s
}
