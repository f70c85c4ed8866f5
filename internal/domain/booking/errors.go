package booking

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	ClosedDay            ErrorKind = "ClosedDay"
	DateInPast           ErrorKind = "DateInPast"
	InvalidTimeFormat    ErrorKind = "InvalidTimeFormat"
	OutsideBusinessHours ErrorKind = "OutsideBusinessHours"
	TooSoon              ErrorKind = "TooSoon"
	SlotAlreadyBooked    ErrorKind = "SlotAlreadyBooked"
	FieldRequired        ErrorKind = "FieldRequired"
	FieldInvalid         ErrorKind = "FieldInvalid"
)

// ValidationError is a single violated rule, addressed to the form field the
// caller should highlight.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is every rule a candidate violated, in evaluation order.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether a rule of the given kind was violated.
func (v ValidationErrors) Has(kind ErrorKind) bool {
	for _, e := range v {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Kinds lists the violated rule kinds in order.
func (v ValidationErrors) Kinds() []ErrorKind {
	kinds := make([]ErrorKind, len(v))
	for i, e := range v {
		kinds[i] = e.Kind
	}
	return kinds
}

// AsValidationErrors unwraps err into its rule list, if it carries one.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

var (
	// ErrNotFound is returned when an appointment does not exist.
	ErrNotFound = errors.New("appointment not found")
	// ErrAlreadyPast is returned when cancelling an appointment whose start has passed.
	ErrAlreadyPast = errors.New("appointment is already in the past")
	// ErrStoreUnavailable wraps every failure of the reservation store.
	ErrStoreUnavailable = errors.New("reservation store unavailable")
	// ErrDuplicateSlot is returned by stores when the doctor/date/time uniqueness
	// constraint rejects an insert.
	ErrDuplicateSlot = errors.New("doctor already has an appointment at this time")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
