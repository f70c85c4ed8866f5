package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Duration returns the offset of t from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var timeOfDayLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "03:04 PM"}

// ParseTimeOfDay accepts the 24-hour and 12-hour forms a booking form submits.
// A seconds field is allowed only when it is zero.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time of day")
	}
	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			if t.Second() != 0 {
				return 0, fmt.Errorf("time of day must fall on a whole minute: %q", s)
			}
			return NewTimeOfDay(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day: %q", s)
}

// TimeOfDayOf returns the wall-clock part of t, truncated to the minute.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// DateOf strips the time-of-day from t, keeping the calendar date as seen in
// t's own location. The result is midnight UTC so dates compare with Equal.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sinceMidnight reads the wall clock of now as an offset from 00:00. Elapsed
// time is not used because it drifts by the shift on daylight-saving days.
func sinceMidnight(now time.Time) time.Duration {
	return time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second +
		time.Duration(now.Nanosecond())
}

// Patient maps to the patient table. A new row is written for every booking.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Age       int       `db:"age" json:"age"`
	Gender    string    `db:"gender" json:"gender"`
	Address   string    `db:"address" json:"address"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Date      time.Time `db:"appointment_date" json:"-"`
	Time      TimeOfDay `db:"appointment_time" json:"time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Start combines the appointment date and time in loc.
func (a *Appointment) Start(loc *time.Location) time.Time {
	y, m, d := a.Date.Date()
	return time.Date(y, m, d, a.Time.Hour(), a.Time.Minute(), 0, 0, loc)
}

func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(a), Date: a.Date.Format(DateLayout)})
}

// PatientInput carries the patient fields submitted with a booking.
type PatientInput struct {
	Name    string  `json:"name"`
	Age     int     `json:"age"`
	Gender  string  `json:"gender"`
	Address string  `json:"address"`
	Phone   *string `json:"phone,omitempty"`
}

// AppointmentCandidate is an unvalidated booking request. Time stays a raw
// string until Validate parses it.
type AppointmentCandidate struct {
	DoctorID uuid.UUID
	Date     time.Time
	Time     string
	Patient  PatientInput
}

// SlotStatus is one entry of a slot query: a candidate time tagged with
// whether it can still be booked.
type SlotStatus struct {
	Time      TimeOfDay `json:"time"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

const (
	SlotReasonBooked  = "booked"
	SlotReasonTooSoon = "too_soon"
)
