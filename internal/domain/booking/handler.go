package booking

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/auth"
	"github.com/clinic/booking/internal/platform/events"
	"github.com/clinic/booking/pkg/pagination"
)

type Handler struct {
	engine    *Engine
	clock     Clock
	publisher events.Publisher
	logger    zerolog.Logger
}

func NewHandler(engine *Engine, clock Clock, publisher events.Publisher, logger zerolog.Logger) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Handler{engine: engine, clock: clock, publisher: publisher, logger: logger}
}

// RegisterRoutes mounts the booking API on api. public wraps only the
// unauthenticated booking form endpoints (the server passes its rate limiter).
func (h *Handler) RegisterRoutes(api *echo.Group, public ...echo.MiddlewareFunc) {
	form := api.Group("", public...)
	form.GET("/doctors/:doctor_id/slots", h.QuerySlots)
	form.GET("/doctors/:doctor_id/available-slots", h.AvailableSlots)
	form.POST("/appointments/validate", h.ValidateAppointment)
	form.POST("/appointments", h.BookAppointment)

	// Management endpoints, staff only
	staff := api.Group("", auth.RequireRole("admin", "receptionist", "physician"))
	staff.GET("/appointments", h.ListAppointments)
	staff.GET("/appointments/:id", h.GetAppointment)
	staff.DELETE("/appointments/:id", h.CancelAppointment)
}

// bookingRequest is the JSON body of the booking form.
type bookingRequest struct {
	DoctorID string       `json:"doctor_id"`
	Date     string       `json:"date"`
	Time     string       `json:"time"`
	Patient  PatientInput `json:"patient"`
}

// candidate converts the request, returning field errors for values that
// could not be decoded at all.
func (r bookingRequest) candidate() (AppointmentCandidate, ValidationErrors) {
	var errs ValidationErrors
	c := AppointmentCandidate{Time: r.Time, Patient: r.Patient}

	if s := strings.TrimSpace(r.DoctorID); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			errs = append(errs, ValidationError{Kind: FieldInvalid, Field: "doctor_id", Message: "invalid doctor id"})
		}
		c.DoctorID = id
	}
	if s := strings.TrimSpace(r.Date); s != "" {
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			errs = append(errs, ValidationError{Kind: FieldInvalid, Field: "date", Message: "date must be formatted as YYYY-MM-DD"})
		}
		c.Date = d
	}
	return c, errs
}

type slotsResponse struct {
	DoctorID uuid.UUID    `json:"doctor_id"`
	Date     string       `json:"date"`
	Slots    []SlotStatus `json:"slots"`
}

type availableSlotsResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	Date     string      `json:"date"`
	Slots    []TimeOfDay `json:"slots"`
}

type validationResponse struct {
	Valid  bool             `json:"valid"`
	Errors ValidationErrors `json:"errors,omitempty"`
}

func (h *Handler) slotParams(c echo.Context) (uuid.UUID, time.Time, error) {
	doctorID, err := uuid.Parse(c.Param("doctor_id"))
	if err != nil {
		return uuid.Nil, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	dateStr := c.QueryParam("date")
	if dateStr == "" {
		return uuid.Nil, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required")
	}
	date, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return uuid.Nil, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
	}
	return doctorID, date, nil
}

// QuerySlots handles GET /doctors/:doctor_id/slots.
func (h *Handler) QuerySlots(c echo.Context) error {
	doctorID, date, err := h.slotParams(c)
	if err != nil {
		return err
	}
	slots, err := h.engine.QuerySlots(c.Request().Context(), doctorID, date, h.clock.Now())
	if err != nil {
		return storeHTTPError(err)
	}
	return c.JSON(http.StatusOK, slotsResponse{DoctorID: doctorID, Date: date.Format(DateLayout), Slots: slots})
}

// AvailableSlots handles GET /doctors/:doctor_id/available-slots.
func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, date, err := h.slotParams(c)
	if err != nil {
		return err
	}
	slots, err := h.engine.ComputeAvailableSlots(c.Request().Context(), doctorID, date, h.clock.Now())
	if err != nil {
		return storeHTTPError(err)
	}
	return c.JSON(http.StatusOK, availableSlotsResponse{DoctorID: doctorID, Date: date.Format(DateLayout), Slots: slots})
}

// ValidateAppointment handles POST /appointments/validate.
func (h *Handler) ValidateAppointment(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cand, decodeErrs := req.candidate()
	errs, err := h.collect(c.Request().Context(), cand, decodeErrs)
	if err != nil {
		return storeHTTPError(err)
	}
	if len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, validationResponse{Valid: false, Errors: errs})
	}
	return c.JSON(http.StatusOK, validationResponse{Valid: true})
}

// collect runs the engine rules and prepends the decoding errors.
func (h *Handler) collect(ctx context.Context, cand AppointmentCandidate, decodeErrs ValidationErrors) (ValidationErrors, error) {
	err := h.engine.Validate(ctx, cand, h.clock.Now())
	if err == nil {
		return decodeErrs, nil
	}
	ruleErrs, ok := AsValidationErrors(err)
	if !ok {
		return nil, err
	}
	reported := make(map[string]bool, len(decodeErrs))
	for _, e := range decodeErrs {
		reported[e.Field] = true
	}
	errs := append(ValidationErrors{}, decodeErrs...)
	for _, e := range ruleErrs {
		// An undecodable value reaches the engine as empty; don't also call it missing.
		if e.Kind == FieldRequired && reported[e.Field] {
			continue
		}
		errs = append(errs, e)
	}
	return errs, nil
}

// BookAppointment handles POST /appointments.
func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	cand, decodeErrs := req.candidate()
	if len(decodeErrs) > 0 {
		errs, err := h.collect(ctx, cand, decodeErrs)
		if err != nil {
			return storeHTTPError(err)
		}
		return c.JSON(http.StatusUnprocessableEntity, validationResponse{Valid: false, Errors: errs})
	}

	appt, err := h.engine.Book(ctx, cand, h.clock.Now())
	if err != nil {
		if errs, ok := AsValidationErrors(err); ok {
			return c.JSON(http.StatusUnprocessableEntity, validationResponse{Valid: false, Errors: errs})
		}
		return storeHTTPError(err)
	}

	h.publish(ctx, events.AppointmentBooked, appt)
	return c.JSON(http.StatusCreated, appt)
}

// GetAppointment handles GET /appointments/:id.
func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.engine.GetAppointment(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return storeHTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// ListAppointments handles GET /appointments?doctor_id=&date=.
func (h *Handler) ListAppointments(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	date, err := time.Parse(DateLayout, c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
	}
	pg := pagination.FromContext(c)
	items, err := h.engine.ListAppointments(c.Request().Context(), doctorID, date)
	if err != nil {
		return storeHTTPError(err)
	}
	page := pagination.Slice(items, pg)
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg.Limit, pg.Offset))
}

// CancelAppointment handles DELETE /appointments/:id.
func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	appt, err := h.engine.Cancel(ctx, id, h.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrAlreadyPast):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return storeHTTPError(err)
	}
	h.publish(ctx, events.AppointmentCancelled, appt)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) publish(ctx context.Context, eventType string, appt *Appointment) {
	evt := events.Event{
		Type:          eventType,
		AppointmentID: appt.ID.String(),
		DoctorID:      appt.DoctorID.String(),
		PatientID:     appt.PatientID.String(),
		Date:          appt.Date.Format(DateLayout),
		Time:          appt.Time.String(),
		OccurredAt:    h.clock.Now().UTC(),
	}
	if err := h.publisher.Publish(ctx, evt); err != nil {
		h.logger.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", evt.AppointmentID).
			Msg("failed to publish booking event")
	}
}

func storeHTTPError(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reservation store unavailable").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
