package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"clinica/backend/internal/domain"
	"clinica/backend/internal/service/scheduling"
	"clinica/backend/internal/store"
)

type schedulingService interface {
	Book(ctx context.Context, in scheduling.BookingInput) (scheduling.BookingResult, error)
	Reschedule(ctx context.Context, appointmentID uuid.UUID, startsAt time.Time, note string) (scheduling.BookingResult, error)
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus, note string) (domain.Appointment, error)
	Delete(ctx context.Context, appointmentID uuid.UUID) error
	BookSeries(ctx context.Context, in scheduling.SeriesInput) ([]scheduling.OccurrenceOutcome, error)
	ListDay(ctx context.Context, date time.Time) ([]domain.Appointment, error)
	DaySlots(ctx context.Context, professionalID, serviceID uuid.UUID, date time.Time) ([]domain.Slot, error)
	Availabilities(ctx context.Context) ([]domain.AvailabilityWindow, error)
	Services(ctx context.Context) ([]domain.Service, error)
}

type SchedulingHandler struct {
	svc schedulingService
	log *slog.Logger
	loc *time.Location
}

func NewSchedulingHandler(svc schedulingService, log *slog.Logger, loc *time.Location) *SchedulingHandler {
	if loc == nil {
		loc = time.Local
	}
	return &SchedulingHandler{svc: svc, log: log, loc: loc}
}

// Register mounts the booking API on the group. manage guards every mutating
// route; reads only need the group's own middleware.
func (h *SchedulingHandler) Register(api *echo.Group, manage echo.MiddlewareFunc) {
	api.GET("/professional-availabilities", h.listAvailabilities)
	api.GET("/services", h.listServices)
	api.GET("/appointments", h.listAppointments)
	api.GET("/slots", h.listSlots)

	api.POST("/appointments", h.createAppointment, manage)
	api.POST("/appointment-series", h.createSeries, manage)
	api.PATCH("/appointments/:id/status", h.updateStatus, manage)
	api.PATCH("/appointments/:id/reschedule", h.reschedule, manage)
	api.DELETE("/appointments/:id", h.deleteAppointment, manage)
}

type availabilityJSON struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Weekday        int       `json:"weekday"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
}

type serviceJSON struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Capacity        int       `json:"capacity"`
	PriceCents      int64     `json:"price_cents"`
}

type personJSON struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type appointmentJSON struct {
	ID             uuid.UUID    `json:"id"`
	ProfessionalID uuid.UUID    `json:"professional_id"`
	PatientID      uuid.UUID    `json:"patient_id"`
	ServiceID      uuid.UUID    `json:"service_id"`
	StartsAt       string       `json:"starts_at"`
	EndsAt         string       `json:"ends_at"`
	Status         string       `json:"status"`
	StatusNote     string       `json:"status_note,omitempty"`
	Patient        *personJSON  `json:"patient,omitempty"`
	Professional   *personJSON  `json:"professional,omitempty"`
	Service        *serviceJSON `json:"service,omitempty"`
}

type suggestionJSON struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

type bookingResponseJSON struct {
	Appointment appointmentJSON  `json:"appointment"`
	Warning     string           `json:"warning,omitempty"`
	Suggestions []suggestionJSON `json:"suggestions,omitempty"`
}

type slotJSON struct {
	StartsAt  string            `json:"starts_at"`
	EndsAt    string            `json:"ends_at"`
	Available bool              `json:"available"`
	Occupying []appointmentJSON `json:"occupying"`
}

func toAppointmentJSON(a domain.Appointment) appointmentJSON {
	out := appointmentJSON{
		ID:             a.ID,
		ProfessionalID: a.ProfessionalID,
		PatientID:      a.PatientID,
		ServiceID:      a.ServiceID,
		StartsAt:       domain.FormatWireDateTime(a.StartsAt),
		EndsAt:         domain.FormatWireDateTime(a.EndsAt),
		Status:         string(a.Status),
		StatusNote:     a.StatusNote,
	}
	if a.Patient != nil {
		out.Patient = &personJSON{ID: a.Patient.ID, Name: a.Patient.Name}
	}
	if a.Professional != nil {
		out.Professional = &personJSON{ID: a.Professional.ID, Name: a.Professional.Name}
	}
	if a.Service != nil {
		s := toServiceJSON(*a.Service)
		out.Service = &s
	}
	return out
}

func toServiceJSON(s domain.Service) serviceJSON {
	return serviceJSON{
		ID:              s.ID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		Capacity:        s.EffectiveCapacity(),
		PriceCents:      s.PriceCents,
	}
}

func toSuggestionsJSON(suggestions []scheduling.Suggestion) []suggestionJSON {
	if len(suggestions) == 0 {
		return nil
	}
	out := make([]suggestionJSON, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, suggestionJSON{
			StartsAt: domain.FormatWireDateTime(s.StartsAt),
			EndsAt:   domain.FormatWireDateTime(s.EndsAt),
		})
	}
	return out
}

func toBookingResponseJSON(res scheduling.BookingResult) bookingResponseJSON {
	return bookingResponseJSON{
		Appointment: toAppointmentJSON(res.Appointment),
		Warning:     res.Warning,
		Suggestions: toSuggestionsJSON(res.Suggestions),
	}
}

func (h *SchedulingHandler) listAvailabilities(c echo.Context) error {
	windows, err := h.svc.Availabilities(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]availabilityJSON, 0, len(windows))
	for _, w := range windows {
		out = append(out, availabilityJSON{
			ID:             w.ID,
			ProfessionalID: w.ProfessionalID,
			Weekday:        w.Weekday,
			StartTime:      w.StartTime,
			EndTime:        w.EndTime,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

func (h *SchedulingHandler) listServices(c echo.Context) error {
	services, err := h.svc.Services(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]serviceJSON, 0, len(services))
	for _, s := range services {
		out = append(out, toServiceJSON(s))
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

func (h *SchedulingHandler) listAppointments(c echo.Context) error {
	date, err := domain.ParseWireDate(c.QueryParam("date"), h.loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if view := c.QueryParam("view"); view != "" && view != "day" {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported view")
	}

	appts, err := h.svc.ListDay(c.Request().Context(), date)
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]appointmentJSON, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentJSON(a))
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

func (h *SchedulingHandler) listSlots(c echo.Context) error {
	professionalID, err := uuid.Parse(c.QueryParam("professional_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid professional_id")
	}
	serviceID, err := uuid.Parse(c.QueryParam("service_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid service_id")
	}
	date, err := domain.ParseWireDate(c.QueryParam("date"), h.loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	slots, err := h.svc.DaySlots(c.Request().Context(), professionalID, serviceID, date)
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]slotJSON, 0, len(slots))
	for _, slot := range slots {
		occ := make([]appointmentJSON, 0, len(slot.Occupying))
		for _, a := range slot.Occupying {
			occ = append(occ, toAppointmentJSON(a))
		}
		out = append(out, slotJSON{
			StartsAt:  domain.FormatWireDateTime(slot.Start),
			EndsAt:    domain.FormatWireDateTime(slot.End),
			Available: slot.Available,
			Occupying: occ,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

type bookingRequest struct {
	PatientID      uuid.UUID   `json:"patient_id"`
	ProfessionalID uuid.UUID   `json:"professional_id"`
	ServiceID      uuid.UUID   `json:"service_id"`
	ServiceIDs     []uuid.UUID `json:"service_ids"`
	StartsAt       string      `json:"starts_at"`
	PaymentMode    string      `json:"payment_mode"`
	PaymentDueDate string      `json:"payment_due_date"`
}

// serviceIDList merges the single service_id with the optional service_ids
// list, first entry primary.
func (r bookingRequest) serviceIDList() []uuid.UUID {
	return mergeServiceIDs(r.ServiceID, r.ServiceIDs)
}

func mergeServiceIDs(primary uuid.UUID, rest []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rest)+1)
	if primary != uuid.Nil {
		out = append(out, primary)
	}
	for _, sid := range rest {
		if sid == primary {
			continue
		}
		out = append(out, sid)
	}
	return out
}

func (h *SchedulingHandler) createAppointment(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	startsAt, err := domain.ParseWireDateTime(req.StartsAt, h.loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var dueDate *time.Time
	if req.PaymentDueDate != "" {
		d, err := domain.ParseWireDate(req.PaymentDueDate, h.loc)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		dueDate = &d
	}

	res, err := h.svc.Book(c.Request().Context(), scheduling.BookingInput{
		PatientID:      req.PatientID,
		ProfessionalID: req.ProfessionalID,
		ServiceIDs:     req.serviceIDList(),
		StartsAt:       startsAt,
		PaymentMode:    domain.PaymentMode(req.PaymentMode),
		PaymentDueDate: dueDate,
	})
	bookingsTotal.WithLabelValues(bookingOutcome(res.Warning, err)).Inc()
	if err != nil {
		return h.writeError(c, err)
	}

	h.log.Info("appointment booked",
		"appointment_id", res.Appointment.ID,
		"professional_id", res.Appointment.ProfessionalID,
		"starts_at", req.StartsAt,
		"warning", res.Warning,
	)
	return c.JSON(http.StatusCreated, toBookingResponseJSON(res))
}

type seriesRequest struct {
	PatientID      uuid.UUID   `json:"patient_id"`
	ProfessionalID uuid.UUID   `json:"professional_id"`
	ServiceID      uuid.UUID   `json:"service_id"`
	ServiceIDs     []uuid.UUID `json:"service_ids"`
	StartsAt       string      `json:"starts_at"`
	Frequency      string      `json:"frequency"`
	DaysOfWeek     []int       `json:"days_of_week"`
	DayOfMonth     int         `json:"day_of_month"`
	TotalSessions  int         `json:"total_sessions"`
}

func (r seriesRequest) serviceIDList() []uuid.UUID {
	return mergeServiceIDs(r.ServiceID, r.ServiceIDs)
}

type occurrenceJSON struct {
	Index       int              `json:"index"`
	StartsAt    string           `json:"starts_at"`
	Appointment *appointmentJSON `json:"appointment,omitempty"`
	Warning     string           `json:"warning,omitempty"`
	Suggestions []suggestionJSON `json:"suggestions,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func (h *SchedulingHandler) createSeries(c echo.Context) error {
	var req seriesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	startsAt, err := domain.ParseWireDateTime(req.StartsAt, h.loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcomes, err := h.svc.BookSeries(c.Request().Context(), scheduling.SeriesInput{
		PatientID:      req.PatientID,
		ProfessionalID: req.ProfessionalID,
		ServiceIDs:     req.serviceIDList(),
		StartsAt:       startsAt,
		Rule: domain.SeriesRule{
			Frequency:     domain.RecurrenceFrequency(req.Frequency),
			DaysOfWeek:    req.DaysOfWeek,
			DayOfMonth:    req.DayOfMonth,
			TotalSessions: req.TotalSessions,
		},
	})
	if err != nil {
		return h.writeError(c, err)
	}

	out := make([]occurrenceJSON, 0, len(outcomes))
	booked := 0
	for _, o := range outcomes {
		oj := occurrenceJSON{
			Index:       o.Index,
			StartsAt:    domain.FormatWireDateTime(o.StartsAt),
			Warning:     o.Warning,
			Suggestions: toSuggestionsJSON(o.Suggestions),
			Error:       o.Err,
		}
		if o.Appointment != nil {
			aj := toAppointmentJSON(*o.Appointment)
			oj.Appointment = &aj
			booked++
		}
		var occErr error
		if o.Err != "" {
			occErr = errors.New(o.Err)
		}
		seriesOccurrencesTotal.WithLabelValues(bookingOutcome(o.Warning, occErr)).Inc()
		out = append(out, oj)
	}

	h.log.Info("series booked",
		"professional_id", req.ProfessionalID,
		"occurrences", len(outcomes),
		"booked", booked,
	)
	return c.JSON(http.StatusCreated, map[string]any{"occurrences": out})
}

type statusRequest struct {
	Status     string `json:"status"`
	StatusNote string `json:"status_note"`
}

func (h *SchedulingHandler) updateStatus(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	appt, err := h.svc.UpdateStatus(c.Request().Context(), appointmentID, domain.AppointmentStatus(req.Status), req.StatusNote)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"appointment": toAppointmentJSON(appt)})
}

type rescheduleRequest struct {
	StartsAt   string `json:"starts_at"`
	StatusNote string `json:"status_note"`
}

func (h *SchedulingHandler) reschedule(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	startsAt, err := domain.ParseWireDateTime(req.StartsAt, h.loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.Reschedule(c.Request().Context(), appointmentID, startsAt, req.StatusNote)
	bookingsTotal.WithLabelValues(bookingOutcome(res.Warning, err)).Inc()
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResponseJSON(res))
}

func (h *SchedulingHandler) deleteAppointment(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	if err := h.svc.Delete(c.Request().Context(), appointmentID); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SchedulingHandler) writeError(c echo.Context, err error) error {
	var vErr *scheduling.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.Is(err, domain.ErrInvalidRecurrenceRule):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, scheduling.ErrOutsideAvailability):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		h.log.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
