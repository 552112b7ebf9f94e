package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"clinica/backend/internal/domain"
	"clinica/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ErrOutsideAvailability marks a requested time that does not fit inside any
// availability window of the professional on that weekday.
var ErrOutsideAvailability = errors.New("requested time is outside professional availability")

// WarningCapacityFull flags a booking that was created anyway after the slot
// reached capacity. Overflow is allowed by policy; the front desk decides
// whether to keep it or move the patient to a suggested slot.
const WarningCapacityFull = "capacity_full"

const defaultSuggestionLimit = 3

type Service struct {
	repo            store.SchedulingRepository
	loc             *time.Location
	suggestionLimit int
}

// NewService wires the booking engine. loc is the tenant's wall-clock
// location; suggestionLimit caps alternative slots per warning and falls back
// to 3 when not positive.
func NewService(repo store.SchedulingRepository, loc *time.Location, suggestionLimit int) *Service {
	if loc == nil {
		loc = time.Local
	}
	if suggestionLimit <= 0 {
		suggestionLimit = defaultSuggestionLimit
	}
	return &Service{repo: repo, loc: loc, suggestionLimit: suggestionLimit}
}

type BookingInput struct {
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	ServiceIDs     []uuid.UUID // first entry defines duration and capacity
	StartsAt       time.Time
	PaymentMode    domain.PaymentMode
	PaymentDueDate *time.Time
}

type Suggestion struct {
	StartsAt time.Time
	EndsAt   time.Time
}

type BookingResult struct {
	Appointment domain.Appointment
	Warning     string
	Suggestions []Suggestion
}

func (s *Service) Book(ctx context.Context, in BookingInput) (BookingResult, error) {
	if in.PatientID == uuid.Nil {
		return BookingResult{}, validationError("patient_id is required")
	}
	if in.ProfessionalID == uuid.Nil {
		return BookingResult{}, validationError("professional_id is required")
	}
	if len(in.ServiceIDs) == 0 {
		return BookingResult{}, validationError("service_id is required")
	}
	if in.StartsAt.IsZero() {
		return BookingResult{}, validationError("starts_at is required")
	}

	svc, err := s.lookupService(ctx, in.ServiceIDs[0])
	if err != nil {
		return BookingResult{}, err
	}
	extra := in.ServiceIDs[1:]
	for _, sid := range extra {
		if _, err := s.lookupService(ctx, sid); err != nil {
			return BookingResult{}, err
		}
	}

	payment, err := s.buildPayment(svc, in.PaymentMode, in.PaymentDueDate)
	if err != nil {
		return BookingResult{}, err
	}

	return s.book(ctx, in.PatientID, in.ProfessionalID, svc, extra, in.StartsAt, payment)
}

func (s *Service) book(ctx context.Context, patientID, professionalID uuid.UUID, svc domain.Service, extraServiceIDs []uuid.UUID, startsAt time.Time, payment *domain.Payment) (BookingResult, error) {
	p, err := s.plan(ctx, professionalID, svc, startsAt, uuid.Nil)
	if err != nil {
		return BookingResult{}, err
	}

	appt := domain.Appointment{
		ProfessionalID: professionalID,
		PatientID:      patientID,
		ServiceID:      svc.ID,
		StartsAt:       startsAt,
		EndsAt:         startsAt.Add(svc.Duration()),
		Status:         domain.AppointmentStatusScheduled,
	}
	created, err := s.repo.CreateAppointment(ctx, appt, extraServiceIDs, payment)
	if err != nil {
		return BookingResult{}, err
	}

	return BookingResult{Appointment: created, Warning: p.warning, Suggestions: p.suggestions}, nil
}

// Reschedule moves an existing appointment to a new start. The appointment's
// own occupancy never blocks its new time.
func (s *Service) Reschedule(ctx context.Context, appointmentID uuid.UUID, startsAt time.Time, note string) (BookingResult, error) {
	if appointmentID == uuid.Nil {
		return BookingResult{}, validationError("appointment_id is required")
	}
	if startsAt.IsZero() {
		return BookingResult{}, validationError("starts_at is required")
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return BookingResult{}, err
	}
	svc, err := s.lookupService(ctx, appt.ServiceID)
	if err != nil {
		return BookingResult{}, err
	}

	p, err := s.plan(ctx, appt.ProfessionalID, svc, startsAt, appt.ID)
	if err != nil {
		return BookingResult{}, err
	}

	appt.StartsAt = startsAt
	appt.EndsAt = startsAt.Add(svc.Duration())
	appt.Status = domain.AppointmentStatusRescheduled
	if note != "" {
		appt.StatusNote = note
	}

	updated, err := s.repo.UpdateAppointment(ctx, appt)
	if err != nil {
		return BookingResult{}, err
	}
	return BookingResult{Appointment: updated, Warning: p.warning, Suggestions: p.suggestions}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus, note string) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if !status.Valid() {
		return domain.Appointment{}, validationError(fmt.Sprintf("invalid status %q", status))
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	appt.Status = status
	if note != "" {
		appt.StatusNote = note
	}
	return s.repo.UpdateAppointment(ctx, appt)
}

func (s *Service) Delete(ctx context.Context, appointmentID uuid.UUID) error {
	if appointmentID == uuid.Nil {
		return validationError("appointment_id is required")
	}
	return s.repo.DeleteAppointment(ctx, appointmentID)
}

type SeriesInput struct {
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	ServiceIDs     []uuid.UUID // first entry defines duration and capacity
	StartsAt       time.Time   // anchor; every occurrence keeps its time of day
	Rule           domain.SeriesRule
}

// OccurrenceOutcome reports one occurrence of a series booking. A failed
// occurrence carries Err and a nil Appointment; the rest of the series still
// proceeds.
type OccurrenceOutcome struct {
	Index       int
	StartsAt    time.Time
	Appointment *domain.Appointment
	Warning     string
	Suggestions []Suggestion
	Err         string
}

func (s *Service) BookSeries(ctx context.Context, in SeriesInput) ([]OccurrenceOutcome, error) {
	if in.PatientID == uuid.Nil {
		return nil, validationError("patient_id is required")
	}
	if in.ProfessionalID == uuid.Nil {
		return nil, validationError("professional_id is required")
	}
	if len(in.ServiceIDs) == 0 {
		return nil, validationError("service_id is required")
	}
	if in.StartsAt.IsZero() {
		return nil, validationError("starts_at is required")
	}

	occurrences, err := domain.ExpandOccurrences(in.Rule, in.StartsAt)
	if err != nil {
		return nil, err
	}

	svc, err := s.lookupService(ctx, in.ServiceIDs[0])
	if err != nil {
		return nil, err
	}
	extra := in.ServiceIDs[1:]
	for _, sid := range extra {
		if _, err := s.lookupService(ctx, sid); err != nil {
			return nil, err
		}
	}

	out := make([]OccurrenceOutcome, 0, len(occurrences))
	for i, occ := range occurrences {
		outcome := OccurrenceOutcome{Index: i, StartsAt: occ}
		res, err := s.book(ctx, in.PatientID, in.ProfessionalID, svc, extra, occ, nil)
		if err != nil {
			outcome.Err = err.Error()
		} else {
			appt := res.Appointment
			outcome.Appointment = &appt
			outcome.Warning = res.Warning
			outcome.Suggestions = res.Suggestions
		}
		out = append(out, outcome)
	}
	return out, nil
}

// ListDay returns every appointment touching the given calendar day, all
// professionals included, ordered by start.
func (s *Service) ListDay(ctx context.Context, date time.Time) ([]domain.Appointment, error) {
	dayStart, dayEnd := domain.DayBounds(date.In(s.loc))
	return s.repo.ListAppointments(ctx, dayStart, dayEnd)
}

// DaySlots computes the slot grid of one professional for one service on one
// date, occupancy included.
func (s *Service) DaySlots(ctx context.Context, professionalID, serviceID uuid.UUID, date time.Time) ([]domain.Slot, error) {
	if professionalID == uuid.Nil {
		return nil, validationError("professional_id is required")
	}
	svc, err := s.lookupService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	day := date.In(s.loc)
	windows, err := s.repo.ListProfessionalAvailability(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd := domain.DayBounds(day)
	appts, err := s.repo.ListProfessionalAppointments(ctx, professionalID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return domain.ComputeSlots(professionalID, day, svc, windows, appts, uuid.Nil)
}

func (s *Service) Availabilities(ctx context.Context) ([]domain.AvailabilityWindow, error) {
	return s.repo.ListAvailability(ctx)
}

func (s *Service) Services(ctx context.Context) ([]domain.Service, error) {
	return s.repo.ListServices(ctx)
}

// planResult carries what the validator learned about the requested time
// before the write happens.
type planResult struct {
	warning     string
	suggestions []Suggestion
}

// plan validates a requested start against availability and occupancy.
// Occupancy overflow and mixed-service sharing are not errors: the booking
// proceeds with a capacity_full warning and alternative slots. excludeID
// drops one appointment from the occupancy count.
func (s *Service) plan(ctx context.Context, professionalID uuid.UUID, svc domain.Service, startsAt time.Time, excludeID uuid.UUID) (planResult, error) {
	start := startsAt.In(s.loc)
	end := start.Add(svc.Duration())

	windows, err := s.repo.ListProfessionalAvailability(ctx, professionalID)
	if err != nil {
		return planResult{}, err
	}
	inside, err := insideAvailability(windows, start, end)
	if err != nil {
		return planResult{}, err
	}
	if !inside {
		return planResult{}, ErrOutsideAvailability
	}

	dayStart, dayEnd := domain.DayBounds(start)
	appts, err := s.repo.ListProfessionalAppointments(ctx, professionalID, dayStart, dayEnd)
	if err != nil {
		return planResult{}, err
	}

	occupying := domain.OverlappingAppointments(appts, professionalID, start, end, svc.Duration(), excludeID)
	if len(occupying) < svc.EffectiveCapacity() && !occupiesOtherService(occupying, svc.ID) {
		return planResult{}, nil
	}

	suggestions, err := s.suggestAfter(professionalID, start, svc, windows, appts, excludeID)
	if err != nil {
		return planResult{}, err
	}
	return planResult{warning: WarningCapacityFull, suggestions: suggestions}, nil
}

// suggestAfter picks the earliest available slots strictly after the
// requested start, on the same day.
func (s *Service) suggestAfter(professionalID uuid.UUID, start time.Time, svc domain.Service, windows []domain.AvailabilityWindow, appts []domain.Appointment, excludeID uuid.UUID) ([]Suggestion, error) {
	slots, err := domain.ComputeSlots(professionalID, start, svc, windows, appts, excludeID)
	if err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, slot := range slots {
		if !slot.Available || !slot.Start.After(start) {
			continue
		}
		out = append(out, Suggestion{StartsAt: slot.Start, EndsAt: slot.End})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if len(out) > s.suggestionLimit {
		out = out[:s.suggestionLimit]
	}
	return out, nil
}

func insideAvailability(windows []domain.AvailabilityWindow, start, end time.Time) (bool, error) {
	weekday := int(start.Weekday())
	for _, w := range windows {
		if w.Weekday != weekday {
			continue
		}
		ws, we, err := w.Bounds(start)
		if err != nil {
			return false, err
		}
		if !start.Before(ws) && !end.After(we) {
			return true, nil
		}
	}
	return false, nil
}

func occupiesOtherService(appts []domain.Appointment, serviceID uuid.UUID) bool {
	for _, a := range appts {
		if a.ServiceID != serviceID {
			return true
		}
	}
	return false
}

func (s *Service) lookupService(ctx context.Context, serviceID uuid.UUID) (domain.Service, error) {
	if serviceID == uuid.Nil {
		return domain.Service{}, validationError("service_id is required")
	}
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Service{}, validationError("service not found")
		}
		return domain.Service{}, err
	}
	return svc, nil
}

func (s *Service) buildPayment(svc domain.Service, mode domain.PaymentMode, dueDate *time.Time) (*domain.Payment, error) {
	if mode == "" {
		return nil, nil
	}
	switch mode {
	case domain.PaymentModeNow:
		return &domain.Payment{
			AmountCents: svc.PriceCents,
			Mode:        mode,
			Status:      domain.PaymentStatusPaid,
		}, nil
	case domain.PaymentModeDue:
		if dueDate == nil {
			return nil, validationError("payment_due_date is required for due payments")
		}
		return &domain.Payment{
			AmountCents: svc.PriceCents,
			Mode:        mode,
			Status:      domain.PaymentStatusPending,
			DueDate:     dueDate,
		}, nil
	default:
		return nil, validationError(fmt.Sprintf("invalid payment_mode %q", mode))
	}
}
