package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinica/backend/internal/domain"
	"clinica/backend/internal/store"
)

type fakeRepo struct {
	listAvailabilityFn             func(ctx context.Context) ([]domain.AvailabilityWindow, error)
	listProfessionalAvailabilityFn func(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityWindow, error)
	listServicesFn                 func(ctx context.Context) ([]domain.Service, error)
	getServiceFn                   func(ctx context.Context, serviceID uuid.UUID) (domain.Service, error)
	getAppointmentFn               func(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	listAppointmentsFn             func(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	listProfessionalAppointmentsFn func(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	createAppointmentFn            func(ctx context.Context, appt domain.Appointment, extraServiceIDs []uuid.UUID, payment *domain.Payment) (domain.Appointment, error)
	updateAppointmentFn            func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	deleteAppointmentFn            func(ctx context.Context, appointmentID uuid.UUID) error
}

func (f *fakeRepo) ListAvailability(ctx context.Context) ([]domain.AvailabilityWindow, error) {
	if f.listAvailabilityFn == nil {
		panic("ListAvailability not configured")
	}
	return f.listAvailabilityFn(ctx)
}

func (f *fakeRepo) ListProfessionalAvailability(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityWindow, error) {
	if f.listProfessionalAvailabilityFn == nil {
		panic("ListProfessionalAvailability not configured")
	}
	return f.listProfessionalAvailabilityFn(ctx, professionalID)
}

func (f *fakeRepo) ListServices(ctx context.Context) ([]domain.Service, error) {
	if f.listServicesFn == nil {
		panic("ListServices not configured")
	}
	return f.listServicesFn(ctx)
}

func (f *fakeRepo) GetService(ctx context.Context, serviceID uuid.UUID) (domain.Service, error) {
	if f.getServiceFn == nil {
		panic("GetService not configured")
	}
	return f.getServiceFn(ctx, serviceID)
}

func (f *fakeRepo) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if f.getAppointmentFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getAppointmentFn(ctx, appointmentID)
}

func (f *fakeRepo) ListAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if f.listAppointmentsFn == nil {
		panic("ListAppointments not configured")
	}
	return f.listAppointmentsFn(ctx, windowStart, windowEnd)
}

func (f *fakeRepo) ListProfessionalAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if f.listProfessionalAppointmentsFn == nil {
		panic("ListProfessionalAppointments not configured")
	}
	return f.listProfessionalAppointmentsFn(ctx, professionalID, windowStart, windowEnd)
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, appt domain.Appointment, extraServiceIDs []uuid.UUID, payment *domain.Payment) (domain.Appointment, error) {
	if f.createAppointmentFn == nil {
		panic("CreateAppointment not configured")
	}
	return f.createAppointmentFn(ctx, appt, extraServiceIDs, payment)
}

func (f *fakeRepo) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.updateAppointmentFn == nil {
		panic("UpdateAppointment not configured")
	}
	return f.updateAppointmentFn(ctx, appt)
}

func (f *fakeRepo) DeleteAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	if f.deleteAppointmentFn == nil {
		panic("DeleteAppointment not configured")
	}
	return f.deleteAppointmentFn(ctx, appointmentID)
}

var (
	testPatientID      = uuid.MustParse("00000000-0000-0000-0000-000000000101")
	testProfessionalID = uuid.MustParse("00000000-0000-0000-0000-000000000102")
	testServiceID      = uuid.MustParse("00000000-0000-0000-0000-000000000103")
	otherServiceID     = uuid.MustParse("00000000-0000-0000-0000-000000000104")
)

func testService(durationMinutes, capacity int) domain.Service {
	return domain.Service{
		ID:              testServiceID,
		Name:            "Consulta",
		DurationMinutes: durationMinutes,
		Capacity:        capacity,
		PriceCents:      15000,
	}
}

// Monday window 08:00-12:00.
func mondayWindow() []domain.AvailabilityWindow {
	return []domain.AvailabilityWindow{{
		ID:             uuid.MustParse("00000000-0000-0000-0000-000000000105"),
		ProfessionalID: testProfessionalID,
		Weekday:        1,
		StartTime:      "08:00",
		EndTime:        "12:00",
	}}
}

// 2026-01-05 is a Monday.
func mondayAt(hour, minute int) time.Time {
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

func bookingRepo(svc domain.Service, existing []domain.Appointment) *fakeRepo {
	return &fakeRepo{
		getServiceFn: func(ctx context.Context, serviceID uuid.UUID) (domain.Service, error) {
			if serviceID != svc.ID {
				return domain.Service{}, store.ErrNotFound
			}
			return svc, nil
		},
		listProfessionalAvailabilityFn: func(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityWindow, error) {
			return mondayWindow(), nil
		},
		listProfessionalAppointmentsFn: func(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
			return existing, nil
		},
		createAppointmentFn: func(ctx context.Context, appt domain.Appointment, extraServiceIDs []uuid.UUID, payment *domain.Payment) (domain.Appointment, error) {
			appt.ID = uuid.New()
			return appt, nil
		},
	}
}

func TestBook_ValidationErrorType(t *testing.T) {
	svc := NewService(&fakeRepo{}, time.UTC, 0)

	_, err := svc.Book(context.Background(), BookingInput{
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if vErr.Error() != "patient_id is required" {
		t.Fatalf("error = %q, want %q", vErr.Error(), "patient_id is required")
	}
}

func TestBook_FreeSlotCreatesWithoutWarning(t *testing.T) {
	repo := bookingRepo(testService(30, 1), nil)
	svc := NewService(repo, time.UTC, 0)

	res, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if res.Warning != "" {
		t.Fatalf("warning = %q, want none", res.Warning)
	}
	if len(res.Suggestions) != 0 {
		t.Fatalf("suggestions = %v, want none", res.Suggestions)
	}
	if res.Appointment.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("status = %q, want scheduled", res.Appointment.Status)
	}
	if want := mondayAt(9, 30); !res.Appointment.EndsAt.Equal(want) {
		t.Fatalf("ends_at = %v, want %v", res.Appointment.EndsAt, want)
	}
}

func TestBook_OutsideAvailability(t *testing.T) {
	repo := bookingRepo(testService(30, 1), nil)
	svc := NewService(repo, time.UTC, 0)

	// 11:45 + 30min spills past the 12:00 window end.
	_, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(11, 45),
	})
	if !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("err = %v, want %v", err, ErrOutsideAvailability)
	}

	// Tuesday has no window at all.
	_, err = svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0).AddDate(0, 0, 1),
	})
	if !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("err = %v, want %v", err, ErrOutsideAvailability)
	}
}

func TestBook_CapacityFullStillCreatesWithSuggestions(t *testing.T) {
	existing := []domain.Appointment{{
		ID:             uuid.New(),
		ProfessionalID: testProfessionalID,
		PatientID:      uuid.New(),
		ServiceID:      testServiceID,
		StartsAt:       mondayAt(9, 0),
		EndsAt:         mondayAt(10, 0),
		Status:         domain.AppointmentStatusScheduled,
	}}
	repo := bookingRepo(testService(60, 1), existing)
	svc := NewService(repo, time.UTC, 0)

	res, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if res.Appointment.ID == uuid.Nil {
		t.Fatal("overflow booking must still be created")
	}
	if res.Warning != WarningCapacityFull {
		t.Fatalf("warning = %q, want %q", res.Warning, WarningCapacityFull)
	}

	// Free slots after 09:00 in the 08:00-12:00 hourly grid are 10:00 and 11:00.
	if len(res.Suggestions) != 2 {
		t.Fatalf("suggestions = %v, want 2", res.Suggestions)
	}
	if want := mondayAt(10, 0); !res.Suggestions[0].StartsAt.Equal(want) {
		t.Fatalf("first suggestion = %v, want %v", res.Suggestions[0].StartsAt, want)
	}
	if want := mondayAt(11, 0); !res.Suggestions[1].StartsAt.Equal(want) {
		t.Fatalf("second suggestion = %v, want %v", res.Suggestions[1].StartsAt, want)
	}
}

func TestBook_MixedServiceBlocksDespiteCapacityHeadroom(t *testing.T) {
	existing := []domain.Appointment{{
		ID:             uuid.New(),
		ProfessionalID: testProfessionalID,
		PatientID:      uuid.New(),
		ServiceID:      otherServiceID,
		StartsAt:       mondayAt(9, 0),
		EndsAt:         mondayAt(10, 0),
		Status:         domain.AppointmentStatusScheduled,
	}}
	repo := bookingRepo(testService(60, 5), existing)
	svc := NewService(repo, time.UTC, 0)

	res, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if res.Warning != WarningCapacityFull {
		t.Fatalf("warning = %q, want %q", res.Warning, WarningCapacityFull)
	}
}

func TestBook_CancelledOccupantDoesNotBlock(t *testing.T) {
	existing := []domain.Appointment{{
		ID:             uuid.New(),
		ProfessionalID: testProfessionalID,
		PatientID:      uuid.New(),
		ServiceID:      testServiceID,
		StartsAt:       mondayAt(9, 0),
		EndsAt:         mondayAt(10, 0),
		Status:         domain.AppointmentStatusCancelled,
	}}
	repo := bookingRepo(testService(60, 1), existing)
	svc := NewService(repo, time.UTC, 0)

	res, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if res.Warning != "" {
		t.Fatalf("warning = %q, want none", res.Warning)
	}
}

func TestBook_MalformedWindowClockSurfacesError(t *testing.T) {
	repo := bookingRepo(testService(30, 1), nil)
	repo.listProfessionalAvailabilityFn = func(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityWindow, error) {
		return []domain.AvailabilityWindow{{
			ID:             uuid.New(),
			ProfessionalID: testProfessionalID,
			Weekday:        1,
			StartTime:      "8h00",
			EndTime:        "12:00",
		}}, nil
	}
	svc := NewService(repo, time.UTC, 0)

	_, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
	})
	if err == nil {
		t.Fatal("expected error for malformed window clock")
	}
	if errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("err = %v, want the parse failure surfaced, not an availability rejection", err)
	}
}

func TestBook_DuePaymentRequiresDueDate(t *testing.T) {
	repo := bookingRepo(testService(30, 1), nil)
	svc := NewService(repo, time.UTC, 0)

	_, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
		PaymentMode:    domain.PaymentModeDue,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
}

func TestBook_PaymentRowCarriesServicePrice(t *testing.T) {
	var gotPayment *domain.Payment
	repo := bookingRepo(testService(30, 1), nil)
	repo.createAppointmentFn = func(ctx context.Context, appt domain.Appointment, extraServiceIDs []uuid.UUID, payment *domain.Payment) (domain.Appointment, error) {
		gotPayment = payment
		appt.ID = uuid.New()
		return appt, nil
	}
	svc := NewService(repo, time.UTC, 0)

	_, err := svc.Book(context.Background(), BookingInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
		PaymentMode:    domain.PaymentModeNow,
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if gotPayment == nil {
		t.Fatal("expected a payment row")
	}
	if gotPayment.AmountCents != 15000 {
		t.Fatalf("amount = %d, want 15000", gotPayment.AmountCents)
	}
	if gotPayment.Status != domain.PaymentStatusPaid {
		t.Fatalf("status = %q, want paid", gotPayment.Status)
	}
}

func TestReschedule_OwnOccupancyDoesNotBlock(t *testing.T) {
	apptID := uuid.New()
	self := domain.Appointment{
		ID:             apptID,
		ProfessionalID: testProfessionalID,
		PatientID:      testPatientID,
		ServiceID:      testServiceID,
		StartsAt:       mondayAt(9, 0),
		EndsAt:         mondayAt(10, 0),
		Status:         domain.AppointmentStatusScheduled,
	}
	repo := bookingRepo(testService(60, 1), []domain.Appointment{self})
	repo.getAppointmentFn = func(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
		if appointmentID != apptID {
			return domain.Appointment{}, store.ErrNotFound
		}
		return self, nil
	}
	var updated domain.Appointment
	repo.updateAppointmentFn = func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
		updated = appt
		return appt, nil
	}
	svc := NewService(repo, time.UTC, 0)

	res, err := svc.Reschedule(context.Background(), apptID, mondayAt(9, 0), "patient asked")
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if res.Warning != "" {
		t.Fatalf("warning = %q, want none", res.Warning)
	}
	if updated.Status != domain.AppointmentStatusRescheduled {
		t.Fatalf("status = %q, want rescheduled", updated.Status)
	}
	if updated.StatusNote != "patient asked" {
		t.Fatalf("note = %q", updated.StatusNote)
	}
	if want := mondayAt(10, 0); !updated.EndsAt.Equal(want) {
		t.Fatalf("ends_at = %v, want %v", updated.EndsAt, want)
	}
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(&fakeRepo{}, time.UTC, 0)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), "postponed", "")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
}

func TestBookSeries_InvalidRuleFailsBeforeAnyBooking(t *testing.T) {
	svc := NewService(&fakeRepo{}, time.UTC, 0)

	_, err := svc.BookSeries(context.Background(), SeriesInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
		Rule: domain.SeriesRule{
			Frequency:     domain.RecurrenceFrequencyWeekly,
			TotalSessions: 4,
		},
	})
	if !errors.Is(err, domain.ErrInvalidRecurrenceRule) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidRecurrenceRule)
	}
}

func TestBookSeries_ContinuesPastFailedOccurrence(t *testing.T) {
	// Window is Monday-only; the Wednesday occurrence fails, the remaining
	// Mondays still book.
	repo := bookingRepo(testService(60, 1), nil)
	svc := NewService(repo, time.UTC, 0)

	outcomes, err := svc.BookSeries(context.Background(), SeriesInput{
		PatientID:      testPatientID,
		ProfessionalID: testProfessionalID,
		ServiceIDs:     []uuid.UUID{testServiceID},
		StartsAt:       mondayAt(9, 0),
		Rule: domain.SeriesRule{
			Frequency:     domain.RecurrenceFrequencyWeekly,
			DaysOfWeek:    []int{1, 3},
			TotalSessions: 4,
		},
	})
	if err != nil {
		t.Fatalf("BookSeries error: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("len(outcomes) = %d, want 4", len(outcomes))
	}

	wantStarts := []time.Time{
		mondayAt(9, 0),
		mondayAt(9, 0).AddDate(0, 0, 2),
		mondayAt(9, 0).AddDate(0, 0, 7),
		mondayAt(9, 0).AddDate(0, 0, 9),
	}
	for i, o := range outcomes {
		if !o.StartsAt.Equal(wantStarts[i]) {
			t.Fatalf("outcome[%d].StartsAt = %v, want %v", i, o.StartsAt, wantStarts[i])
		}
	}

	for _, i := range []int{0, 2} {
		if outcomes[i].Err != "" || outcomes[i].Appointment == nil {
			t.Fatalf("outcome[%d] = %+v, want booked", i, outcomes[i])
		}
	}
	for _, i := range []int{1, 3} {
		if outcomes[i].Err == "" || outcomes[i].Appointment != nil {
			t.Fatalf("outcome[%d] = %+v, want failed", i, outcomes[i])
		}
	}
}
