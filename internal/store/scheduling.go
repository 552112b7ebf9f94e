package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinica/backend/internal/domain"
)

// SchedulingRepository is everything the booking engine needs from storage.
// Availability windows, services, patients and professionals are maintained
// by CRUD screens outside this service and read here as-is.
//
// Writes must serialize per professional (advisory lock or equivalent) so
// two racing bookings for the same diary cannot interleave occupancy checks.
type SchedulingRepository interface {
	ListAvailability(ctx context.Context) ([]domain.AvailabilityWindow, error)
	ListProfessionalAvailability(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityWindow, error)

	ListServices(ctx context.Context) ([]domain.Service, error)
	GetService(ctx context.Context, serviceID uuid.UUID) (domain.Service, error)

	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListProfessionalAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)

	// CreateAppointment persists the appointment, its extra service links
	// and the optional payment row in one transaction.
	CreateAppointment(ctx context.Context, appt domain.Appointment, extraServiceIDs []uuid.UUID, payment *domain.Payment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, appointmentID uuid.UUID) error
}
