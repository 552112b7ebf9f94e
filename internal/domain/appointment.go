package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
	AppointmentStatusArrived     AppointmentStatus = "arrived"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusNoShow      AppointmentStatus = "no_show"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusRescheduled,
		AppointmentStatusArrived, AppointmentStatusCompleted, AppointmentStatusNoShow,
		AppointmentStatusCancelled:
		return true
	}
	return false
}

// CountsForOccupancy reports whether an appointment in this status still
// holds its time slot. Cancelled and no-show appointments release capacity.
func (s AppointmentStatus) CountsForOccupancy() bool {
	return s != AppointmentStatusCancelled && s != AppointmentStatusNoShow
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID         `bun:"id,pk,type:uuid"`
	ProfessionalID uuid.UUID         `bun:"professional_id,notnull,type:uuid"`
	PatientID      uuid.UUID         `bun:"patient_id,notnull,type:uuid"`
	ServiceID      uuid.UUID         `bun:"service_id,notnull,type:uuid"`
	StartsAt       time.Time         `bun:"starts_at,notnull"`
	EndsAt         time.Time         `bun:"ends_at,notnull"`
	Status         AppointmentStatus `bun:"status,notnull"`
	StatusNote     string            `bun:"status_note"`
	CreatedAt      time.Time         `bun:"created_at,notnull"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull"`

	Patient      *Patient      `bun:"rel:belongs-to,join:patient_id=id"`
	Professional *Professional `bun:"rel:belongs-to,join:professional_id=id"`
	Service      *Service      `bun:"rel:belongs-to,join:service_id=id"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// AppointmentService links an appointment to every service booked for it.
// The appointment's own service_id stays the primary one that defined the
// slot duration and capacity.
type AppointmentService struct {
	bun.BaseModel `bun:"table:appointment_services"`

	AppointmentID uuid.UUID `bun:"appointment_id,pk,type:uuid"`
	ServiceID     uuid.UUID `bun:"service_id,pk,type:uuid"`
}
