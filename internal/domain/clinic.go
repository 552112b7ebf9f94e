package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Patient and Professional are managed by the panel's CRUD screens; the
// scheduler only reads them to render booking responses.
type Patient struct {
	bun.BaseModel `bun:"table:patients"`

	ID   uuid.UUID `bun:"id,pk,type:uuid"`
	Name string    `bun:"name,notnull"`
}

type Professional struct {
	bun.BaseModel `bun:"table:professionals"`

	ID   uuid.UUID `bun:"id,pk,type:uuid"`
	Name string    `bun:"name,notnull"`
}

// Service defines the slot granularity (duration) and how many appointments
// may share one slot (capacity, e.g. group classes).
type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	Name            string    `bun:"name,notnull"`
	DurationMinutes int       `bun:"duration_minutes,notnull"`
	Capacity        int       `bun:"capacity,notnull,default:1"`
	PriceCents      int64     `bun:"price_cents"`
}

// Duration returns the service length as a time.Duration.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// EffectiveCapacity treats anything below one as the default single booking.
func (s Service) EffectiveCapacity() int {
	if s.Capacity < 1 {
		return 1
	}
	return s.Capacity
}

// AvailabilityWindow is a recurring weekly open interval for one
// professional. Times are tenant-local wall clock ("HH:MM"), weekday follows
// time.Weekday numbering (Sunday = 0). Invariant: StartTime < EndTime.
type AvailabilityWindow struct {
	bun.BaseModel `bun:"table:professional_availabilities"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	ProfessionalID uuid.UUID `bun:"professional_id,notnull,type:uuid"`
	Weekday        int       `bun:"weekday,notnull"`
	StartTime      string    `bun:"start_time,notnull"`
	EndTime        string    `bun:"end_time,notnull"`
}

// Bounds resolves the window's wall-clock times on a concrete date, in that
// date's location.
func (w AvailabilityWindow) Bounds(date time.Time) (time.Time, time.Time, error) {
	start, err := ClockOnDate(date, w.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ClockOnDate(date, w.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type PaymentMode string

const (
	PaymentModeNow PaymentMode = "now"
	PaymentModeDue PaymentMode = "due"
)

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
)

// Payment records the charge taken (or owed) for a booking. Billing rules
// live outside the scheduler; this row is written alongside the appointment
// so the financial panel can pick it up.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID            uuid.UUID     `bun:"id,pk,type:uuid"`
	AppointmentID uuid.UUID     `bun:"appointment_id,notnull,type:uuid"`
	AmountCents   int64         `bun:"amount_cents,notnull"`
	Mode          PaymentMode   `bun:"mode,notnull"`
	Status        PaymentStatus `bun:"status,notnull"`
	DueDate       *time.Time    `bun:"due_date"`
	CreatedAt     time.Time     `bun:"created_at,notnull"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull"`
}

func (p *Payment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}
