package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinica/backend/internal/domain"
	"clinica/backend/internal/store"
)

type SchedulingRepo struct {
	db *bun.DB
}

func NewSchedulingRepo(db *bun.DB) *SchedulingRepo {
	return &SchedulingRepo{db: db}
}

func (r *SchedulingRepo) ListAvailability(ctx context.Context) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("professional_id ASC, weekday ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListProfessionalAvailability(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := r.db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		OrderExpr("weekday ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListServices(ctx context.Context) ([]domain.Service, error) {
	var rows []domain.Service
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) GetService(ctx context.Context, serviceID uuid.UUID) (domain.Service, error) {
	var svc domain.Service
	err := r.db.NewSelect().
		Model(&svc).
		Where("id = ?", serviceID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Service{}, store.ErrNotFound
		}
		return domain.Service{}, err
	}
	return svc, nil
}

func (r *SchedulingRepo) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Relation("Patient").
		Relation("Professional").
		Relation("Service").
		Where("appointment.id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *SchedulingRepo) ListAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Relation("Patient").
		Relation("Professional").
		Relation("Service").
		Where("appointment.starts_at < ?", windowEnd).
		Where("appointment.ends_at > ?", windowStart).
		OrderExpr("appointment.starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListProfessionalAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Relation("Patient").
		Relation("Professional").
		Relation("Service").
		Where("appointment.professional_id = ?", professionalID).
		Where("appointment.starts_at < ?", windowEnd).
		Where("appointment.ends_at > ?", windowStart).
		OrderExpr("appointment.starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) CreateAppointment(ctx context.Context, appt domain.Appointment, extraServiceIDs []uuid.UUID, payment *domain.Payment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProfessionalDiary(ctx, tx, appt.ProfessionalID); err != nil {
			return err
		}

		m := appt
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return err
		}

		links := make([]domain.AppointmentService, 0, len(extraServiceIDs)+1)
		links = append(links, domain.AppointmentService{AppointmentID: m.ID, ServiceID: m.ServiceID})
		for _, sid := range extraServiceIDs {
			if sid == m.ServiceID {
				continue
			}
			links = append(links, domain.AppointmentService{AppointmentID: m.ID, ServiceID: sid})
		}
		if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
			return err
		}

		if payment != nil {
			p := *payment
			p.AppointmentID = m.ID
			if _, err := tx.NewInsert().Model(&p).Exec(ctx); err != nil {
				return err
			}
		}

		loaded, err := getAppointmentTx(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *SchedulingRepo) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProfessionalDiary(ctx, tx, appt.ProfessionalID); err != nil {
			return err
		}

		m := appt
		res, err := tx.NewUpdate().
			Model(&m).
			Column("starts_at", "ends_at", "status", "status_note", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}

		loaded, err := getAppointmentTx(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *SchedulingRepo) DeleteAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var appt domain.Appointment
		err := tx.NewSelect().
			Model(&appt).
			Column("id", "professional_id").
			Where("id = ?", appointmentID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if err := lockProfessionalDiary(ctx, tx, appt.ProfessionalID); err != nil {
			return err
		}

		if _, err := tx.NewDelete().
			Model((*domain.AppointmentService)(nil)).
			Where("appointment_id = ?", appointmentID).
			Exec(ctx); err != nil {
			return err
		}

		if _, err := tx.NewDelete().
			Model((*domain.Payment)(nil)).
			Where("appointment_id = ?", appointmentID).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*domain.Appointment)(nil)).
			Where("id = ?", appointmentID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func getAppointmentTx(ctx context.Context, tx bun.Tx, appointmentID uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := tx.NewSelect().
		Model(&appt).
		Relation("Patient").
		Relation("Professional").
		Relation("Service").
		Where("appointment.id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

// lockProfessionalDiary serializes writers against one professional's
// schedule for the rest of the transaction. Occupancy reads happen before
// the write, so racing bookings for the same diary queue here instead of
// interleaving.
func lockProfessionalDiary(ctx context.Context, tx bun.Tx, professionalID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", professionalID.String()).Exec(ctx)
	return err
}
