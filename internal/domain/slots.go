package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Slot is a computed candidate interval, never persisted. Availability means
// the occupying count is under the service capacity and every occupying
// appointment is for the same service (mixed-service co-occupancy is
// disallowed even with capacity headroom).
type Slot struct {
	Start     time.Time
	End       time.Time
	Occupying []Appointment
	Available bool
}

var ErrInvalidServiceDuration = errors.New("service duration must be positive")

// ComputeSlots enumerates the fixed-size slots of one professional on one
// date: for each availability window matching the date's weekday, slots are
// emitted every durationMinutes from the window start while a full slot
// still fits. Windows are enumerated independently, so overlapping windows
// yield overlapping slots and the output follows the window record order;
// callers needing global time order sort the windows first.
//
// excludeID drops one appointment from occupancy counts (reschedule
// self-exclusion); pass uuid.Nil to count everything.
func ComputeSlots(professionalID uuid.UUID, date time.Time, svc Service, windows []AvailabilityWindow, appts []Appointment, excludeID uuid.UUID) ([]Slot, error) {
	if svc.DurationMinutes <= 0 {
		return nil, ErrInvalidServiceDuration
	}

	duration := svc.Duration()
	weekday := int(date.Weekday())
	capacity := svc.EffectiveCapacity()

	var out []Slot
	for _, w := range windows {
		if w.ProfessionalID != professionalID || w.Weekday != weekday {
			continue
		}
		windowStart, windowEnd, err := w.Bounds(date)
		if err != nil {
			return nil, err
		}

		for cursor := windowStart; !cursor.Add(duration).After(windowEnd); cursor = cursor.Add(duration) {
			slotEnd := cursor.Add(duration)
			occupying := OverlappingAppointments(appts, professionalID, cursor, slotEnd, duration, excludeID)
			out = append(out, Slot{
				Start:     cursor,
				End:       slotEnd,
				Occupying: occupying,
				Available: len(occupying) < capacity && !hasOtherService(occupying, svc.ID),
			})
		}
	}
	return out, nil
}

// OverlappingAppointments selects the appointments of one professional whose
// [starts_at, ends_at) interval intersects [start, end), half-open on both
// sides. Appointments whose status no longer holds the slot are skipped, as
// is the excluded appointment. A missing ends_at is derived from the
// fallback duration.
func OverlappingAppointments(appts []Appointment, professionalID uuid.UUID, start, end time.Time, fallback time.Duration, excludeID uuid.UUID) []Appointment {
	var out []Appointment
	for _, a := range appts {
		if a.ProfessionalID != professionalID {
			continue
		}
		if excludeID != uuid.Nil && a.ID == excludeID {
			continue
		}
		if !a.Status.CountsForOccupancy() {
			continue
		}
		apptEnd := a.EndsAt
		if apptEnd.IsZero() {
			apptEnd = a.StartsAt.Add(fallback)
		}
		if a.StartsAt.Before(end) && apptEnd.After(start) {
			out = append(out, a)
		}
	}
	return out
}

func hasOtherService(appts []Appointment, serviceID uuid.UUID) bool {
	for _, a := range appts {
		if a.ServiceID != serviceID {
			return true
		}
	}
	return false
}
