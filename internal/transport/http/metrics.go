package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Booking outcomes: created, capacity_full (created with warning), rejected.
var bookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clinica_bookings_total",
	Help: "Booking attempts by outcome.",
}, []string{"outcome"})

var seriesOccurrencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clinica_series_occurrences_total",
	Help: "Series occurrence bookings by outcome.",
}, []string{"outcome"})

func bookingOutcome(warning string, err error) string {
	switch {
	case err != nil:
		return "rejected"
	case warning != "":
		return warning
	default:
		return "created"
	}
}
