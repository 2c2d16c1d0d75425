package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinsTotal counts check-in attempts by terminal outcome, including
	// failure taxonomy codes.
	CheckinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrattend_checkins_total",
		Help: "Check-in attempts by outcome.",
	}, []string{"outcome"})

	// TokensMinted counts freshly minted daily tokens (idempotent re-requests
	// excluded).
	TokensMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrattend_daily_tokens_minted_total",
		Help: "Daily attendance tokens minted.",
	})

	// EnrollmentsCreated counts first-time enrollments.
	EnrollmentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrattend_enrollments_created_total",
		Help: "New (student, batch) enrollments.",
	})
)
