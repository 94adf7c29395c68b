package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	LeaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_transitions_total",
			Help: "Total number of lease workflow transitions by target state and outcome",
		},
		[]string{"target", "outcome"},
	)
	OTPChallengesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_challenges_issued_total",
			Help: "Total number of OTP challenges issued by outcome",
		},
		[]string{"outcome"},
	)
	OTPVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "Total number of OTP verification attempts by outcome",
		},
		[]string{"outcome"},
	)
	IntegrityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_integrity_checks_total",
			Help: "Total number of document integrity checks by outcome",
		},
		[]string{"outcome"},
	)
	TransitionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lease_transition_duration_seconds",
			Help:    "Duration of lease workflow transitions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func InitMetrics() {
	collectors := []prometheus.Collector{
		LeaseTransitions, OTPChallengesIssued, OTPVerifications,
		IntegrityChecks, TransitionDuration,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msg("Failed to register metric")
		}
	}
}
