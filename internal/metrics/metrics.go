package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wartel_active_sessions",
		Help: "Number of currently active call sessions",
	})

	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wartel_sessions_started_total",
		Help: "Total number of call sessions started",
	}, []string{"call_type"})

	SessionsTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wartel_sessions_terminated_total",
		Help: "Total number of call sessions terminated",
	}, []string{"reason"})

	StartRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wartel_session_start_rejections_total",
		Help: "Total number of rejected session start attempts",
	}, []string{"reason"})

	SignalingMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wartel_signaling_messages_total",
		Help: "Total number of signaling messages relayed",
	}, []string{"type"})

	SignalingRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wartel_signaling_rooms",
		Help: "Number of signaling rooms with at least one member",
	})

	ExpiryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wartel_expiry_retries_total",
		Help: "Total number of retried expiry terminations after store failures",
	})
)
