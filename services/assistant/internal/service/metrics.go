package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_sessions_active",
		Help: "Assistant sessions currently held in memory",
	})

	sessionsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_sessions_started_total",
			Help: "Assistant sessions started by flow",
		},
		[]string{"flow"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_transitions_total",
			Help: "Replies handled by flow, step before and step after",
		},
		[]string{"flow", "from", "to"},
	)
)
