package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "address_store_operations_total",
			Help: "Address book store operations by result",
		},
		[]string{"operation", "result"},
	)

	primaryRepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "address_primary_repairs_total",
			Help: "Times the first address was promoted because no primary remained",
		},
		[]string{"operation"},
	)

	casConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "address_cas_conflicts_total",
			Help: "Compare-and-swap saves that lost to a concurrent writer",
		},
		[]string{"operation"},
	)
)

// Store operation results.
const (
	resultOK       = "ok"
	resultMissing  = "missing"
	resultError    = "error"
	resultConflict = "conflict"
)
