package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_catalog_products",
		Help: "Number of products in the loaded catalog index",
	})

	catalogRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_catalog_refreshes_total",
		Help: "Catalog reloads by result",
	}, []string{"result"})
)
