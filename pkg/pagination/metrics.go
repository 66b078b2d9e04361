package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flaskion_gallery_loads_total",
		Help: "Gallery page loads by kind and result",
	}, []string{"kind", "result"}) // kind: "reset", "more"; result: "ok", "failed", "stale"

	itemsMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flaskion_gallery_items_total",
		Help: "Gallery items materialized by result",
	}, []string{"result"}) // "filled", "failed", "discarded"
)
