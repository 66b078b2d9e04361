package blob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flaskion_blob_live_handles",
		Help: "Number of acquired handles not yet released",
	})

	liveBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flaskion_blob_live_bytes",
		Help: "Bytes held by live handles",
	})

	acquiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flaskion_blob_acquires_total",
		Help: "Total acquisitions by result",
	}, []string{"result"}) // "network", "cache", "revalidated", "error", "superseded"

	releasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flaskion_blob_releases_total",
		Help: "Total handles released",
	})
)
