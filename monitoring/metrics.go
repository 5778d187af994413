package monitoring

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

var (
	RemoteStoreRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_store_requests_total",
			Help: "Requests sent to the remote CRM store",
		},
		[]string{"method", "collection", "outcome"},
	)

	RemoteStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_store_request_duration_seconds",
			Help:    "Latency of remote CRM store requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		},
		[]string{"method", "collection"},
	)

	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_mutations_total",
			Help: "Confirmed and failed entity mutations",
		},
		[]string{"kind", "action", "outcome"},
	)

	ActiveWorkspaces = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_active_workspaces",
			Help: "Number of session workspaces held in memory",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(RemoteStoreRequests)
		prometheus.MustRegister(RemoteStoreDuration)
		prometheus.MustRegister(MutationsTotal)
		prometheus.MustRegister(ActiveWorkspaces)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
