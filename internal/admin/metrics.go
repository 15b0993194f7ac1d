// Package admin exposes a small gin HTTP surface alongside a running
// Server: health/readiness probes, a snapshot of connected peers, and a
// Prometheus /metrics endpoint.
package admin

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosssock",
			Subsystem: "server",
			Name:      "connects_total",
			Help:      "Total accepted peer connections.",
		},
		[]string{"node"},
	)
	disconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosssock",
			Subsystem: "server",
			Name:      "disconnects_total",
			Help:      "Total peer disconnections.",
		},
		[]string{"node"},
	)
	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosssock",
			Subsystem: "server",
			Name:      "reconnects_total",
			Help:      "Total successful identity resumptions.",
		},
		[]string{"node"},
	)
	rejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosssock",
			Subsystem: "server",
			Name:      "rejects_total",
			Help:      "Total connections refused by policy.",
		},
		[]string{"node", "reason"},
	)
	frameDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crosssock",
			Subsystem: "server",
			Name:      "frame_dispatch_seconds",
			Help:      "Application frame handler dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method"},
	)
	peerGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "crosssock",
			Subsystem: "server",
			Name:      "peers_connected",
			Help:      "Current count of connected peers.",
		},
		[]string{"node"},
	)
	adminHTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosssock",
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	adminHTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crosssock",
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

// RegisterMetrics registers the server's collectors with the default
// Prometheus registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectsTotal, disconnectsTotal, reconnectsTotal, rejectsTotal, frameDuration, peerGauge,
			adminHTTPRequests, adminHTTPDuration)
	})
}

func RecordConnect(node string)    { RegisterMetrics(); connectsTotal.WithLabelValues(node).Inc() }
func RecordDisconnect(node string) { RegisterMetrics(); disconnectsTotal.WithLabelValues(node).Inc() }
func RecordReconnect(node string)  { RegisterMetrics(); reconnectsTotal.WithLabelValues(node).Inc() }

func RecordReject(node, reason string) {
	RegisterMetrics()
	rejectsTotal.WithLabelValues(node, reason).Inc()
}

func RecordFrameDispatch(node, method string, d time.Duration) {
	RegisterMetrics()
	frameDuration.WithLabelValues(node, method).Observe(d.Seconds())
}

func SetPeerCount(node string, n int) {
	RegisterMetrics()
	peerGauge.WithLabelValues(node).Set(float64(n))
}

func recordAdminHTTPRequest(node, method, path string, status int, d time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	adminHTTPRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	adminHTTPDuration.WithLabelValues(node, method, path, statusLabel).Observe(d.Seconds())
}
