// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scope_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_mount_commands_total",
			Help: "Protocol commands sent to the mount, by verb.",
		},
		[]string{"verb"},
	)

	pollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scope_tracker_polls_total",
			Help: "Total number of tracker poll cycles.",
		},
	)

	pollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scope_tracker_poll_errors_total",
			Help: "Total number of failed tracker poll cycles.",
		},
	)

	trackerRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scope_tracker_running",
			Help: "1 while the tracker worker is running.",
		},
	)

	mountAltitude = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scope_mount_altitude_degrees",
			Help: "Last sampled mount altitude.",
		},
	)

	mountAzimuth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scope_mount_azimuth_degrees",
			Help: "Last sampled mount azimuth.",
		},
	)

	mountVelocity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scope_mount_velocity_degrees_per_second",
			Help: "Total on-sky angular velocity from the last two samples.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		commandsTotal,
		pollsTotal,
		pollErrorsTotal,
		trackerRunning,
		mountAltitude,
		mountAzimuth,
		mountVelocity,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCommand counts one protocol command by its verb byte.
func RecordCommand(verb byte) {
	commandsTotal.WithLabelValues(string(verb)).Inc()
}

// RecordPoll updates the tracker gauges after a poll cycle.
func RecordPoll(ok bool, azimuth, altitude, velocity float64) {
	pollsTotal.Inc()
	if !ok {
		pollErrorsTotal.Inc()
		return
	}
	mountAzimuth.Set(azimuth)
	mountAltitude.Set(altitude)
	mountVelocity.Set(velocity)
}

// SetTrackerRunning flips the worker liveness gauge.
func SetTrackerRunning(running bool) {
	if running {
		trackerRunning.Set(1)
	} else {
		trackerRunning.Set(0)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}
