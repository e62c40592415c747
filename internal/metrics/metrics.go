// Package metrics exposes per-monitor device counts and HTTP request counts
// in the Prometheus text format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so several recorders can coexist in tests
type Recorder struct {
	registry    *prometheus.Registry
	alert       *prometheus.GaugeVec
	total       *prometheus.GaugeVec
	unavailable *prometheus.GaugeVec
	renders     *prometheus.CounterVec
	requests    *prometheus.CounterVec
}

// NewRecorder creates a recorder with the Go runtime and process collectors
// already registered
func NewRecorder() *Recorder {
	labels := []string{"monitor", "entity_type"}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		alert: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "device_monitor_alert_devices",
			Help: "Devices currently needing attention, by monitor.",
		}, labels),
		total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "device_monitor_total_devices",
			Help: "Devices a monitor watches.",
		}, labels),
		unavailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "device_monitor_unavailable_devices",
			Help: "Watched devices reporting unavailable.",
		}, labels),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_monitor_renders_total",
			Help: "Badge and card renders, by monitor.",
		}, []string{"monitor"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_monitor_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.alert,
		r.total,
		r.unavailable,
		r.renders,
		r.requests,
	)
	return r
}

// ObserveMonitor records the device counts of one render
func (r *Recorder) ObserveMonitor(monitor, entityType string, alert, total, unavailable int) {
	r.alert.WithLabelValues(monitor, entityType).Set(float64(alert))
	r.total.WithLabelValues(monitor, entityType).Set(float64(total))
	r.unavailable.WithLabelValues(monitor, entityType).Set(float64(unavailable))
	r.renders.WithLabelValues(monitor).Inc()
}

// Handler serves the registry
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware counts requests by chi route pattern, so path parameters do not
// explode the label set. Unrouted requests are counted as "unmatched".
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		r.requests.WithLabelValues(route, req.Method, strconv.Itoa(rw.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
