// Package observability exposes the Prometheus metrics of the manager.
package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	forwardsTotal   *prometheus.CounterVec
	sockets         prometheus.Gauge
	relayedTotal    *prometheus.CounterVec
}

// NewMetrics initialises the registry and the application metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_manager_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "otp_manager_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	forwards := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_manager_api_forwards_total",
		Help: "Calls forwarded to the OTP API by backend route and status, 0 when unreachable.",
	}, []string{"route", "code"})
	sockets := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "otp_manager_socket_connections",
		Help: "Open websocket connections.",
	})
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_manager_relay_messages_total",
		Help: "Events received on the relay channel by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, forwards, sockets, relayed)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		forwardsTotal:   forwards,
		sockets:         sockets,
		relayedTotal:    relayed,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveForward counts one OTP API call.
func (m *Metrics) ObserveForward(route string, status int) {
	if m == nil {
		return
	}
	m.forwardsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// SocketOpened tracks a registered websocket connection.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.sockets.Inc()
}

// SocketClosed tracks an unregistered websocket connection.
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.sockets.Dec()
}

// ObserveRelay counts a relay channel message, outcome is one of
// "delivered", "undelivered" or "malformed".
func (m *Metrics) ObserveRelay(outcome string) {
	if m == nil {
		return
	}
	m.relayedTotal.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observability: response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
