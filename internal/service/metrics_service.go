package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the portal.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	seatRaceLost    prometheus.Counter
	paymentOutcomes *prometheus.CounterVec
	paymentAnomaly  prometheus.Counter
	gatewayDuration *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	seatRaceLost := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registration_seat_race_lost_total",
		Help: "Approvals rejected because the capacity re-check found no seat",
	})

	paymentOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Payment outcome transitions applied, by terminal status and source",
	}, []string{"status", "source"})

	paymentAnomaly := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_outcome_anomalies_total",
		Help: "Conflicting terminal outcomes reported after a payment settled",
	})

	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of outbound payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		seatRaceLost, paymentOutcomes, paymentAnomaly, gatewayDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		seatRaceLost:    seatRaceLost,
		paymentOutcomes: paymentOutcomes,
		paymentAnomaly:  paymentAnomaly,
		gatewayDuration: gatewayDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordSeatRaceLost counts an approval that lost the capacity re-check.
func (m *MetricsService) RecordSeatRaceLost() {
	if m == nil {
		return
	}
	m.seatRaceLost.Inc()
}

// RecordPaymentOutcome counts an applied payment transition.
func (m *MetricsService) RecordPaymentOutcome(status, source string) {
	if m == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(status, source).Inc()
}

// RecordPaymentAnomaly counts a conflicting outcome on a settled payment.
func (m *MetricsService) RecordPaymentAnomaly() {
	if m == nil {
		return
	}
	m.paymentAnomaly.Inc()
}

// ObserveGatewayCall records outbound gateway call timing.
func (m *MetricsService) ObserveGatewayCall(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
