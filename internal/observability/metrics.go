package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics provides basic in-memory counters for gateway traffic and
// session lifecycle events. Every counter is mirrored into a Prometheus
// registry for scraping.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	sessionEvents map[string]int64

	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	errorTotal      *prometheus.CounterVec
	sessionTotal    *prometheus.CounterVec
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	m := &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		sessionEvents: make(map[string]int64),
		registry:      prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of gateway requests by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		errorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Gateway requests that ended in an error envelope.",
		}, []string{"route", "method", "code"}),
		sessionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_events_total",
			Help: "Session lifecycle events by audience and type.",
		}, []string{"audience", "event"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.requestDuration,
		m.errorTotal,
		m.sessionTotal,
	)
	return m
}

// Registry exposes the Prometheus registry backing the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.requestDuration.WithLabelValues(path, method, strconv.Itoa(status)).Observe(duration.Seconds())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.errorTotal.WithLabelValues(path, method, code).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordSessionEvent counts a session lifecycle event per audience.
func (m *Metrics) RecordSessionEvent(audience, eventType string) {
	if m == nil {
		return
	}
	m.sessionTotal.WithLabelValues(audience, eventType).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionEvents[audience+"|"+eventType]++
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests      map[string]int64 `json:"requests"`
	Errors        map[string]int64 `json:"errors"`
	SessionEvents map[string]int64 `json:"session_events"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:      copyCounts(m.requestCount),
		Errors:        copyCounts(m.errorCount),
		SessionEvents: copyCounts(m.sessionEvents),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
