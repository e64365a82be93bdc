// Package prom exposes enricher metrics to Prometheus scrapers.
//
// Sink implements statsd.Sink, so the dispatcher, collectors and reaper emit
// through the same calls whether metrics go to a StatsD agent, a /metrics
// endpoint, or both. Counters become <ns>_<name>_total, gauges keep their
// name and timings become <ns>_<name>_seconds histograms.
package prom

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/domain-enricher/internal/observability/statsd"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Options configures a Sink.
type Options struct {
	Namespace string
	// Registry defaults to a new registry.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Sink lazily registers one vector per metric name. The label set of a metric
// is fixed by its first observation; later tags missing a label report "" and
// unknown tags are dropped.
type Sink struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*vec[*prometheus.CounterVec]
	gauges     map[string]*vec[*prometheus.GaugeVec]
	histograms map[string]*vec[*prometheus.HistogramVec]
}

type vec[T any] struct {
	labels []string
	v      T
}

var _ statsd.Sink = (*Sink)(nil)

// NewSink builds a Sink with its own registry.
func NewSink(opts Options) *Sink {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		namespace:  sanitize(opts.Namespace),
		registry:   reg,
		logger:     logger.With("component", "prometheus_sink"),
		counters:   make(map[string]*vec[*prometheus.CounterVec]),
		gauges:     make(map[string]*vec[*prometheus.GaugeVec]),
		histograms: make(map[string]*vec[*prometheus.HistogramVec]),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Gatherer exposes the registry for tests and custom exporters.
func (s *Sink) Gatherer() prometheus.Gatherer { return s.registry }

// Count adds value to <ns>_<name>_total.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	if s == nil || value < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cv, ok := s.counters[name]
	if !ok {
		labels := labelNames(tags)
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      sanitize(name) + "_total",
			Help:      "Enricher counter " + name + ".",
		}, labels)
		if !s.register(name, c) {
			return
		}
		cv = &vec[*prometheus.CounterVec]{labels: labels, v: c}
		s.counters[name] = cv
	}
	cv.v.WithLabelValues(labelValues(cv.labels, tags)...).Add(float64(value))
}

// Gauge sets <ns>_<name>.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gv, ok := s.gauges[name]
	if !ok {
		labels := labelNames(tags)
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      sanitize(name),
			Help:      "Enricher gauge " + name + ".",
		}, labels)
		if !s.register(name, g) {
			return
		}
		gv = &vec[*prometheus.GaugeVec]{labels: labels, v: g}
		s.gauges[name] = gv
	}
	gv.v.WithLabelValues(labelValues(gv.labels, tags)...).Set(value)
}

// Timing observes value in <ns>_<name>_seconds.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hv, ok := s.histograms[name]
	if !ok {
		labels := labelNames(tags)
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      sanitize(name) + "_seconds",
			Help:      "Enricher timing " + name + ".",
			Buckets:   durationBuckets,
		}, labels)
		if !s.register(name, h) {
			return
		}
		hv = &vec[*prometheus.HistogramVec]{labels: labels, v: h}
		s.histograms[name] = hv
	}
	hv.v.WithLabelValues(labelValues(hv.labels, tags)...).Observe(value.Seconds())
}

func (s *Sink) register(name string, c prometheus.Collector) bool {
	if err := s.registry.Register(c); err != nil {
		s.logger.Warn("prometheus register failed", "metric", name, "error", err)
		return false
	}
	return true
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		n := sanitize(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

func labelValues(names []string, tags map[string]string) []string {
	byName := make(map[string]string, len(tags))
	for k, v := range tags {
		byName[sanitize(k)] = strings.TrimSpace(v)
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = byName[n]
	}
	return out
}

// sanitize maps a StatsD-style name onto the Prometheus [a-zA-Z0-9_] alphabet.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
