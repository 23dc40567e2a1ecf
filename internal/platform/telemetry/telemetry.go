// Package telemetry records request spans and service metrics and serves
// them in Prometheus text exposition format. It keeps OTel naming
// conventions for metric and attribute names without importing the
// go.opentelemetry.io SDK.
package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Config holds all configuration for the telemetry provider.
type Config struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	MetricsEnabled *bool  `json:"metrics_enabled"` // nil = use default (true)
	TracingEnabled *bool  `json:"tracing_enabled"` // nil = use default (true)
	Environment    string `json:"environment"`
}

func (c *Config) metricsOn() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}

func (c *Config) tracingOn() bool {
	return c.TracingEnabled == nil || *c.TracingEnabled
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "medsched-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for Config fields.
func BoolPtr(b bool) *bool {
	return &b
}

// SpanStatus represents the status of a completed span.
type SpanStatus int

const (
	// SpanStatusUnset is the default status.
	SpanStatusUnset SpanStatus = iota
	// SpanStatusOK indicates the operation completed successfully.
	SpanStatusOK
	// SpanStatusError indicates the operation contained an error.
	SpanStatusError
)

// Span captures one request's timing and attributes.
type Span struct {
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	Name       string            `json:"name"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Duration   time.Duration     `json:"duration_ns"`
	StatusCode SpanStatus        `json:"status_code"`
	Attributes map[string]string `json:"attributes"`
}

// JSON serialises the span as a structured JSON string for logging.
func (s *Span) JSON() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// maxRetainedSpans bounds the in-memory span buffer; the oldest span is
// dropped once full.
const maxRetainedSpans = 1024

// histogram accumulates observations into cumulative buckets. All access
// goes through one mutex; at the request rates this server sees, lock
// contention is not worth an atomics scheme.
type histogram struct {
	mu     sync.Mutex
	bounds []float64
	cum    []int64
	count  int64
	sum    float64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, cum: make([]int64, len(bounds))}
}

// Observe records a single value. Buckets are cumulative: every bucket
// whose boundary is >= v is incremented.
func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	h.count++
	h.sum += v
	for i, b := range h.bounds {
		if v <= b {
			h.cum[i]++
		}
	}
	h.mu.Unlock()
}

// Count returns the total number of observations.
func (h *histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total sum of all observations.
func (h *histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// cumulativeBuckets returns a copy of the per-boundary cumulative counts.
// The +Inf bucket is the observation count and is not included.
func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]int64, len(h.cum))
	copy(cp, h.cum)
	return cp
}

// registry is the single store behind counters, gauges and histograms.
// Histograms are keyed "name" for the unlabeled series and "name|labels"
// for labeled ones.
type registry struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64
	hists    map[string]*histogram
}

func newRegistry() *registry {
	return &registry{
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
		hists:    make(map[string]*histogram),
	}
}

func (r *registry) incCounter(key string) {
	r.mu.Lock()
	r.counters[key]++
	r.mu.Unlock()
}

func (r *registry) counter(key string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[key]
}

func (r *registry) counterSnapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		cp[k] = v
	}
	return cp
}

func (r *registry) setGauge(name string, v int64) {
	r.mu.Lock()
	r.gauges[name] = v
	r.mu.Unlock()
}

func (r *registry) addGauge(name string, delta int64) {
	r.mu.Lock()
	r.gauges[name] += delta
	r.mu.Unlock()
}

func (r *registry) gauge(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

func (r *registry) histogram(key string) *histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hists[key]
}

func (r *registry) histogramOrCreate(key string, bounds []float64) *histogram {
	r.mu.RLock()
	h, ok := r.hists[key]
	r.mu.RUnlock()
	if ok {
		return h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.hists[key]; !ok {
		h = newHistogram(bounds)
		r.hists[key] = h
	}
	return h
}

// histogramKeys returns the keys of all histograms under the given metric
// name that carry labels, sorted for stable exposition output.
func (r *registry) histogramKeys(name string) []string {
	prefix := name + "|"
	r.mu.RLock()
	var keys []string
	for k := range r.hists {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// LabelsKey builds the map key for a labeled histogram. Exported so tests
// can construct the same key.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

// defaultDurationBuckets are the histogram boundaries (seconds) for HTTP
// request duration, following OTel HTTP semantic conventions.
var defaultDurationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// defaultSizeBuckets are the histogram boundaries (bytes) for HTTP
// request and response size.
var defaultSizeBuckets = []float64{
	100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000,
}

const (
	metricRequestDuration = "http.server.request.duration"
	metricRequestSize     = "http.server.request.size"
	metricResponseSize    = "http.server.response.size"
	metricActiveRequests  = "http.server.active_requests"
	counterScheduleOps    = "schedule.operation.count"
)

// Provider manages all observability state.
type Provider struct {
	cfg     Config
	metrics *registry

	spansMu sync.Mutex
	spans   []*Span

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewProvider creates and initialises the telemetry provider.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	return &Provider{
		cfg:     cfg,
		metrics: newRegistry(),
		done:    make(chan struct{}),
	}
}

// Shutdown gracefully shuts down the telemetry provider.
func (tp *Provider) Shutdown(_ context.Context) error {
	tp.shutdownOnce.Do(func() {
		close(tp.done)
	})
	return nil
}

// Resource returns the OTel resource attributes.
func (tp *Provider) Resource() map[string]string {
	return map[string]string{
		"service.name":           tp.cfg.ServiceName,
		"service.version":        tp.cfg.ServiceVersion,
		"deployment.environment": tp.cfg.Environment,
	}
}

// RecordedSpans returns a copy of the retained spans.
func (tp *Provider) RecordedSpans() []*Span {
	tp.spansMu.Lock()
	defer tp.spansMu.Unlock()
	cp := make([]*Span, len(tp.spans))
	copy(cp, tp.spans)
	return cp
}

func (tp *Provider) recordSpan(s *Span) {
	tp.spansMu.Lock()
	if len(tp.spans) >= maxRetainedSpans {
		tp.spans = tp.spans[1:]
	}
	tp.spans = append(tp.spans, s)
	tp.spansMu.Unlock()
}

// GetHistogram returns the named unlabeled histogram, or nil.
func (tp *Provider) GetHistogram(name string) *histogram {
	return tp.metrics.histogram(name)
}

// GetLabeledHistogram returns the histogram for one label combination, or
// nil.
func (tp *Provider) GetLabeledHistogram(name, key string) *histogram {
	return tp.metrics.histogram(name + "|" + key)
}

// GetGauge returns the current value of the named gauge.
func (tp *Provider) GetGauge(name string) int64 {
	return tp.metrics.gauge(name)
}

// GetCounter returns the current value of a counter with the given name
// and label values (event_type, operation).
func (tp *Provider) GetCounter(name, eventType, operation string) int64 {
	return tp.metrics.counter(name + "|" + eventType + "|" + operation)
}

// ScheduleOperationCounter increments the schedule.operation.count metric.
// eventType is the kind of calendar entry touched (shift, emergency,
// meeting, event) and operation is what was done to it (schedule, report,
// start, complete, cancel, reschedule).
func (tp *Provider) ScheduleOperationCounter(eventType, operation string) {
	tp.metrics.incCounter(counterScheduleOps + "|" + eventType + "|" + operation)
}

// HealthMetricsRecorder provides methods to update health-related gauges.
type HealthMetricsRecorder struct {
	tp *Provider
}

// HealthMetrics returns a recorder for health-related metrics.
func (tp *Provider) HealthMetrics() *HealthMetricsRecorder {
	return &HealthMetricsRecorder{tp: tp}
}

// SetDBPoolActive sets the db.pool.active_connections gauge.
func (h *HealthMetricsRecorder) SetDBPoolActive(n int64) {
	h.tp.metrics.setGauge("db.pool.active_connections", n)
}

// SetDBPoolIdle sets the db.pool.idle_connections gauge.
func (h *HealthMetricsRecorder) SetDBPoolIdle(n int64) {
	h.tp.metrics.setGauge("db.pool.idle_connections", n)
}

// SetEventsTotal sets the schedule.events.total gauge.
func (h *HealthMetricsRecorder) SetEventsTotal(n int64) {
	h.tp.metrics.setGauge("schedule.events.total", n)
}

// routeOf returns the matched route pattern, falling back to the raw path
// so unmatched requests still produce a label.
func routeOf(c echo.Context) string {
	if route := c.Path(); route != "" {
		return route
	}
	return c.Request().URL.Path
}

// TracingMiddleware returns an Echo middleware that records a span per
// request.
func (tp *Provider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.tracingOn() {
				return next(c)
			}

			start := time.Now()
			req := c.Request()
			err := next(c)
			end := time.Now()

			route := routeOf(c)
			statusCode := c.Response().Status
			status := SpanStatusOK
			if statusCode >= 500 {
				status = SpanStatusError
			}

			attrs := map[string]string{
				"http.method":      req.Method,
				"http.route":       route,
				"http.status_code": fmt.Sprintf("%d", statusCode),
				"http.url":         req.URL.String(),
			}
			if rid, ok := c.Get("request_id").(string); ok && rid != "" {
				attrs["request.id"] = rid
			}

			tp.recordSpan(&Span{
				TraceID:    generateID(16),
				SpanID:     generateID(8),
				Name:       "HTTP " + req.Method + " " + route,
				StartTime:  start,
				EndTime:    end,
				Duration:   end.Sub(start),
				StatusCode: status,
				Attributes: attrs,
			})

			return err
		}
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP server
// metrics.
func (tp *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.metrics.addGauge(metricActiveRequests, 1)
			start := time.Now()
			req := c.Request()

			err := next(c)

			tp.metrics.addGauge(metricActiveRequests, -1)
			duration := time.Since(start).Seconds()
			resp := c.Response()

			tp.metrics.histogramOrCreate(metricRequestDuration, defaultDurationBuckets).Observe(duration)

			key := LabelsKey(req.Method, routeOf(c), fmt.Sprintf("%d", resp.Status))
			tp.metrics.histogramOrCreate(metricRequestDuration+"|"+key, defaultDurationBuckets).Observe(duration)

			if req.ContentLength > 0 {
				tp.metrics.histogramOrCreate(metricRequestSize, defaultSizeBuckets).Observe(float64(req.ContentLength))
			}
			if resp.Size > 0 {
				tp.metrics.histogramOrCreate(metricResponseSize, defaultSizeBuckets).Observe(float64(resp.Size))
			}

			return err
		}
	}
}

// PrometheusHandler returns an Echo handler that serves metrics in
// Prometheus text exposition format.
func (tp *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		tp.writeRequestDurations(&b)

		b.WriteString("# HELP http_server_active_requests Number of active HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", tp.metrics.gauge(metricActiveRequests))

		tp.writeSizeHistogram(&b, "http_server_request_size_bytes",
			"Size of HTTP request bodies in bytes.", metricRequestSize)
		tp.writeSizeHistogram(&b, "http_server_response_size_bytes",
			"Size of HTTP response bodies in bytes.", metricResponseSize)

		tp.writeOperationCounters(&b)
		tp.writeHealthGauges(&b)

		return c.String(http.StatusOK, b.String())
	}
}

// writeRequestDurations emits the duration histogram, one series per
// method/route/status combination observed so far.
func (tp *Provider) writeRequestDurations(b *strings.Builder) {
	const name = "http_server_request_duration_seconds"
	fmt.Fprintf(b, "# HELP %s Duration of HTTP requests in seconds.\n", name)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)

	keys := tp.metrics.histogramKeys(metricRequestDuration)
	for _, key := range keys {
		parts := strings.SplitN(strings.TrimPrefix(key, metricRequestDuration+"|"), "|", 3)
		if len(parts) != 3 {
			continue
		}
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogramSeries(b, name, labels, tp.metrics.histogram(key), defaultDurationBuckets)
	}
	if len(keys) == 0 {
		if h := tp.metrics.histogram(metricRequestDuration); h != nil {
			writeHistogramSeries(b, name, "", h, defaultDurationBuckets)
		}
	}
	b.WriteByte('\n')
}

func (tp *Provider) writeSizeHistogram(b *strings.Builder, name, help, metric string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)
	if h := tp.metrics.histogram(metric); h != nil {
		writeHistogramSeries(b, name, "", h, defaultSizeBuckets)
	}
	b.WriteByte('\n')
}

func (tp *Provider) writeOperationCounters(b *strings.Builder) {
	b.WriteString("# HELP schedule_operation_count Total scheduling operations by event type and operation.\n")
	b.WriteString("# TYPE schedule_operation_count counter\n")
	for key, val := range tp.metrics.counterSnapshot() {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) == 3 && parts[0] == counterScheduleOps {
			fmt.Fprintf(b, "schedule_operation_count{event_type=%q,operation=%q} %d\n",
				parts[1], parts[2], val)
		}
	}
	b.WriteByte('\n')
}

func (tp *Provider) writeHealthGauges(b *strings.Builder) {
	gauges := []struct {
		promName string
		otelName string
		help     string
	}{
		{"db_pool_active_connections", "db.pool.active_connections", "Number of active database pool connections."},
		{"db_pool_idle_connections", "db.pool.idle_connections", "Number of idle database pool connections."},
		{"schedule_events_total", "schedule.events.total", "Total number of scheduled events."},
	}
	for _, g := range gauges {
		fmt.Fprintf(b, "# HELP %s %s\n", g.promName, g.help)
		fmt.Fprintf(b, "# TYPE %s gauge\n", g.promName)
		fmt.Fprintf(b, "%s %d\n\n", g.promName, tp.metrics.gauge(g.otelName))
	}
}

// writeHistogramSeries emits the bucket, sum and count lines for one
// histogram series. labels may be empty for an unlabeled series.
func writeHistogramSeries(b *strings.Builder, name, labels string, h *histogram, bounds []float64) {
	cum := h.cumulativeBuckets()
	total := h.Count()

	labelsPrefix := ""
	labelsSuffix := ""
	if labels != "" {
		labelsPrefix = labels + ","
		labelsSuffix = "{" + labels + "}"
	}

	for i, boundary := range bounds {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, labelsPrefix, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, labelsPrefix, total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, labelsSuffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, labelsSuffix, total)
}

// generateID produces a random hex string of n bytes (2n hex chars).
func generateID(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
