// Package metrics exposes bot counters in Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry()

// Registry holds counters, gauges and histograms keyed by name and labels.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

type series struct {
	name   string
	help   string
	labels string
}

func (s series) key() string { return s.name + "{" + s.labels + "}" }

func (s series) ident(suffix string) string {
	if s.labels == "" {
		return s.name + suffix
	}
	return s.name + suffix + "{" + s.labels + "}"
}

// Counter only goes up.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram keeps cumulative bucket counts.
type Histogram struct {
	series
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (r *Registry) Counter(name, help, labels string) *Counter {
	s := series{name: name, help: help, labels: labels}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[s.key()]; ok {
		return c
	}
	c := &Counter{series: s}
	r.counters[s.key()] = c
	return c
}

func (r *Registry) Gauge(name, help, labels string) *Gauge {
	s := series{name: name, help: help, labels: labels}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[s.key()]; ok {
		return g
	}
	g := &Gauge{series: s}
	r.gauges[s.key()] = g
	return g
}

func (r *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	s := series{name: name, help: help, labels: labels}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[s.key()]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{series: s, bounds: bounds, counts: make([]int64, len(bounds))}
	r.histograms[s.key()] = h
	return h
}

// WriteTo renders every series sorted by name.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	fmt.Fprintf(cw, "# HELP mangabot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(cw, "# TYPE mangabot_uptime_seconds gauge\n")
	fmt.Fprintf(cw, "mangabot_uptime_seconds %d\n", int64(time.Since(r.startTime).Seconds()))

	r.mu.RLock()
	counters := sortedValues(r.counters)
	gauges := sortedValues(r.gauges)
	histograms := sortedValues(r.histograms)
	r.mu.RUnlock()

	header := headerWriter(cw)
	for _, c := range counters {
		header(c.series, "counter")
		fmt.Fprintf(cw, "%s %d\n", c.ident(""), c.Value())
	}
	for _, g := range gauges {
		header(g.series, "gauge")
		fmt.Fprintf(cw, "%s %d\n", g.ident(""), g.Value())
	}
	for _, h := range histograms {
		header(h.series, "histogram")
		h.mu.Lock()
		for i, le := range h.bounds {
			fmt.Fprintf(cw, "%s %d\n", bucketIdent(h.series, fmt.Sprintf("%g", le)), h.counts[i])
		}
		fmt.Fprintf(cw, "%s %d\n", bucketIdent(h.series, "+Inf"), h.count)
		fmt.Fprintf(cw, "%s %d\n", h.ident("_count"), h.count)
		fmt.Fprintf(cw, "%s %f\n", h.ident("_sum"), h.sum)
		h.mu.Unlock()
	}
	return cw.n, cw.err
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	}
}

func headerWriter(w io.Writer) func(series, string) {
	written := make(map[string]bool)
	return func(s series, kind string) {
		if written[s.name] {
			return
		}
		written[s.name] = true
		fmt.Fprintf(w, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", s.name, kind)
	}
}

func bucketIdent(s series, le string) string {
	if s.labels == "" {
		return fmt.Sprintf("%s_bucket{le=%q}", s.name, le)
	}
	return fmt.Sprintf("%s_bucket{%s,le=%q}", s.name, s.labels, le)
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15}

var (
	MessagesTotal    = Collector.Counter("mangabot_messages_total", "Inbound text messages handled", "")
	DuplicatesTotal  = Collector.Counter("mangabot_duplicate_messages_total", "Webhook redeliveries dropped", "")
	SearchesTotal    = Collector.Counter("mangabot_searches_total", "Title searches attempted", "")
	NotFoundTotal    = Collector.Counter("mangabot_searches_not_found_total", "Title searches that found nothing", "")
	ChapterRequests  = Collector.Counter("mangabot_chapter_requests_total", "Chapter selections handled", "")
	ResetsTotal      = Collector.Counter("mangabot_resets_total", "Reset keyword messages", "")
	TextsSent        = Collector.Counter("mangabot_texts_sent_total", "Text messages delivered", "")
	ImagesSent       = Collector.Counter("mangabot_images_sent_total", "Image messages delivered", "")
	SendFailures     = Collector.Counter("mangabot_send_failures_total", "Outbound sends that failed", "")
	ActiveSessions   = Collector.Gauge("mangabot_active_sessions", "Users currently browsing a title", "")
	ActiveDeliveries = Collector.Gauge("mangabot_active_deliveries", "Delivery batches in progress", "")

	ListingLatency = Collector.Histogram("mangabot_extraction_seconds", "Page fetch and parse latency", `page="listing"`, latencyBuckets)
	ChapterLatency = Collector.Histogram("mangabot_extraction_seconds", "Page fetch and parse latency", `page="chapter"`, latencyBuckets)
)
