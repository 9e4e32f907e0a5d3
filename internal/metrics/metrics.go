package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric names.
const (
	Conversions       = "conversions_total"
	UpstreamFetches   = "upstream_fetch_total"
	RegionGroups      = "region_groups"
	ConversionLatency = "conversion_latency_seconds"
)

var help = map[string]string{
	Conversions:       "Total number of conversions by outcome",
	UpstreamFetches:   "Total number of upstream subscription fetches",
	RegionGroups:      "Region groups emitted by the last conversion",
	ConversionLatency: "Conversion latency in seconds",
}

// Default buckets: .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5
var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// Registry holds metrics.
type Registry struct {
	mu sync.RWMutex
	// Key is "name|labels"
	counters   map[string]uint64
	gauges     map[string]int64
	histograms map[string]*Histogram
}

type Histogram struct {
	Count   uint64
	Sum     float64
	Buckets []float64
	Counts  []uint64
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]uint64),
		gauges:     make(map[string]int64),
		histograms: make(map[string]*Histogram),
	}
}

// IncConversion counts a conversion; status is the HTTP status or "ok"/"error" in CLI mode.
func (r *Registry) IncConversion(profile, status string) {
	key := fmt.Sprintf("%s|profile=%q,status=%q", Conversions, profile, status)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key]++
}

func (r *Registry) IncFetch(profile, result string) {
	key := fmt.Sprintf("%s|profile=%q,result=%q", UpstreamFetches, profile, result)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key]++
}

func (r *Registry) SetRegionGroups(profile string, n int) {
	key := fmt.Sprintf("%s|profile=%q", RegionGroups, profile)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[key] = int64(n)
}

func (r *Registry) ObserveConversion(profile string, duration time.Duration) {
	key := fmt.Sprintf("%s|profile=%q", ConversionLatency, profile)
	val := duration.Seconds()

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.histograms[key]
	if !ok {
		h = &Histogram{
			Buckets: latencyBuckets,
			Counts:  make([]uint64, len(latencyBuckets)),
		}
		r.histograms[key] = h
	}

	h.Count++
	h.Sum += val
	for i, b := range h.Buckets {
		if val <= b {
			h.Counts[i]++
		}
	}
}

func (r *Registry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Counters
	writeFamilies(w, sortedKeys(r.counters), "counter", func(name, labels, key string) {
		_, _ = fmt.Fprintf(w, "%s{%s} %d\n", name, labels, r.counters[key])
	})

	// Gauges
	writeFamilies(w, sortedKeys(r.gauges), "gauge", func(name, labels, key string) {
		_, _ = fmt.Fprintf(w, "%s{%s} %d\n", name, labels, r.gauges[key])
	})

	// Histograms
	writeFamilies(w, sortedKeys(r.histograms), "histogram", func(name, labels, key string) {
		h := r.histograms[key]
		for i, b := range h.Buckets {
			_, _ = fmt.Fprintf(w, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, b, h.Counts[i])
		}
		_, _ = fmt.Fprintf(w, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.Count)
		_, _ = fmt.Fprintf(w, "%s_sum{%s} %g\n", name, labels, h.Sum)
		_, _ = fmt.Fprintf(w, "%s_count{%s} %d\n", name, labels, h.Count)
	})
}

// writeFamilies emits HELP/TYPE once per metric name; keys must be sorted.
func writeFamilies(w io.Writer, keys []string, typ string, sample func(name, labels, key string)) {
	last := ""
	for _, k := range keys {
		name, labels, ok := strings.Cut(k, "|")
		if !ok {
			continue
		}
		if name != last {
			_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help[name])
			_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
			last = name
		}
		sample(name, labels, k)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
