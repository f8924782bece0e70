package metrics

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

type family interface {
	write(w io.Writer)
}

// registry is appended to by the constructors during package init.
var registry []family

type counter struct {
	name, help string
	n          atomic.Uint64
}

func newCounter(name, help string) *counter {
	c := &counter{name: name, help: help}
	registry = append(registry, c)
	return c
}

func (c *counter) inc() { c.n.Add(1) }

func (c *counter) write(w io.Writer) {
	header(w, c.name, c.help, "counter")
	fmt.Fprintf(w, "%s %d\n", c.name, c.n.Load())
}

type labeled struct {
	name, help, label string

	mu     sync.Mutex
	values map[string]uint64
}

func newLabeled(name, help, label string) *labeled {
	l := &labeled{name: name, help: help, label: label, values: map[string]uint64{}}
	registry = append(registry, l)
	return l
}

func (l *labeled) inc(value string) {
	if value == "" {
		value = "unknown"
	}
	l.mu.Lock()
	l.values[value]++
	l.mu.Unlock()
}

func (l *labeled) write(w io.Writer) {
	l.mu.Lock()
	keys := make([]string, 0, len(l.values))
	for k := range l.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s{%s=%q} %d\n", l.name, l.label, k, l.values[k])
	}
	l.mu.Unlock()

	header(w, l.name, l.help, "counter")
	for _, line := range lines {
		io.WriteString(w, line)
	}
}

// histogram stores per-bucket counts; write accumulates them into Prometheus le buckets.
type histogram struct {
	name, help string
	bounds     []float64

	mu     sync.Mutex
	counts []uint64
	sum    float64
	total  uint64
}

func newHistogram(name, help string, bounds ...float64) *histogram {
	h := &histogram{name: name, help: help, bounds: bounds, counts: make([]uint64, len(bounds))}
	registry = append(registry, h)
	return h
}

// observe counts v once, in the first bucket whose bound covers it.
func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total++
	h.sum += v
	if i, _ := slices.BinarySearch(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

func (h *histogram) write(w io.Writer) {
	h.mu.Lock()
	counts := slices.Clone(h.counts)
	sum, total := h.sum, h.total
	h.mu.Unlock()

	header(w, h.name, h.help, "histogram")
	var cum uint64
	for i, bound := range h.bounds {
		cum += counts[i]
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), cum)
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, total)
	fmt.Fprintf(w, "%s_sum %s\n%s_count %d\n", h.name, formatFloat(sum), h.name, total)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
