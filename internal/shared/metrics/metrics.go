package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	loginSucceededTotal   atomic.Uint64
	loginFailedTotal      atomic.Uint64
	documentsUploaded     atomic.Uint64
	searchesTotal         atomic.Uint64
	schedulerTickFailures atomic.Uint64

	transitions = newLabeledCounter()

	extractionDuration = newHistogram([]float64{1000, 2000, 4000, 6000, 8000, 15000, 60000, 300000})
)

// IncLoginSucceeded increments the successful login counter.
func IncLoginSucceeded() {
	loginSucceededTotal.Add(1)
}

// IncLoginFailed increments the failed login counter.
func IncLoginFailed() {
	loginFailedTotal.Add(1)
}

// AddDocumentsUploaded adds n uploaded documents.
func AddDocumentsUploaded(n int) {
	if n <= 0 {
		return
	}
	documentsUploaded.Add(uint64(n))
}

// IncSearches increments the search counter.
func IncSearches() {
	searchesTotal.Add(1)
}

// IncSchedulerTickFailures counts scheduler ticks that hit a store error.
func IncSchedulerTickFailures() {
	schedulerTickFailures.Add(1)
}

// IncStatusTransition counts a document entering status.
func IncStatusTransition(status string) {
	transitions.Inc(status)
}

// ObserveExtractionDurationMs records upload-to-completion time in milliseconds.
func ObserveExtractionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	extractionDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "login_succeeded_total", "Total successful logins", loginSucceededTotal.Load())
	writeCounter(&buf, "login_failed_total", "Total rejected logins", loginFailedTotal.Load())
	writeCounter(&buf, "documents_uploaded_total", "Total documents uploaded", documentsUploaded.Load())
	writeCounter(&buf, "searches_total", "Total simulated searches", searchesTotal.Load())
	writeCounter(&buf, "scheduler_tick_failures_total", "Scheduler ticks that failed", schedulerTickFailures.Load())
	writeLabeledCounter(&buf, "document_status_transitions_total", "Document status transitions", "status", transitions.Snapshot())
	writeHistogram(&buf, "extraction_duration_ms", "Upload to OCR_COMPLETE in milliseconds", extractionDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(label string) {
	l.mu.Lock()
	l.values[label]++
	l.mu.Unlock()
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
