package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	started      time.Time
	requestCount map[string]int64
	requestTime  map[string]time.Duration
	errorCount   map[string]int64
	gauges       map[string]func() int64
}

// CounterSample is one labelled counter value.
type CounterSample struct {
	Path   string  `json:"path"`
	Method string  `json:"method"`
	Label  string  `json:"label"`
	Count  int64   `json:"count"`
	AvgMS  float64 `json:"avg_ms,omitempty"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Requests      []CounterSample  `json:"requests"`
	Errors        []CounterSample  `json:"errors"`
	Gauges        map[string]int64 `json:"gauges"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		started:      time.Now(),
		requestCount: make(map[string]int64),
		requestTime:  make(map[string]time.Duration),
		errorCount:   make(map[string]int64),
		gauges:       make(map[string]func() int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := counterKey(path, method, strconv.Itoa(status))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestTime[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := counterKey(path, method, code)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RegisterGauge reports read() under name in every snapshot.
func (m *Metrics) RegisterGauge(name string, read func() int64) {
	if m == nil || read == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = read
}

// Snapshot copies the counters, sorted by path, method and label.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Requests: []CounterSample{}, Errors: []CounterSample{}, Gauges: map[string]int64{}}
	}
	m.mu.Lock()
	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Requests:      make([]CounterSample, 0, len(m.requestCount)),
		Errors:        make([]CounterSample, 0, len(m.errorCount)),
		Gauges:        make(map[string]int64, len(m.gauges)),
	}
	for key, count := range m.requestCount {
		sample := sampleFor(key, count)
		sample.AvgMS = float64(m.requestTime[key].Microseconds()) / float64(count) / 1000
		snap.Requests = append(snap.Requests, sample)
	}
	for key, count := range m.errorCount {
		snap.Errors = append(snap.Errors, sampleFor(key, count))
	}
	gauges := make(map[string]func() int64, len(m.gauges))
	for name, read := range m.gauges {
		gauges[name] = read
	}
	m.mu.Unlock()

	for name, read := range gauges {
		snap.Gauges[name] = read()
	}
	sortSamples(snap.Requests)
	sortSamples(snap.Errors)
	return snap
}

func counterKey(path, method, label string) string {
	return path + "|" + method + "|" + label
}

func sampleFor(key string, count int64) CounterSample {
	parts := strings.SplitN(key, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return CounterSample{Path: parts[0], Method: parts[1], Label: parts[2], Count: count}
}

func sortSamples(samples []CounterSample) {
	sort.Slice(samples, func(i, j int) bool {
		a, b := samples[i], samples[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Label < b.Label
	})
}
