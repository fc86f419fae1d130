// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// In-memory metrics Sink with snapshot export and a bounded log of recent writes.

package control

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-echo/api"
)

// DefaultEventCapacity is the number of recent events a Recorder keeps.
const DefaultEventCapacity = 1024

// Event is one accepted write to a Recorder.
type Event struct {
	Metric api.Metric
	Value  float64
	At     time.Time
}

// HistogramSummary aggregates the observations of one histogram.
type HistogramSummary struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

// Recorder is an api.Sink that keeps running totals in memory.
// It backs the log exporter and the debug probes, and doubles as the
// recording sink in tests.
type Recorder struct {
	mu       sync.Mutex
	counters map[api.Metric]int64
	hists    map[api.Metric]*HistogramSummary
	events   *queue.Queue
	capacity int
	updated  time.Time
}

var _ api.Sink = (*Recorder)(nil)

// NewRecorder creates an empty Recorder keeping at most capacity recent
// events; capacity <= 0 selects DefaultEventCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &Recorder{
		counters: make(map[api.Metric]int64),
		hists:    make(map[api.Metric]*HistogramSummary),
		events:   queue.New(),
		capacity: capacity,
	}
}

// Incr adds one to a counter.
func (r *Recorder) Incr(m api.Metric) {
	if m.Kind() != api.KindCounter {
		return
	}
	r.mu.Lock()
	r.counters[m]++
	r.pushLocked(m, 1)
	r.mu.Unlock()
}

// Add applies delta to an up/down counter.
func (r *Recorder) Add(m api.Metric, delta int64) {
	if m.Kind() != api.KindUpDownCounter {
		return
	}
	r.mu.Lock()
	r.counters[m] += delta
	r.pushLocked(m, float64(delta))
	r.mu.Unlock()
}

// Observe records value into a histogram.
func (r *Recorder) Observe(m api.Metric, value float64) {
	if m.Kind() != api.KindHistogram {
		return
	}
	r.mu.Lock()
	h, ok := r.hists[m]
	if !ok {
		h = &HistogramSummary{Min: value, Max: value}
		r.hists[m] = h
	}
	h.Count++
	h.Sum += value
	h.Min = min(h.Min, value)
	h.Max = max(h.Max, value)
	r.pushLocked(m, value)
	r.mu.Unlock()
}

func (r *Recorder) pushLocked(m api.Metric, v float64) {
	r.updated = time.Now()
	r.events.Add(Event{Metric: m, Value: v, At: r.updated})
	for r.events.Length() > r.capacity {
		r.events.Remove()
	}
}

// Value returns the running total of a counter or up/down counter.
func (r *Recorder) Value(m api.Metric) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[m]
}

// Histogram returns the summary of a histogram.
func (r *Recorder) Histogram(m api.Metric) HistogramSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hists[m]; ok {
		return *h
	}
	return HistogramSummary{}
}

// Events returns the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, r.events.Length())
	for i := range out {
		out[i] = r.events.Get(i).(Event)
	}
	return out
}

// Observations returns the retained values written to m, oldest first.
func (r *Recorder) Observations(m api.Metric) []float64 {
	var out []float64
	for _, e := range r.Events() {
		if e.Metric == m {
			out = append(out, e.Value)
		}
	}
	return out
}

// Snapshot returns the current totals keyed by exported metric name.
// Histograms contribute "<name>_count" and "<name>_sum".
func (r *Recorder) Snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(api.Metrics)+len(r.hists))
	for _, m := range api.Metrics {
		switch m.Kind() {
		case api.KindHistogram:
			h := r.hists[m]
			if h == nil {
				h = &HistogramSummary{}
			}
			out[m.String()+"_count"] = h.Count
			out[m.String()+"_sum"] = h.Sum
		default:
			out[m.String()] = r.counters[m]
		}
	}
	return out
}

// Updated returns the time of the last accepted write.
func (r *Recorder) Updated() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updated
}

// Tee returns a Sink that forwards every write to each non-nil sink in order.
func Tee(sinks ...api.Sink) api.Sink {
	out := make(teeSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return api.NopSink{}
	case 1:
		return out[0]
	}
	return out
}

type teeSink []api.Sink

func (t teeSink) Incr(m api.Metric) {
	for _, s := range t {
		s.Incr(m)
	}
}

func (t teeSink) Add(m api.Metric, delta int64) {
	for _, s := range t {
		s.Add(m, delta)
	}
}

func (t teeSink) Observe(m api.Metric, value float64) {
	for _, s := range t {
		s.Observe(m, value)
	}
}
