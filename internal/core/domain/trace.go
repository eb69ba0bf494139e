package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trace is a named, host-defined performance trace with counters.
type Trace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	counters map[string]int64
	attrs    attributes
}

// NewTrace creates an unstarted trace.
func NewTrace(name string) *Trace {
	return &Trace{
		ID:       NewUUIDv7(),
		Name:     name,
		counters: make(map[string]int64),
		attrs:    make(attributes),
	}
}

// Start marks the trace as running. Starting twice keeps the first start.
func (t *Trace) Start() {
	if t.StartTime.IsZero() {
		t.StartTime = time.Now()
	}
}

// Started reports whether Start has been called.
func (t *Trace) Started() bool {
	return !t.StartTime.IsZero()
}

// Stop marks the trace as finished.
func (t *Trace) Stop() {
	if t.EndTime.IsZero() {
		t.EndTime = time.Now()
	}
}

// Duration returns the time between start and stop.
func (t *Trace) Duration() time.Duration {
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// IncrementMetric adds delta to a counter, creating it when missing.
func (t *Trace) IncrementMetric(name string, delta int64) {
	if name == "" {
		return
	}
	t.counters[name] += delta
}

// PutMetric sets a counter to value.
func (t *Trace) PutMetric(name string, value int64) {
	if name == "" {
		return
	}
	t.counters[name] = value
}

// LongMetric returns a counter value, or 0 when unset.
func (t *Trace) LongMetric(name string) int64 {
	return t.counters[name]
}

// Metrics returns a copy of all counters.
func (t *Trace) Metrics() map[string]int64 {
	out := make(map[string]int64, len(t.counters))
	for k, v := range t.counters {
		out[k] = v
	}
	return out
}

// Attribute returns a custom attribute, or "" when unset.
func (t *Trace) Attribute(key string) string {
	return t.attrs[key]
}

// PutAttribute sets a custom attribute.
func (t *Trace) PutAttribute(key, value string) bool {
	return t.attrs.put(key, value)
}

// RemoveAttribute deletes a custom attribute.
func (t *Trace) RemoveAttribute(key string) {
	delete(t.attrs, key)
}

// Attributes returns a copy of the custom attributes.
func (t *Trace) Attributes() map[string]string {
	return t.attrs.copy()
}
