package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewUUIDv7 generates a new UUIDv7 (time-ordered).
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Custom attribute limits applied to traces and HTTP metrics.
// Values outside these limits are dropped without error.
const (
	MaxAttributes        = 5
	MaxAttributeKeyLen   = 40
	MaxAttributeValueLen = 100
)

// attributes holds custom attributes subject to the limits above.
type attributes map[string]string

func (a attributes) put(key, value string) bool {
	if key == "" || len(key) > MaxAttributeKeyLen || len(value) > MaxAttributeValueLen {
		return false
	}
	if _, exists := a[key]; !exists && len(a) >= MaxAttributes {
		return false
	}
	a[key] = value
	return true
}

func (a attributes) copy() map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// HTTPMetric measures a single network request issued by the host.
type HTTPMetric struct {
	ID                  uuid.UUID `json:"id"`
	URL                 string    `json:"url"`
	Method              string    `json:"method"`
	ResponseCode        int       `json:"response_code,omitempty"`
	RequestPayloadSize  int64     `json:"request_payload_size,omitempty"`
	ResponsePayloadSize int64     `json:"response_payload_size,omitempty"`
	ResponseContentType string    `json:"response_content_type,omitempty"`

	StartTime       time.Time `json:"start_time"`
	RequestComplete time.Time `json:"request_complete,omitempty"`
	ResponseStart   time.Time `json:"response_start,omitempty"`
	EndTime         time.Time `json:"end_time"`

	attrs attributes
}

// NewHTTPMetric creates an unstarted metric for the given request.
func NewHTTPMetric(url, method string) *HTTPMetric {
	return &HTTPMetric{
		ID:     NewUUIDv7(),
		URL:    url,
		Method: method,
		attrs:  make(attributes),
	}
}

// Start records the start time. Starting twice keeps the first start.
func (m *HTTPMetric) Start() {
	if m.StartTime.IsZero() {
		m.StartTime = time.Now()
	}
}

// Started reports whether Start has been called.
func (m *HTTPMetric) Started() bool {
	return !m.StartTime.IsZero()
}

// Stop records the end time.
func (m *HTTPMetric) Stop() {
	if m.EndTime.IsZero() {
		m.EndTime = time.Now()
	}
}

// Duration returns the time between start and stop.
func (m *HTTPMetric) Duration() time.Duration {
	if m.StartTime.IsZero() || m.EndTime.IsZero() {
		return 0
	}
	return m.EndTime.Sub(m.StartTime)
}

// MarkRequestComplete records when the request body finished sending.
func (m *HTTPMetric) MarkRequestComplete() {
	m.RequestComplete = time.Now()
}

// MarkResponseStart records when the first response byte arrived.
func (m *HTTPMetric) MarkResponseStart() {
	m.ResponseStart = time.Now()
}

// Attribute returns a custom attribute, or "" when unset.
func (m *HTTPMetric) Attribute(key string) string {
	return m.attrs[key]
}

// PutAttribute sets a custom attribute.
func (m *HTTPMetric) PutAttribute(key, value string) bool {
	return m.attrs.put(key, value)
}

// RemoveAttribute deletes a custom attribute.
func (m *HTTPMetric) RemoveAttribute(key string) {
	delete(m.attrs, key)
}

// Attributes returns a copy of the custom attributes.
func (m *HTTPMetric) Attributes() map[string]string {
	return m.attrs.copy()
}

// Sample is a single exported performance data point.
type Sample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp time.Time         `json:"timestamp"`
}
