package services

import (
	"context"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/handle"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

// PerformanceService owns in-flight HTTP metrics and traces.
// Stopping a resource releases its handle and hands it to the sink.
type PerformanceService struct {
	metrics *handle.Registry[*domain.HTTPMetric]
	traces  *handle.Registry[*domain.Trace]
	sink    ports.PerformanceSink
	runner  ports.Runner
	logger  ports.Logger
}

// NewPerformanceService creates a performance service. A nil sink discards
// stopped resources.
func NewPerformanceService(sink ports.PerformanceSink, runner ports.Runner, logger ports.Logger) *PerformanceService {
	s := &PerformanceService{
		metrics: handle.New[*domain.HTTPMetric](),
		traces:  handle.New[*domain.Trace](),
		sink:    sink,
		runner:  runner,
		logger:  logger.With("component", "performance"),
	}
	s.metrics.Subscribe(func(kind handle.EventKind, id handle.ID) {
		s.logger.Debug("HTTP metric handle "+kind.String(), "handle", id)
	})
	s.traces.Subscribe(func(kind handle.EventKind, id handle.ID) {
		s.logger.Debug("Trace handle "+kind.String(), "handle", id)
	})
	return s
}

// Metrics exposes the HTTP metric registry.
func (s *PerformanceService) Metrics() *handle.Registry[*domain.HTTPMetric] {
	return s.metrics
}

// Traces exposes the trace registry.
func (s *PerformanceService) Traces() *handle.Registry[*domain.Trace] {
	return s.traces
}

// NewHTTPMetric allocates an unstarted metric.
func (s *PerformanceService) NewHTTPMetric(url, method string) handle.ID {
	return s.metrics.Allocate(domain.NewHTTPMetric(url, method))
}

func (s *PerformanceService) withMetric(h handle.ID, fn func(*domain.HTTPMetric)) {
	s.metrics.With(h, fn)
}

// StartHTTPMetric starts the metric behind h.
func (s *PerformanceService) StartHTTPMetric(h handle.ID) {
	s.withMetric(h, (*domain.HTTPMetric).Start)
}

// StopHTTPMetric stops the metric, releases h and records it.
// A metric that was never started is released without being recorded.
func (s *PerformanceService) StopHTTPMetric(ctx context.Context, h handle.ID) {
	m, ok := s.metrics.Release(h)
	if !ok {
		return
	}
	if !m.Started() {
		s.logger.Debug("Discarding unstarted HTTP metric", "url", m.URL)
		return
	}
	m.Stop()
	if s.sink == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.runner.Do(func() {
		if err := s.sink.RecordHTTPMetric(ctx, m); err != nil {
			s.logger.Warn("Failed to record HTTP metric", "url", m.URL, "error", err)
		}
	})
}

// SetHTTPResponseCode sets the response status code.
func (s *PerformanceService) SetHTTPResponseCode(h handle.ID, code int) {
	s.withMetric(h, func(m *domain.HTTPMetric) { m.ResponseCode = code })
}

// SetRequestPayloadSize sets the request size in bytes.
func (s *PerformanceService) SetRequestPayloadSize(h handle.ID, bytes int64) {
	s.withMetric(h, func(m *domain.HTTPMetric) { m.RequestPayloadSize = bytes })
}

// SetResponsePayloadSize sets the response size in bytes.
func (s *PerformanceService) SetResponsePayloadSize(h handle.ID, bytes int64) {
	s.withMetric(h, func(m *domain.HTTPMetric) { m.ResponsePayloadSize = bytes })
}

// SetResponseContentType sets the response content type.
func (s *PerformanceService) SetResponseContentType(h handle.ID, contentType string) {
	s.withMetric(h, func(m *domain.HTTPMetric) { m.ResponseContentType = contentType })
}

// MarkRequestComplete marks the end of the request upload.
func (s *PerformanceService) MarkRequestComplete(h handle.ID) {
	s.withMetric(h, (*domain.HTTPMetric).MarkRequestComplete)
}

// MarkResponseStart marks the arrival of the first response byte.
func (s *PerformanceService) MarkResponseStart(h handle.ID) {
	s.withMetric(h, (*domain.HTTPMetric).MarkResponseStart)
}

// HTTPMetricAttribute returns an attribute, or "" for absent handles.
func (s *PerformanceService) HTTPMetricAttribute(h handle.ID, key string) string {
	var v string
	s.withMetric(h, func(m *domain.HTTPMetric) { v = m.Attribute(key) })
	return v
}

// PutHTTPMetricAttribute sets an attribute within the attribute limits.
func (s *PerformanceService) PutHTTPMetricAttribute(h handle.ID, key, value string) {
	s.withMetric(h, func(m *domain.HTTPMetric) {
		if !m.PutAttribute(key, value) {
			s.logger.Debug("HTTP metric attribute rejected", "handle", h, "key", key)
		}
	})
}

// RemoveHTTPMetricAttribute removes an attribute.
func (s *PerformanceService) RemoveHTTPMetricAttribute(h handle.ID, key string) {
	s.withMetric(h, func(m *domain.HTTPMetric) { m.RemoveAttribute(key) })
}

// NewTrace allocates an unstarted trace.
func (s *PerformanceService) NewTrace(name string) handle.ID {
	return s.traces.Allocate(domain.NewTrace(name))
}

func (s *PerformanceService) withTrace(h handle.ID, fn func(*domain.Trace)) {
	s.traces.With(h, fn)
}

// StartTrace starts the trace behind h.
func (s *PerformanceService) StartTrace(h handle.ID) {
	s.withTrace(h, (*domain.Trace).Start)
}

// StopTrace stops the trace, releases h and records it.
// A trace that was never started is released without being recorded.
func (s *PerformanceService) StopTrace(ctx context.Context, h handle.ID) {
	t, ok := s.traces.Release(h)
	if !ok {
		return
	}
	if !t.Started() {
		s.logger.Debug("Discarding unstarted trace", "trace", t.Name)
		return
	}
	t.Stop()
	if s.sink == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.runner.Do(func() {
		if err := s.sink.RecordTrace(ctx, t); err != nil {
			s.logger.Warn("Failed to record trace", "trace", t.Name, "error", err)
		}
	})
}

// TraceAttribute returns an attribute, or "" for absent handles.
func (s *PerformanceService) TraceAttribute(h handle.ID, key string) string {
	var v string
	s.withTrace(h, func(t *domain.Trace) { v = t.Attribute(key) })
	return v
}

// PutTraceAttribute sets an attribute within the attribute limits.
func (s *PerformanceService) PutTraceAttribute(h handle.ID, key, value string) {
	s.withTrace(h, func(t *domain.Trace) {
		if !t.PutAttribute(key, value) {
			s.logger.Debug("Trace attribute rejected", "handle", h, "key", key)
		}
	})
}

// RemoveTraceAttribute removes an attribute.
func (s *PerformanceService) RemoveTraceAttribute(h handle.ID, key string) {
	s.withTrace(h, func(t *domain.Trace) { t.RemoveAttribute(key) })
}

// IncrementTraceMetric adds delta to a trace counter.
func (s *PerformanceService) IncrementTraceMetric(h handle.ID, name string, delta int64) {
	s.withTrace(h, func(t *domain.Trace) { t.IncrementMetric(name, delta) })
}

// TraceLongMetric returns a trace counter, or 0 for absent handles.
func (s *PerformanceService) TraceLongMetric(h handle.ID, name string) int64 {
	var v int64
	s.withTrace(h, func(t *domain.Trace) { v = t.LongMetric(name) })
	return v
}

// PutTraceMetric sets a trace counter.
func (s *PerformanceService) PutTraceMetric(h handle.ID, name string, value int64) {
	s.withTrace(h, func(t *domain.Trace) { t.PutMetric(name, value) })
}

// Close discards every live metric and trace.
func (s *PerformanceService) Close() {
	m := s.metrics.Close()
	t := s.traces.Close()
	if len(m)+len(t) > 0 {
		s.logger.Debug("Discarded live performance resources", "metrics", len(m), "traces", len(t))
	}
}
