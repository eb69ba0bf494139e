package services

import (
	"context"
	"testing"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPerformance() (*PerformanceService, *fakePerfSink) {
	sink := &fakePerfSink{}
	return NewPerformanceService(sink, bg.Sync{}, &NopLogger{}), sink
}

func TestHTTPMetricLifecycle(t *testing.T) {
	svc, sink := newTestPerformance()
	ctx := context.Background()

	h := svc.NewHTTPMetric("https://api.example.com/items", "GET")
	require.Equal(t, 0, h)

	svc.StartHTTPMetric(h)
	svc.SetHTTPResponseCode(h, 200)
	svc.SetRequestPayloadSize(h, 12)
	svc.SetResponsePayloadSize(h, 3400)
	svc.SetResponseContentType(h, "application/json")
	svc.MarkRequestComplete(h)
	svc.MarkResponseStart(h)
	svc.PutHTTPMetricAttribute(h, "region", "eu")
	assert.Equal(t, "eu", svc.HTTPMetricAttribute(h, "region"))

	svc.StopHTTPMetric(ctx, h)

	require.Len(t, sink.metrics, 1)
	m := sink.metrics[0]
	assert.Equal(t, 200, m.ResponseCode)
	assert.Equal(t, int64(12), m.RequestPayloadSize)
	assert.Equal(t, int64(3400), m.ResponsePayloadSize)
	assert.Equal(t, "application/json", m.ResponseContentType)
	assert.Equal(t, map[string]string{"region": "eu"}, m.Attributes())
	assert.False(t, m.EndTime.IsZero())

	assert.Equal(t, 0, svc.Metrics().Len(), "stop releases the handle")
	assert.Equal(t, "", svc.HTTPMetricAttribute(h, "region"))
	assert.Equal(t, 0, svc.NewHTTPMetric("https://x", "GET"), "released handle is reused")
}

func TestStopUnstartedMetric(t *testing.T) {
	svc, sink := newTestPerformance()

	h := svc.NewHTTPMetric("https://x", "GET")
	svc.StopHTTPMetric(context.Background(), h)

	assert.Empty(t, sink.metrics)
	assert.Equal(t, 0, svc.Metrics().Len())
}

func TestAbsentHandlesAreHarmless(t *testing.T) {
	svc, sink := newTestPerformance()
	ctx := context.Background()

	svc.StartHTTPMetric(3)
	svc.SetHTTPResponseCode(3, 500)
	svc.RemoveHTTPMetricAttribute(3, "a")
	svc.StopHTTPMetric(ctx, 3)
	svc.StartTrace(3)
	svc.IncrementTraceMetric(3, "n", 1)
	svc.StopTrace(ctx, 3)

	assert.Equal(t, "", svc.TraceAttribute(3, "a"))
	assert.Equal(t, int64(0), svc.TraceLongMetric(3, "n"))
	assert.Empty(t, sink.metrics)
	assert.Empty(t, sink.traces)
}

func TestTraceLifecycle(t *testing.T) {
	svc, sink := newTestPerformance()

	h := svc.NewTrace("level_load")
	svc.StartTrace(h)
	svc.IncrementTraceMetric(h, "assets", 3)
	svc.IncrementTraceMetric(h, "assets", 2)
	svc.PutTraceMetric(h, "retries", 1)
	assert.Equal(t, int64(5), svc.TraceLongMetric(h, "assets"))

	svc.PutTraceAttribute(h, "level", "1-1")
	svc.PutTraceAttribute(h, "temp", "x")
	svc.RemoveTraceAttribute(h, "temp")

	svc.StopTrace(context.Background(), h)

	require.Len(t, sink.traces, 1)
	tr := sink.traces[0]
	assert.Equal(t, "level_load", tr.Name)
	assert.Equal(t, map[string]int64{"assets": 5, "retries": 1}, tr.Metrics())
	assert.Equal(t, map[string]string{"level": "1-1"}, tr.Attributes())
	assert.Equal(t, 0, svc.Traces().Len())
}

func TestTraceAndMetricRegistriesIndependent(t *testing.T) {
	svc, _ := newTestPerformance()

	assert.Equal(t, 0, svc.NewTrace("a"))
	assert.Equal(t, 0, svc.NewHTTPMetric("https://x", "GET"))
	assert.Equal(t, 1, svc.NewTrace("b"))
}

func TestPerformanceClose(t *testing.T) {
	svc, sink := newTestPerformance()
	svc.StartTrace(svc.NewTrace("a"))
	svc.NewHTTPMetric("https://x", "GET")

	svc.Close()

	assert.Equal(t, 0, svc.Traces().Len())
	assert.Equal(t, 0, svc.Metrics().Len())
	assert.Empty(t, sink.traces)
}

func TestPerformanceWithoutSink(t *testing.T) {
	svc := NewPerformanceService(nil, bg.Sync{}, &NopLogger{})

	h := svc.NewTrace("a")
	svc.StartTrace(h)
	svc.StopTrace(context.Background(), h)

	assert.Equal(t, 0, svc.Traces().Len())
}
