package services

import (
	"context"
	"testing"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/forge-platform/firebridge/internal/core/handle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalytics() (*AnalyticsService, *fakeAnalyticsSink) {
	sink := &fakeAnalyticsSink{}
	return NewAnalyticsService(sink, bg.Sync{}, &NopLogger{}), sink
}

func TestBundleEventScenario(t *testing.T) {
	svc, sink := newTestAnalytics()
	ctx := context.Background()

	h := svc.NewBundle()
	require.Equal(t, 0, h)
	svc.PutString(h, "k", "v")
	svc.LogEventBundle(ctx, "evt", h)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "evt", sink.events[0].Name)
	assert.Equal(t, map[string]any{"k": "v"}, sink.events[0].Params)

	svc.PutString(h, "k", "changed")
	_, live := svc.Bundles().Get(h)
	assert.False(t, live, "handle released by the event")
	assert.Equal(t, map[string]any{"k": "v"}, sink.events[0].Params)

	svc.LogEventBundle(ctx, "evt", h)
	assert.Len(t, sink.events, 1)
}

func TestBundleTypedValues(t *testing.T) {
	svc, sink := newTestAnalytics()

	h := svc.NewBundle()
	svc.PutInt(h, "level", 7)
	svc.PutFloat(h, "score", 1.5)
	svc.LogEventBundle(context.Background(), "level_up", h)

	require.Len(t, sink.events, 1)
	assert.Equal(t, int64(7), sink.events[0].Params["level"])
	assert.Equal(t, 1.5, sink.events[0].Params["score"])
}

func TestPutBundleArray(t *testing.T) {
	svc, sink := newTestAnalytics()

	parent := svc.NewBundle()
	a := svc.NewBundle()
	b := svc.NewBundle()
	svc.PutString(a, "id", "a")
	svc.PutString(b, "id", "b")

	svc.PutBundleArray(parent, "items", []handle.ID{a, 42, parent, b})

	_, ok := svc.Bundles().Get(a)
	assert.False(t, ok, "nested handles are consumed")
	_, ok = svc.Bundles().Get(parent)
	assert.True(t, ok)

	svc.LogEventBundle(context.Background(), "purchase", parent)
	require.Len(t, sink.events, 1)
	assert.Equal(t, []map[string]any{{"id": "a"}, {"id": "b"}}, sink.events[0].Params["items"])
	assert.Equal(t, 0, svc.Bundles().Len())
}

func TestPutBundleArrayAbsentParent(t *testing.T) {
	svc, _ := newTestAnalytics()
	child := svc.NewBundle()

	svc.PutBundleArray(5, "items", []handle.ID{child})

	_, ok := svc.Bundles().Get(child)
	assert.True(t, ok, "children survive when the parent is absent")
}

func TestLogEventParallelSlices(t *testing.T) {
	svc, sink := newTestAnalytics()
	ctx := context.Background()

	svc.LogEvent(ctx, "bad", []string{"a", "b"}, []string{"1"})
	assert.Empty(t, sink.events)

	svc.SetUserID("player-1")
	svc.LogEvent(ctx, "good", []string{"a"}, []string{"1"})
	require.Len(t, sink.events, 1)
	assert.Equal(t, map[string]any{"a": "1"}, sink.events[0].Params)
	assert.Equal(t, "player-1", sink.events[0].UserID)
}

func TestSetUserProperty(t *testing.T) {
	svc, sink := newTestAnalytics()

	svc.SetUserProperty(context.Background(), "tier", "gold")

	require.Len(t, sink.props, 1)
	assert.Equal(t, "tier", sink.props[0].Name)
	assert.Equal(t, "gold", sink.props[0].Value)
}

func TestAnalyticsWithoutSink(t *testing.T) {
	svc := NewAnalyticsService(nil, bg.Sync{}, &NopLogger{})

	h := svc.NewBundle()
	svc.PutString(h, "k", "v")
	svc.LogEventBundle(context.Background(), "evt", h)
	svc.SetUserProperty(context.Background(), "a", "b")

	assert.Equal(t, 0, svc.Bundles().Len())
}

func TestReleaseBundle(t *testing.T) {
	svc, sink := newTestAnalytics()
	h := svc.NewBundle()

	svc.ReleaseBundle(h)
	svc.ReleaseBundle(h)
	svc.LogEventBundle(context.Background(), "evt", h)

	assert.Empty(t, sink.events)
	assert.Equal(t, 0, svc.NewBundle())
}
