package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTrace(t *testing.T) {
	tr := NewTrace("level_load")

	assert.Equal(t, "level_load", tr.Name)
	assert.False(t, tr.Started())
}

func TestTraceCounters(t *testing.T) {
	tr := NewTrace("checkout")

	tr.IncrementMetric("items", 2)
	tr.IncrementMetric("items", 3)
	assert.EqualValues(t, 5, tr.LongMetric("items"))

	tr.PutMetric("items", 1)
	assert.EqualValues(t, 1, tr.LongMetric("items"))
	assert.Zero(t, tr.LongMetric("missing"))

	tr.IncrementMetric("", 1)
	assert.Len(t, tr.Metrics(), 1, "empty counter name is ignored")
}

func TestTraceMetricsIsCopy(t *testing.T) {
	tr := NewTrace("copy")
	tr.PutMetric("a", 1)

	m := tr.Metrics()
	m["a"] = 99
	assert.EqualValues(t, 1, tr.LongMetric("a"))
}

func TestTraceDuration(t *testing.T) {
	tr := NewTrace("d")
	tr.Stop()
	assert.Zero(t, tr.Duration(), "unstarted trace")

	tr = NewTrace("d")
	tr.Start()
	tr.Stop()
	assert.GreaterOrEqual(t, tr.Duration(), time.Duration(0))
}
