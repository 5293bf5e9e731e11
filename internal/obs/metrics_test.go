package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromMeterCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPromMeter(reg)
	m.Counter("test_conns_total", 1, Label{Key: "route", Value: "repeat"})
	m.Counter("test_conns_total", 2, Label{Key: "route", Value: "repeat"})

	cv := m.counters["test_conns_total"]
	require.NotNil(t, cv)
	assert.Equal(t, 3.0, testutil.ToFloat64(cv.WithLabelValues("repeat")))
}

func TestPromMeterHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPromMeter(reg)
	m.Histogram("test_seconds", 0.2, Label{Key: "route", Value: "delay"})
	m.Histogram("test_seconds", 0.4, Label{Key: "route", Value: "delay"})

	n, err := testutil.GatherAndCount(reg, "test_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPromMeterLabelOrderStable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPromMeter(reg)
	// Same labels in different argument order must hit the same series.
	m.Counter("test_multi", 1, Label{Key: "b", Value: "2"}, Label{Key: "a", Value: "1"})
	m.Counter("test_multi", 1, Label{Key: "a", Value: "1"}, Label{Key: "b", Value: "2"})
	cv := m.counters["test_multi"]
	require.NotNil(t, cv)
	assert.Equal(t, 2.0, testutil.ToFloat64(cv.WithLabelValues("1", "2")))
}
