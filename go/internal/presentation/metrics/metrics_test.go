package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.RecordPublish("INDEX", true, time.Millisecond)
	m.RecordPublish("INDEX", true, time.Millisecond)
	m.RecordPublish("DECK", false, time.Millisecond)
	m.RecordReceive("SETTINGS")
	m.RecordDropped("BOGUS")
	m.RecordStorageFallback("deck")

	cases := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"index published", m.published.WithLabelValues("INDEX", "success"), 2},
		{"deck failed", m.published.WithLabelValues("DECK", "failure"), 1},
		{"settings received", m.received.WithLabelValues("SETTINGS"), 1},
		{"dropped", m.dropped.WithLabelValues("BOGUS"), 1},
		{"deck fallback", m.fallbacks.WithLabelValues("deck"), 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNoOpSatisfiesCollector(t *testing.T) {
	var c Collector = NoOp{}
	c.RecordPublish("INDEX", true, 0)
	c.RecordStorageFallback("settings")
}
