package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatsCounters(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	s := New()

	s.SamplesReceived.Inc()
	s.SamplesReceived.Inc()
	if got := testutil.ToFloat64(s.SamplesReceived); got != 2 {
		t.Errorf("expected 2 samples received, got %f", got)
	}

	s.SamplesMalformed.Inc()
	if got := testutil.ToFloat64(s.SamplesMalformed); got != 1 {
		t.Errorf("expected 1 malformed sample, got %f", got)
	}

	s.DeadmanHeld.Set(1)
	if got := testutil.ToFloat64(s.DeadmanHeld); got != 1 {
		t.Errorf("expected deadman gauge 1, got %f", got)
	}
}
