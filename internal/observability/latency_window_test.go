package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe(StageEyeDetect, 50)
	w.Observe(StageEyeDetect, 70)
	w.Observe(StageEyeDetect, 90)
	w.ObserveIndicator("detector_not_ready")
	w.ObserveIndicator("detector_not_ready")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageEyeDetect {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageEyeDetect)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 90 {
		t.Fatalf("LastMS = %.2f, want 90", s.LastMS)
	}
	if s.P50MS != 70 {
		t.Fatalf("P50MS = %.2f, want 70", s.P50MS)
	}
	if s.P95MS <= 70 || s.P95MS > 90 {
		t.Fatalf("P95MS = %.2f, want (70,90]", s.P95MS)
	}
	if s.TargetP95MS != 250 {
		t.Fatalf("TargetP95MS = %.2f, want 250", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want detector_not_ready:2", snap.Indicators)
	}
}

func TestLatencyWindowWrapsAtCapacity(t *testing.T) {
	w := newLatencyWindow(2)
	for _, v := range []float64{1, 2, 3} {
		w.Observe(StageReportSave, v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 2.5 {
		t.Fatalf("stats = %+v, want 2 samples avg 2.5", s)
	}
}

func TestMetricsObserveSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith("echo_test", reg)
	m.ObserveSession(30, 85, true)
	m.ObserveSession(5, 0, false)
	m.ObserveSessionEvent("session_saved")
	m.ObserveStage(StageEyeDetect, 12*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		switch mf.GetName() {
		case "echo_test_session_events_total":
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Fatalf("session_events_total = %v, want 1", got)
			}
		case "echo_test_session_overall_score":
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
				t.Fatalf("score samples = %d, want 1", got)
			}
		case "echo_test_session_duration_seconds":
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
				t.Fatalf("duration samples = %d, want 2", got)
			}
		}
	}
	if !found["echo_test_session_events_total"] || !found["echo_test_session_overall_score"] {
		t.Fatalf("missing families: %v", found)
	}
	if snap := m.SnapshotLatency(); len(snap.Stages) != 1 || snap.Stages[0].LastMS != 12 {
		t.Fatalf("latency snapshot = %+v", snap)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveSessionEvent("ignored")
}
