package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stages observed by the practice pipeline.
const (
	StageMetricsRecompute = "metrics_recompute"
	StageEyeDetect        = "eye_detect"
	StageStopToScored     = "stop_to_scored"
	StageReportSave       = "report_save"
)

// Indicators count degraded-path events alongside the stage latencies.
const (
	IndicatorOutboundDropped   = "outbound_dropped"
	IndicatorDetectorNotReady  = "detector_not_ready"
	IndicatorEyeFrameMissing   = "eye_frame_missing"
	IndicatorRecognizerRestart = "recognizer_restart"
)

// stageTargets are the p95 budgets reported next to each stage, in milliseconds.
var stageTargets = map[string]float64{
	StageMetricsRecompute: 5,
	StageEyeDetect:        250,
	StageStopToScored:     50,
	StageReportSave:       500,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// samples is a fixed-size ring of the most recent observations of one stage.
type samples struct {
	buf  []float64
	head int
	size int
}

func (s *samples) add(v float64) {
	s.buf[s.head] = v
	s.head = (s.head + 1) % len(s.buf)
	if s.size < len(s.buf) {
		s.size++
	}
}

func (s *samples) last() float64 {
	return s.buf[(s.head-1+len(s.buf))%len(s.buf)]
}

func (s *samples) sorted() []float64 {
	out := append([]float64(nil), s.buf[:s.size]...)
	sort.Float64s(out)
	return out
}

// latencyWindow keeps the last capacity observations per stage plus indicator counters.
type latencyWindow struct {
	mu         sync.Mutex
	capacity   int
	stages     map[string]*samples
	indicators map[string]int
}

func newLatencyWindow(capacity int) *latencyWindow {
	if capacity <= 0 {
		capacity = latencyWindowSize
	}
	w := &latencyWindow{capacity: capacity}
	w.clear()
	return w
}

func (w *latencyWindow) clear() {
	w.stages = map[string]*samples{}
	w.indicators = map[string]int{}
}

func (w *latencyWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stages[stage]
	if s == nil {
		s = &samples{buf: make([]float64, w.capacity)}
		w.stages[stage] = s
	}
	s.add(ms)
}

func (w *latencyWindow) ObserveIndicator(name string) {
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.capacity,
		Stages:      make([]StageStats, 0, len(w.stages)),
	}
	for stage, s := range w.stages {
		if s.size > 0 {
			snap.Stages = append(snap.Stages, summarize(stage, s))
		}
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].Stage < snap.Stages[j].Stage })

	for name, count := range w.indicators {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: count})
	}
	sort.Slice(snap.Indicators, func(i, j int) bool { return snap.Indicators[i].Name < snap.Indicators[j].Name })
	return snap
}

func (w *latencyWindow) Reset() {
	w.mu.Lock()
	w.clear()
	w.mu.Unlock()
}

func summarize(stage string, s *samples) StageStats {
	vals := s.sorted()
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return StageStats{
		Stage:       stage,
		Samples:     len(vals),
		LastMS:      round2(s.last()),
		AvgMS:       round2(sum / float64(len(vals))),
		P50MS:       round2(percentile(vals, 50)),
		P95MS:       round2(percentile(vals, 95)),
		P99MS:       round2(percentile(vals, 99)),
		TargetP95MS: stageTargets[stage],
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case len(sorted) == 1 || p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo, frac := math.Modf(rank)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
