package coach

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if got, want := r.Values(), []int{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
	r.Reset(9)
	if got, want := r.Values(), []int{9}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Values() after Reset = %v, want %v", got, want)
	}
}

func TestAccumulatorAppendsOnlyNewFinalSuffix(t *testing.T) {
	var a Accumulator
	if got := a.Apply("hello there ", ""); got != "hello there " {
		t.Fatalf("first suffix = %q", got)
	}
	if got := a.Apply("hello there ", "how"); got != "" {
		t.Fatalf("repeated final suffix = %q, want empty", got)
	}
	if got := a.Apply("hello there how are you ", ""); got != "how are you " {
		t.Fatalf("grown suffix = %q", got)
	}
	if a.Transcript() != "hello there how are you " {
		t.Fatalf("Transcript() = %q", a.Transcript())
	}
	if a.WordCount() != 5 {
		t.Fatalf("WordCount() = %d, want 5", a.WordCount())
	}
}

func TestAccumulatorInterimNeverCounts(t *testing.T) {
	var a Accumulator
	a.Apply("", "um so like")
	if a.WordCount() != 0 {
		t.Fatalf("WordCount() = %d, want 0", a.WordCount())
	}
	if a.Display() != "um so like" {
		t.Fatalf("Display() = %q, want interim text", a.Display())
	}
	a.Apply("", "")
	if a.Display() != "um so like" {
		t.Fatalf("Display() = %q, want previous value kept", a.Display())
	}
}

func TestAccumulatorHandlesRecognizerRestart(t *testing.T) {
	var a Accumulator
	a.Apply("first part of the talk ", "")
	a.Apply("second ", "")
	if got, want := a.Transcript(), "first part of the talk second "; got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
	a.Apply("second half ", "")
	if got, want := a.Transcript(), "first part of the talk second half "; got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
}

func TestAccumulatorNewRunAppendsLongerFirstResult(t *testing.T) {
	var a Accumulator
	a.Apply("um hi", "")
	a.NewRun()
	a.Apply("so today we talk about umbrellas ", "")
	if got, want := a.Transcript(), "um hi so today we talk about umbrellas "; got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
	a.Apply("so today we talk about umbrellas again ", "")
	if got, want := a.Transcript(), "um hi so today we talk about umbrellas again "; got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
	if a.WordCount() != 9 {
		t.Fatalf("WordCount() = %d, want 9", a.WordCount())
	}
}

func TestSessionRestartKeepsFillersOfNewRun(t *testing.T) {
	s := NewSession(time.Now())
	s.ApplyTranscript("um hi ", "")
	s.RecognizerRestarted()
	s.ApplyTranscript("so today we talk about umbrellas ", "")
	if got, want := s.Transcript(), "um hi so today we talk about umbrellas "; got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
	if s.WordCount() != 8 {
		t.Fatalf("WordCount() = %d, want 8", s.WordCount())
	}
	if s.FillerCount("so") != 1 || s.FillerCount("um") != 2 {
		t.Fatalf("fillers so=%d um=%d, want 1 and 2", s.FillerCount("so"), s.FillerCount("um"))
	}
}

func TestFillerCounterSpecExample(t *testing.T) {
	c := NewFillerCounter()
	transcript := "um, so this is like, you know, a test"
	c.Scan(transcript)

	want := map[string]int{"um": 1, "so": 1, "like": 1, "you know": 1}
	for word, n := range want {
		if got := c.Count(word); got != n {
			t.Fatalf("Count(%q) = %d, want %d", word, got, n)
		}
	}
	if c.Total() != 4 {
		t.Fatalf("Total() = %d, want 4", c.Total())
	}
	if c.Offset() != len(transcript) {
		t.Fatalf("Offset() = %d, want %d", c.Offset(), len(transcript))
	}
}

func TestFillerCounterScansOnlyNewSuffix(t *testing.T) {
	c := NewFillerCounter()
	transcript := "um I think "
	c.Scan(transcript)
	transcript += "um yes "
	c.Scan(transcript)
	if got := c.Count("um"); got != 2 {
		t.Fatalf("Count(um) = %d, want 2", got)
	}
	c.Scan(transcript)
	if got := c.Count("um"); got != 2 {
		t.Fatalf("rescan Count(um) = %d, want 2", got)
	}
}

// Prefix matching over-counts variants on purpose: "umm" also counts toward "um", and
// "sort" counts toward "so".
func TestFillerCounterPrefixOverCount(t *testing.T) {
	c := NewFillerCounter()
	c.Scan("umm, sort of")
	if got := c.Count("um"); got != 1 {
		t.Fatalf("Count(um) = %d, want 1", got)
	}
	if got := c.Count("umm"); got != 1 {
		t.Fatalf("Count(umm) = %d, want 1", got)
	}
	if got := c.Count("so"); got != 1 {
		t.Fatalf("Count(so) = %d, want 1", got)
	}
	if got := c.Count("sort of"); got != 1 {
		t.Fatalf("Count(sort of) = %d, want 1", got)
	}
}

func TestFillerTopOrdersByCountThenLexicon(t *testing.T) {
	c := NewFillerCounter()
	c.Scan("so well so like actually basically right okay anyway")
	top := c.Top(5)
	if len(top) != 5 {
		t.Fatalf("len(Top) = %d, want 5", len(top))
	}
	if top[0] != (FillerWord{Word: "so", Count: 2}) {
		t.Fatalf("top[0] = %+v, want so:2", top[0])
	}
	wantOrder := []string{"so", "like", "basically", "actually", "right"}
	for i, w := range wantOrder {
		if top[i].Word != w {
			t.Fatalf("top[%d] = %q, want %q (top=%+v)", i, top[i].Word, w, top)
		}
	}
}

func TestWordsPerMinuteClamp(t *testing.T) {
	if got := WordsPerMinute(100, 60*time.Second); got != 100 {
		t.Fatalf("WordsPerMinute(100, 60s) = %d, want 100", got)
	}
	if got := WordsPerMinute(100, 3*time.Second); got != 1000 {
		t.Fatalf("WordsPerMinute(100, 3s) = %d, want 1000", got)
	}
	if got := WordsPerMinute(0, time.Minute); got != 0 {
		t.Fatalf("WordsPerMinute(0, 1m) = %d, want 0", got)
	}
}

func TestPaceHistoryBoundedAndOnlyOnGrowth(t *testing.T) {
	p := NewPaceEstimator()
	p.Sample(10, 3*time.Second)
	if len(p.History()) != 0 {
		t.Fatalf("history before 6s floor = %v, want empty", p.History())
	}
	for i := 1; i <= 25; i++ {
		p.Sample(i*10, time.Duration(i)*10*time.Second)
	}
	h := p.History()
	if len(h) != 20 {
		t.Fatalf("len(History) = %d, want 20", len(h))
	}
	p.Sample(250, 300*time.Second)
	if got := p.History(); !reflect.DeepEqual(got, h) {
		t.Fatalf("history changed without word growth: %v -> %v", h, got)
	}
}

func TestEyeContactSamplerCapacityAndMean(t *testing.T) {
	e := NewEyeContactSampler()
	for i := 0; i < 15; i++ {
		e.Record(true, 80)
	}
	e.Record(false, 99)
	if got := len(e.Samples()); got != 10 {
		t.Fatalf("len(Samples) = %d, want 10", got)
	}
	if got := e.Score(); got != 72 {
		t.Fatalf("Score() = %d, want 72", got)
	}
	e.Disable()
	if got := e.Samples(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("Samples() after Disable = %v, want [0]", got)
	}
	if e.Score() != 0 {
		t.Fatalf("Score() after Disable = %d, want 0", e.Score())
	}
}

func TestClassifySentimentTable(t *testing.T) {
	cases := []struct {
		name    string
		pace    int
		eye     int
		fillers int
		want    Sentiment
	}{
		{"silent", 0, 90, 0, Sentiment{0, 0, 100}},
		{"ideal all good", 150, 65, 1, Sentiment{70, 5, 25}},
		{"ideal few fillers only", 150, 40, 1, Sentiment{55, 15, 30}},
		{"ideal eye only", 150, 80, 4, Sentiment{55, 15, 30}},
		{"too fast", 190, 80, 0, Sentiment{20, 50, 30}},
		{"too slow", 80, 80, 0, Sentiment{25, 35, 40}},
		{"between bands", 175, 80, 0, Sentiment{40, 25, 35}},
	}
	for _, tc := range cases {
		if got := ClassifySentiment(tc.pace, tc.eye, tc.fillers); got != tc.want {
			t.Fatalf("%s: ClassifySentiment() = %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestScoreBands(t *testing.T) {
	paceCases := map[int]int{150: 100, 125: 80, 180: 80, 110: 60, 200: 60, 250: 40, 1: 40, 0: 0}
	for pace, want := range paceCases {
		if got := PaceScore(pace); got != want {
			t.Fatalf("PaceScore(%d) = %d, want %d", pace, got, want)
		}
	}
	fillerCases := []struct{ fillers, words, want int }{
		{0, 100, 100},
		{1, 100, 90},
		{3, 100, 70},
		{7, 100, 50},
		{10, 100, 30},
		{0, 0, 0},
	}
	for _, tc := range fillerCases {
		if got := FillerScore(tc.fillers, tc.words); got != tc.want {
			t.Fatalf("FillerScore(%d, %d) = %d, want %d", tc.fillers, tc.words, got, tc.want)
		}
	}
}

func TestScoreSessionOverall(t *testing.T) {
	card := ScoreSession(150, 75, 0, 120)
	if card.PaceScore != 100 || card.FillerScore != 100 {
		t.Fatalf("card = %+v, want pace=100 filler=100", card)
	}
	if card.OverallScore != 92 {
		t.Fatalf("OverallScore = %d, want 92", card.OverallScore)
	}
}

func TestStrengthsAndImprovementsFallbacks(t *testing.T) {
	if got := Strengths(40, 30, 10); !reflect.DeepEqual(got, []string{"Completed the practice session"}) {
		t.Fatalf("Strengths() = %v", got)
	}
	if got := Improvements(100, 100, 90); !reflect.DeepEqual(got, []string{"Keep practicing to maintain skills"}) {
		t.Fatalf("Improvements() = %v", got)
	}
	got := Improvements(40, 30, 10)
	if len(got) != 3 {
		t.Fatalf("Improvements() = %v, want 3 entries", got)
	}
}

func TestShouldSaveRequiresBothConditions(t *testing.T) {
	if ShouldSave(9, 100, MinSaveSeconds) {
		t.Fatalf("ShouldSave(9s) = true, want false")
	}
	if ShouldSave(10, 100, MinSaveSeconds) {
		t.Fatalf("ShouldSave(10s) = true, want false")
	}
	if ShouldSave(11, 0, MinSaveSeconds) {
		t.Fatalf("ShouldSave(11s, 0 words) = true, want false")
	}
	if !ShouldSave(11, 1, MinSaveSeconds) {
		t.Fatalf("ShouldSave(11s, 1 word) = false, want true")
	}
}

func TestSessionWordCountMonotonicAndRecomputeIdempotent(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession(start)
	last := 0
	for _, final := range []string{"so ", "so we ", "so we ", "so we begin now "} {
		s.ApplyTranscript(final, "")
		if s.WordCount() < last {
			t.Fatalf("word count decreased: %d -> %d", last, s.WordCount())
		}
		last = s.WordCount()
	}
	if s.LastScannedOffset() != len(s.Transcript()) {
		t.Fatalf("LastScannedOffset() = %d, want %d", s.LastScannedOffset(), len(s.Transcript()))
	}

	now := start.Add(30 * time.Second)
	first := s.Recompute(now)
	second := s.Recompute(now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Recompute not idempotent: %+v vs %+v", first, second)
	}
	if first.Pace != 8 {
		t.Fatalf("Pace = %d, want 8", first.Pace)
	}

	fresh := NewSession(now)
	if fresh.WordCount() != 0 {
		t.Fatalf("new session WordCount() = %d, want 0", fresh.WordCount())
	}
}

func TestSessionRecordTruncatesTranscript(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession(start)
	s.ApplyTranscript(strings.Repeat("word ", 200), "")
	for i := 0; i < 60; i++ {
		s.Tick()
	}
	s.Recompute(start.Add(time.Minute))
	card := s.Score()
	rec := s.Record("r1", start.Add(time.Minute), card)
	if got := len([]rune(rec.Transcript)); got != 500 {
		t.Fatalf("len(Transcript) = %d, want 500", got)
	}
	if rec.Duration != 60 || rec.WordCount != 200 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Metrics.Pace != 200 || rec.Metrics.PaceScore != 60 {
		t.Fatalf("metrics = %+v", rec.Metrics)
	}
}

func TestSessionSpeakingClearsAfterSilence(t *testing.T) {
	s := NewSession(time.Now())
	s.ApplyTranscript("hello ", "")
	if !s.Speaking() {
		t.Fatalf("Speaking() = false after new words")
	}
	s.Tick()
	if !s.Speaking() {
		t.Fatalf("Speaking() = false after 1s")
	}
	s.Tick()
	if s.Speaking() {
		t.Fatalf("Speaking() = true after 2s of silence")
	}
}
