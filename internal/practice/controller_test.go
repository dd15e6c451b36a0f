package practice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/coach"
	"github.com/echocoach/echo/internal/facedetect"
	"github.com/echocoach/echo/internal/observability"
	"github.com/echocoach/echo/internal/protocol"
	"github.com/echocoach/echo/internal/recognizer"
)

type fakeRecognizer struct {
	events   chan recognizer.Event
	starts   int
	stops    int
	startErr error
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan recognizer.Event, 16)}
}

func (f *fakeRecognizer) Start(context.Context) error {
	f.starts++
	return f.startErr
}

func (f *fakeRecognizer) Stop(context.Context) error {
	f.stops++
	return nil
}

func (f *fakeRecognizer) Events() <-chan recognizer.Event { return f.events }

type recordingNotifier struct {
	started []string
	ended   []string
}

func (n *recordingNotifier) SessionStarted(_ context.Context, id string, _ time.Time) {
	n.started = append(n.started, id)
}

func (n *recordingNotifier) SessionEnded(_ context.Context, id string, _ time.Time) {
	n.ended = append(n.ended, id)
}

type memorySink struct {
	mu      sync.Mutex
	records []coach.SessionRecord
	err     error
}

func (s *memorySink) SaveReport(_ context.Context, rec coach.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type harness struct {
	c        *Controller
	rec      *fakeRecognizer
	notifier *recordingNotifier
	sink     *memorySink
	state    *appstate.State
	events   []any
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:      newFakeRecognizer(),
		notifier: &recordingNotifier{},
		sink:     &memorySink{},
		state:    appstate.New(),
	}
	ids := 0
	h.c = New("s1", Options{
		// Long intervals keep the real timers quiet; tests drive ticks by hand.
		Config:     Config{ClockInterval: time.Hour, MetricsInterval: time.Hour, EyeInterval: time.Hour},
		Recognizer: h.rec,
		Notifier:   h.notifier,
		Reports:    h.sink,
		State:      h.state,
		NewID: func() string {
			ids++
			return "id-" + string(rune('0'+ids))
		},
	}, func(msg any) { h.events = append(h.events, msg) })
	t.Cleanup(func() { h.c.shutdown(context.Background()) })
	return h
}

func (h *harness) clock(n int) {
	for i := 0; i < n; i++ {
		h.c.handleTick(context.Background(), tick{kind: tickClock, gen: h.c.gen})
	}
}

func (h *harness) say(final string) {
	h.c.handleRecognizerEvent(context.Background(), recognizer.Event{Type: recognizer.EventResult, Final: final})
}

func (h *harness) lastScored(t *testing.T) protocol.SessionScored {
	t.Helper()
	for i := len(h.events) - 1; i >= 0; i-- {
		if m, ok := h.events[i].(protocol.SessionScored); ok {
			return m
		}
	}
	t.Fatalf("no session_scored event in %d events", len(h.events))
	return protocol.SessionScored{}
}

func TestStartRequiresMicrophone(t *testing.T) {
	h := newHarness(t)
	off := false
	if err := h.c.SetMicrophone(&off); err != nil {
		t.Fatalf("SetMicrophone() error = %v", err)
	}
	if err := h.c.Start(context.Background()); !errors.Is(err, ErrMicrophoneDisabled) {
		t.Fatalf("Start() error = %v, want ErrMicrophoneDisabled", err)
	}
	if h.c.Status() != Idle {
		t.Fatalf("Status() = %v, want idle", h.c.Status())
	}
	if h.rec.starts != 0 || len(h.notifier.started) != 0 {
		t.Fatalf("collaborators touched on refused start: starts=%d notified=%v", h.rec.starts, h.notifier.started)
	}
	if h.state.Settings().EnableMicrophone {
		t.Fatalf("settings not updated")
	}
}

func TestStartStopSavesLongSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.c.Status() != Recording || h.rec.starts != 1 || len(h.notifier.started) != 1 {
		t.Fatalf("after start: status=%v starts=%d notified=%v", h.c.Status(), h.rec.starts, h.notifier.started)
	}
	if err := h.c.Start(ctx); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRecording", err)
	}

	h.say("so today I want to talk ")
	h.say("so today I want to talk about um public speaking ")
	h.clock(12)
	h.c.emitMetrics()

	out, err := h.c.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !out.Saved || out.Record == nil {
		t.Fatalf("outcome = %+v, want saved", out)
	}
	if out.Record.Duration != 12 || out.Record.WordCount != 9 {
		t.Fatalf("record duration=%d words=%d", out.Record.Duration, out.Record.WordCount)
	}
	if out.Record.Metrics.TotalFillers != 2 {
		t.Fatalf("TotalFillers = %d, want 2 (so, um)", out.Record.Metrics.TotalFillers)
	}
	if h.c.Status() != Idle || h.rec.stops != 1 || len(h.notifier.ended) != 1 {
		t.Fatalf("after stop: status=%v stops=%d ended=%v", h.c.Status(), h.rec.stops, h.notifier.ended)
	}
	if len(h.sink.records) != 1 || h.sink.records[0].ID != out.Record.ID {
		t.Fatalf("sink records = %+v", h.sink.records)
	}
	if len(out.Achievements) == 0 || out.Achievements[0] != appstate.AchievementFirstSession {
		t.Fatalf("achievements = %v, want first_session", out.Achievements)
	}
	if h.state.Stats().TotalSessions != 1 {
		t.Fatalf("TotalSessions = %d, want 1", h.state.Stats().TotalSessions)
	}
	scored := h.lastScored(t)
	if !scored.Saved || scored.Record == nil || scored.Achievements[0] != "first_session" {
		t.Fatalf("scored event = %+v", scored)
	}
}

func TestStopDiscardsShortSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.say("hello everyone ")
	h.clock(9)
	out, err := h.c.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if out.Saved || out.Reason != DiscardTooShort {
		t.Fatalf("outcome = %+v, want too_short", out)
	}
	if len(h.sink.records) != 0 || h.state.Stats().TotalSessions != 0 {
		t.Fatalf("short session persisted")
	}
}

func TestStopDiscardsSilentSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.clock(11)
	out, _ := h.c.Stop(ctx)
	if out.Saved || out.Reason != DiscardNoSpeech {
		t.Fatalf("outcome = %+v, want no_speech", out)
	}
}

func TestStopWhileIdle(t *testing.T) {
	h := newHarness(t)
	if _, err := h.c.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop() error = %v, want ErrNotRecording", err)
	}
}

func TestSaveFailureIsLoggedNotFatal(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("db down")
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.say("one two three ")
	h.clock(11)
	out, err := h.c.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !out.Saved || h.c.Status() != Idle {
		t.Fatalf("outcome = %+v status=%v", out, h.c.Status())
	}
}

func TestTrailingRecognizerEventsIgnoredWhileIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.say("hello ")
	h.clock(11)
	_, _ = h.c.Stop(ctx)

	words := h.c.session.WordCount()
	h.say("hello there more words ")
	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventEnd})
	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventError, Kind: recognizer.ErrorNetwork})
	if h.c.session.WordCount() != words || h.rec.starts != 1 {
		t.Fatalf("idle controller reacted: words=%d starts=%d", h.c.session.WordCount(), h.rec.starts)
	}
}

func TestFatalRecognizerErrorForcesIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.say("hello ")
	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventError, Kind: recognizer.ErrorNotAllowed})

	if h.c.Status() != Idle {
		t.Fatalf("Status() = %v, want idle", h.c.Status())
	}
	if h.rec.stops != 1 || len(h.notifier.ended) != 1 {
		t.Fatalf("teardown missing: stops=%d ended=%v", h.rec.stops, h.notifier.ended)
	}
	var sawError bool
	for _, ev := range h.events {
		if e, ok := ev.(protocol.ErrorEvent); ok && e.Code == "not-allowed" {
			sawError = true
			if !strings.Contains(e.Detail, "permission denied") {
				t.Fatalf("error detail = %q", e.Detail)
			}
		}
	}
	if !sawError {
		t.Fatalf("no not-allowed error event emitted")
	}
	if scored := h.lastScored(t); scored.Saved || scored.Reason != DiscardRecognizer {
		t.Fatalf("scored = %+v, want recognizer_error discard", scored)
	}
	if len(h.sink.records) != 0 {
		t.Fatalf("halted session was saved")
	}
}

func TestNoSpeechSchedulesRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)

	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventError, Kind: recognizer.ErrorNoSpeech})
	if h.c.restartTimer == nil {
		t.Fatalf("no restart scheduled after no-speech")
	}
	// The end that follows no-speech must not restart a second time.
	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventEnd})
	if h.rec.starts != 1 {
		t.Fatalf("starts = %d, want 1 before timer fires", h.rec.starts)
	}
	h.c.restartRecognizer(ctx)
	if h.rec.starts != 2 || h.c.restartTimer != nil {
		t.Fatalf("after restart: starts=%d timer=%v", h.rec.starts, h.c.restartTimer)
	}
	if h.c.restartAttempt != 1 {
		t.Fatalf("restartAttempt = %d, want 1", h.c.restartAttempt)
	}
	h.say("finally ")
	if h.c.restartAttempt != 0 {
		t.Fatalf("restartAttempt = %d, want reset after speech", h.c.restartAttempt)
	}
}

func TestEndRestartsImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventEnd})
	if h.rec.starts != 2 {
		t.Fatalf("starts = %d, want 2", h.rec.starts)
	}
	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventError, Kind: recognizer.ErrorAborted})
	if h.c.Status() != Recording {
		t.Fatalf("aborted changed status to %v", h.c.Status())
	}
}

func TestRestartedRunIsAppendedInFull(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.say("um hi ")
	h.c.handleRecognizerEvent(ctx, recognizer.Event{Type: recognizer.EventEnd})
	if h.rec.starts != 2 {
		t.Fatalf("starts = %d, want 2", h.rec.starts)
	}
	h.say("so today we talk about umbrellas ")
	if got, want := h.c.session.Transcript(), "um hi so today we talk about umbrellas "; got != want {
		t.Fatalf("Transcript() = %q, want %q", got, want)
	}
	if h.c.session.FillerCount("so") != 1 {
		t.Fatalf("FillerCount(so) = %d, want 1", h.c.session.FillerCount("so"))
	}
}

func TestDeviceTogglesLockedWhileRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	off := false
	_ = h.c.Start(ctx)
	if err := h.c.SetCamera(ctx, &off); !errors.Is(err, ErrDeviceLocked) {
		t.Fatalf("SetCamera(off) error = %v, want ErrDeviceLocked", err)
	}
	if err := h.c.SetMicrophone(nil); !errors.Is(err, ErrDeviceLocked) {
		t.Fatalf("SetMicrophone(toggle) error = %v, want ErrDeviceLocked", err)
	}
	h.clock(1)
	_, _ = h.c.Stop(ctx)

	if err := h.c.SetCamera(ctx, nil); err != nil {
		t.Fatalf("SetCamera(toggle) while idle error = %v", err)
	}
	if h.state.Settings().EnableCamera {
		t.Fatalf("EnableCamera = true after toggle")
	}
	if got := h.c.session.EyeContactSamples(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("eye samples = %v, want [0]", got)
	}
}

func TestCameraDisabledAtStartReadsZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	off := false
	_ = h.c.SetCamera(ctx, &off)
	_ = h.c.Start(ctx)
	h.c.detectorReady = true
	h.c.lastFrame = &facedetect.Frame{Width: 640}
	h.c.sampleEyeContact(ctx)
	if h.c.lastFrame == nil {
		t.Fatalf("frame consumed with camera disabled")
	}
	if snap := h.c.session.Recompute(time.Now()); snap.EyeContact != 0 {
		t.Fatalf("EyeContact = %d, want 0", snap.EyeContact)
	}
}

func TestDetectionResultsFeedEyeContact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.c.detectorReady = true

	h.c.handleDetection(detection{gen: h.c.gen, result: facedetect.Result{FaceDetected: true, EyeContactRaw: 80}})
	h.c.handleDetection(detection{gen: h.c.gen, err: errors.New("boom")})
	h.c.handleDetection(detection{gen: h.c.gen - 1, result: facedetect.Result{FaceDetected: true, EyeContactRaw: 100}})

	if got := h.c.session.EyeContactSamples(); len(got) != 2 || got[0] != 80 || got[1] != 0 {
		t.Fatalf("eye samples = %v, want [80 0]", got)
	}
}

func TestMissingFramesSampleZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	metrics := observability.NewMetricsWith("practice_test", prometheus.NewRegistry())
	h.c.metrics = metrics
	h.c.det = &facedetect.Static{}
	_ = h.c.Start(ctx)
	h.c.detectorReady = true
	h.c.handleDetection(detection{gen: h.c.gen, result: facedetect.Result{FaceDetected: true, EyeContactRaw: 90}})

	for i := 0; i < maxMissedFrames-1; i++ {
		h.c.sampleEyeContact(ctx)
	}
	if got := h.c.session.EyeContactSamples(); len(got) != 1 || got[0] != 90 {
		t.Fatalf("eye samples = %v, want [90]", got)
	}
	h.c.sampleEyeContact(ctx)
	h.c.sampleEyeContact(ctx)
	if got := h.c.session.EyeContactSamples(); len(got) != 3 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("eye samples = %v, want [90 0 0]", got)
	}

	h.c.lastFrame = &facedetect.Frame{Width: 640}
	h.c.sampleEyeContact(ctx)
	if h.c.missedFrames != 0 {
		t.Fatalf("missedFrames = %d, want reset by a new frame", h.c.missedFrames)
	}

	indicators := metrics.SnapshotLatency().Indicators
	if len(indicators) != 1 || indicators[0].Name != observability.IndicatorEyeFrameMissing || indicators[0].Count != maxMissedFrames+1 {
		t.Fatalf("indicators = %+v, want %s:%d", indicators, observability.IndicatorEyeFrameMissing, maxMissedFrames+1)
	}
}

func TestStaleTicksIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.c.Start(ctx)
	h.c.handleTick(ctx, tick{kind: tickClock, gen: h.c.gen + 1})
	if h.c.session.ElapsedSeconds != 0 {
		t.Fatalf("ElapsedSeconds = %d, want 0", h.c.session.ElapsedSeconds)
	}
}

func TestRecognizerStartFailureHalts(t *testing.T) {
	h := newHarness(t)
	h.rec.startErr = errors.New("mic busy")
	if err := h.c.Start(context.Background()); err == nil {
		t.Fatalf("Start() error = nil, want recognizer failure")
	}
	if h.c.Status() != Idle {
		t.Fatalf("Status() = %v, want idle", h.c.Status())
	}
}

func TestRunLoopEndToEnd(t *testing.T) {
	script := recognizer.NewScript([]recognizer.Step{
		{Final: "hello everyone "},
		{Delay: 5 * time.Millisecond, Final: "hello everyone thanks for coming "},
	})
	events := make(chan any, 256)
	sink := &memorySink{}
	c := New("s1", Options{
		Config:     Config{ClockInterval: 2 * time.Millisecond, MetricsInterval: 2 * time.Millisecond, EyeInterval: 2 * time.Millisecond},
		Recognizer: script,
		Detector:   &facedetect.Static{Result: facedetect.Result{FaceDetected: true, EyeContactRaw: 90, LookingDirection: facedetect.DirectionCenter}},
		Reports:    sink,
	}, func(msg any) {
		select {
		case events <- msg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbound := make(chan any, 8)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, inbound) }()

	inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: "s1", Action: protocol.ActionStart}

	deadline := time.After(5 * time.Second)
	stopped := false
	for {
		select {
		case msg := <-events:
			switch m := msg.(type) {
			case protocol.ClockTick:
				inbound <- protocol.FaceFrame{Type: protocol.TypeFaceFrame, SessionID: "s1", Frame: facedetect.Frame{Width: 640}}
				if m.ElapsedSeconds >= 12 && !stopped {
					stopped = true
					inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: "s1", Action: protocol.ActionStop}
				}
			case protocol.SessionScored:
				if !m.Saved || m.Record == nil {
					t.Fatalf("scored = %+v, want saved", m)
				}
				if m.Record.WordCount != 5 {
					t.Fatalf("WordCount = %d, want 5", m.Record.WordCount)
				}
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("Run() error = %v", err)
				}
				if len(sink.records) != 1 {
					t.Fatalf("sink records = %d, want 1", len(sink.records))
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for session_scored")
		}
	}
}
