package practice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/coach"
	"github.com/echocoach/echo/internal/facedetect"
	"github.com/echocoach/echo/internal/logging"
	"github.com/echocoach/echo/internal/observability"
	"github.com/echocoach/echo/internal/protocol"
	"github.com/echocoach/echo/internal/recognizer"
)

type Status int

const (
	Idle Status = iota
	Recording
	Scoring
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Scoring:
		return "scoring"
	default:
		return "unknown"
	}
}

var (
	ErrMicrophoneDisabled = errors.New("microphone is disabled")
	ErrAlreadyRecording   = errors.New("session already recording")
	ErrNotRecording       = errors.New("no session recording")
	ErrDeviceLocked       = errors.New("devices cannot be disabled while recording")
)

// Discard reasons reported when a stopped session is not saved.
const (
	DiscardTooShort   = "too_short"
	DiscardNoSpeech   = "no_speech"
	DiscardRecognizer = "recognizer_error"
)

const (
	reportSaveTimeout = 5 * time.Second
	detectionBuffer   = 8
	// Eye ticks without a new frame tolerated before sampling 0.
	maxMissedFrames = 4
)

type Config struct {
	ClockInterval   time.Duration
	MetricsInterval time.Duration
	EyeInterval     time.Duration
	MinSaveSeconds  int
}

func DefaultConfig() Config {
	return Config{
		ClockInterval:   time.Second,
		MetricsInterval: 500 * time.Millisecond,
		EyeInterval:     500 * time.Millisecond,
		MinSaveSeconds:  coach.MinSaveSeconds,
	}
}

// Notifier receives the start-session and end-session notifications. Delivery is
// fire-and-forget.
type Notifier interface {
	SessionStarted(ctx context.Context, practiceID string, at time.Time)
	SessionEnded(ctx context.Context, practiceID string, at time.Time)
}

// ReportSink persists saved session records. Failures are logged and never retried.
type ReportSink interface {
	SaveReport(ctx context.Context, rec coach.SessionRecord) error
}

// Outcome is the result of stopping a session.
type Outcome struct {
	Saved        bool
	Reason       string
	Scorecard    coach.Scorecard
	Record       *coach.SessionRecord
	Achievements []appstate.AchievementID
}

type Options struct {
	Config     Config
	Recognizer recognizer.Recognizer
	Detector   facedetect.Detector
	Notifier   Notifier
	Reports    ReportSink
	State      *appstate.State
	Metrics    *observability.Metrics
	Logger     logrus.FieldLogger
	Now        func() time.Time
	NewID      func() string
}

type detection struct {
	gen     uint64
	result  facedetect.Result
	err     error
	latency time.Duration
}

// Controller runs one practice connection. Every field below is owned by the goroutine that
// calls Run; collaborators report back through channels.
type Controller struct {
	sessionID string
	cfg       Config
	rec       recognizer.Recognizer
	det       facedetect.Detector
	notifier  Notifier
	reports   ReportSink
	state     *appstate.State
	metrics   *observability.Metrics
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string
	emit      func(any)

	status        Status
	session       *coach.Session
	practiceID    string
	gen           uint64
	camera        bool
	microphone    bool
	detectorReady bool
	lastFrame     *facedetect.Frame
	missedFrames  int

	timers         *timerSet
	ticks          chan tick
	detections     chan detection
	detectorLoaded chan error
	restartTimer   *time.Timer
	restartAttempt int
}

// New builds a controller. emit receives every outbound protocol event and must not block for
// long.
func New(sessionID string, opts Options, emit func(any)) *Controller {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = def.ClockInterval
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = def.MetricsInterval
	}
	if cfg.EyeInterval <= 0 {
		cfg.EyeInterval = def.EyeInterval
	}
	if cfg.MinSaveSeconds <= 0 {
		cfg.MinSaveSeconds = def.MinSaveSeconds
	}
	if emit == nil {
		emit = func(any) {}
	}

	c := &Controller{
		sessionID:      sessionID,
		cfg:            cfg,
		rec:            opts.Recognizer,
		det:            opts.Detector,
		notifier:       opts.Notifier,
		reports:        opts.Reports,
		state:          opts.State,
		metrics:        opts.Metrics,
		log:            opts.Logger,
		now:            opts.Now,
		newID:          opts.NewID,
		emit:           emit,
		timers:         newTimerSet(),
		ticks:          make(chan tick, 8),
		detections:     make(chan detection, detectionBuffer),
		detectorLoaded: make(chan error, 1),
	}
	if c.state == nil {
		c.state = appstate.New()
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	c.log = c.log.WithField("session_id", sessionID)
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.notifier == nil {
		c.notifier = emitNotifier{sessionID: sessionID, emit: emit}
	}
	settings := c.state.Settings()
	c.camera = settings.EnableCamera
	c.microphone = settings.EnableMicrophone
	return c
}

func (c *Controller) Status() Status { return c.status }

// Run serializes inbound messages, recognizer events, timer ticks and detector results until
// ctx ends or inbound closes. A session still recording at that point is discarded.
func (c *Controller) Run(ctx context.Context, inbound <-chan any) error {
	defer c.shutdown(context.WithoutCancel(ctx))

	if c.det != nil {
		go func() {
			c.detectorLoaded <- c.det.LoadModels(ctx)
		}()
	}
	c.emitDeviceState()

	var recEvents <-chan recognizer.Event
	if c.rec != nil {
		recEvents = c.rec.Events()
	}

	for {
		var restartC <-chan time.Time
		if c.restartTimer != nil {
			restartC = c.restartTimer.C
		}

		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			c.handleMessage(ctx, msg)
		case ev := <-recEvents:
			c.handleRecognizerEvent(ctx, ev)
		case t := <-c.ticks:
			c.handleTick(ctx, t)
		case d := <-c.detections:
			c.handleDetection(d)
		case err := <-c.detectorLoaded:
			c.handleDetectorLoaded(ctx, err)
		case <-restartC:
			c.restartTimer = nil
			c.restartRecognizer(ctx)
		}
	}
}

func (c *Controller) handleMessage(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case protocol.ClientControl:
		var err error
		switch m.Action {
		case protocol.ActionStart:
			err = c.Start(ctx)
		case protocol.ActionStop:
			_, err = c.Stop(ctx)
		case protocol.ActionToggleCamera:
			err = c.SetCamera(ctx, m.Enabled)
		case protocol.ActionToggleMicrophone:
			err = c.SetMicrophone(m.Enabled)
		default:
			err = errors.New("unsupported control action")
		}
		if err != nil {
			c.emitError(errorCode(err), "practice", err.Error())
		}
	case protocol.FaceFrame:
		frame := m.Frame
		c.lastFrame = &frame
	case recognizer.Event:
		c.handleRecognizerEvent(ctx, m)
	default:
		c.log.WithField("type", typeName(msg)).Debug("ignoring unsupported practice message")
	}
}

// Start begins a new session. It requires the microphone to be enabled.
func (c *Controller) Start(ctx context.Context) error {
	if c.status != Idle {
		return ErrAlreadyRecording
	}
	if !c.microphone {
		return ErrMicrophoneDisabled
	}

	now := c.now()
	c.gen++
	c.session = coach.NewSession(now)
	c.practiceID = c.newID()
	c.lastFrame = nil
	c.missedFrames = 0
	c.restartAttempt = 0
	if !c.camera {
		c.session.DisableEyeContact()
	}
	c.status = Recording
	c.metrics.RecordingChanged(true)
	c.metrics.ObserveSessionEvent("session_started")

	c.notifier.SessionStarted(ctx, c.practiceID, now)
	c.timers.start(ctx, tickClock, c.cfg.ClockInterval, c.gen, c.ticks)
	c.timers.start(ctx, tickMetrics, c.cfg.MetricsInterval, c.gen, c.ticks)
	c.startEyeTimer(ctx)

	if c.rec != nil {
		if err := c.rec.Start(ctx); err != nil {
			c.log.WithError(err).Warn("recognizer start failed")
			c.metrics.ObserveCollaboratorError("recognizer", "start_failed")
			c.halt(ctx, "recognizer_start_failed", "Failed to start speech recognition. Please try again.")
			return err
		}
	}
	c.emitMetrics()
	c.log.WithField("practice_id", c.practiceID).Info("practice session started")
	return nil
}

// Stop ends the recording, scores it and saves it when it is long enough.
func (c *Controller) Stop(ctx context.Context) (Outcome, error) {
	if c.status != Recording {
		return Outcome{}, ErrNotRecording
	}
	started := time.Now()
	c.status = Scoring
	c.teardown(ctx)

	sess := c.session
	card := sess.Score()
	out := Outcome{Scorecard: card}
	elapsed, words := sess.ElapsedSeconds, sess.WordCount()

	switch {
	case coach.ShouldSave(elapsed, words, c.cfg.MinSaveSeconds):
		rec := sess.Record(c.newID(), c.now(), card)
		out.Saved = true
		out.Record = &rec
		out.Achievements = c.state.AddSession(rec)
		c.saveReport(ctx, rec)
	case elapsed <= c.cfg.MinSaveSeconds:
		out.Reason = DiscardTooShort
	default:
		out.Reason = DiscardNoSpeech
	}

	c.status = Idle
	c.metrics.ObserveSession(elapsed, card.OverallScore, out.Saved)
	c.metrics.ObserveStage(observability.StageStopToScored, time.Since(started))
	if out.Saved {
		c.metrics.ObserveSessionEvent("session_saved")
	} else {
		c.metrics.ObserveSessionEvent("session_discarded_" + out.Reason)
	}
	c.emit(scoredEvent(c.sessionID, out))
	c.log.WithFields(logrus.Fields{
		"practice_id": c.practiceID,
		"saved":       out.Saved,
		"reason":      out.Reason,
		"elapsed":     elapsed,
		"words":       words,
		"score":       card.OverallScore,
	}).Info("practice session stopped")
	return out, nil
}

// SetCamera toggles (enabled == nil) or sets the camera. Disabling is refused while recording.
func (c *Controller) SetCamera(ctx context.Context, enabled *bool) error {
	next := !c.camera
	if enabled != nil {
		next = *enabled
	}
	if !next && c.status != Idle {
		return ErrDeviceLocked
	}
	c.camera = next
	c.state.UpdateSettings(appstate.SettingsPatch{EnableCamera: &next})
	if !next && c.session != nil {
		c.session.DisableEyeContact()
	}
	if next && c.status == Recording {
		c.startEyeTimer(ctx)
	}
	c.emitDeviceState()
	return nil
}

// SetMicrophone toggles (enabled == nil) or sets the microphone. Disabling is refused while
// recording.
func (c *Controller) SetMicrophone(enabled *bool) error {
	next := !c.microphone
	if enabled != nil {
		next = *enabled
	}
	if !next && c.status != Idle {
		return ErrDeviceLocked
	}
	c.microphone = next
	c.state.UpdateSettings(appstate.SettingsPatch{EnableMicrophone: &next})
	c.emitDeviceState()
	return nil
}

func (c *Controller) handleRecognizerEvent(ctx context.Context, ev recognizer.Event) {
	if c.status != Recording {
		// Trailing callbacks after a stop.
		return
	}
	switch recognizer.Decide(ev) {
	case recognizer.ActionApply:
		if c.session.ApplyTranscript(ev.Final, ev.Interim) {
			c.restartAttempt = 0
		}
	case recognizer.ActionRestart:
		if ev.Type == recognizer.EventError {
			c.scheduleRestart(recognizer.RestartDelay(c.restartAttempt))
			c.restartAttempt++
			return
		}
		if c.restartTimer == nil {
			c.restartRecognizer(ctx)
		}
	case recognizer.ActionHalt:
		c.log.WithField("kind", ev.Kind).Warn("recognizer failed")
		c.metrics.ObserveCollaboratorError("recognizer", string(ev.Kind))
		c.halt(ctx, string(ev.Kind), ev.Kind.Message())
	case recognizer.ActionIgnore:
		if ev.Kind == recognizer.ErrorOther {
			c.log.WithField("detail", ev.Detail).Warn("speech recognition issue")
		}
	}
}

func (c *Controller) scheduleRestart(after time.Duration) {
	if c.restartTimer != nil {
		return
	}
	c.restartTimer = time.NewTimer(after)
}

func (c *Controller) cancelRestart() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

func (c *Controller) restartRecognizer(ctx context.Context) {
	c.cancelRestart()
	if c.status != Recording || c.rec == nil {
		return
	}
	c.session.RecognizerRestarted()
	c.metrics.ObserveIndicator(observability.IndicatorRecognizerRestart)
	if err := c.rec.Start(ctx); err != nil {
		c.log.WithError(err).Warn("recognizer restart failed")
		c.metrics.ObserveCollaboratorError("recognizer", "restart_failed")
		c.halt(ctx, "recognizer_restart_failed", "Speech recognition stopped unexpectedly.")
	}
}

// halt forces Idle after a fatal recognizer failure. The session is discarded.
func (c *Controller) halt(ctx context.Context, code, message string) {
	if c.status != Recording {
		return
	}
	c.status = Scoring
	c.teardown(ctx)
	c.status = Idle
	c.emitError(code, "recognizer", message)
	c.emit(scoredEvent(c.sessionID, Outcome{Reason: DiscardRecognizer, Scorecard: c.session.Score()}))
	c.metrics.ObserveSessionEvent("session_halted")
}

// teardown stops timers and the recognizer, then sends the end-session notification.
func (c *Controller) teardown(ctx context.Context) {
	c.timers.stopAll()
	c.cancelRestart()
	if c.rec != nil {
		if err := c.rec.Stop(ctx); err != nil {
			c.log.WithError(err).Warn("recognizer stop failed")
		}
	}
	c.notifier.SessionEnded(ctx, c.practiceID, c.now())
	c.metrics.RecordingChanged(false)
}

func (c *Controller) shutdown(ctx context.Context) {
	if c.status == Recording {
		c.status = Scoring
		c.teardown(ctx)
		c.status = Idle
		c.metrics.ObserveSessionEvent("session_abandoned")
	}
	c.timers.stopAll()
	c.cancelRestart()
}

func (c *Controller) handleTick(ctx context.Context, t tick) {
	if t.gen != c.gen || c.status != Recording {
		return
	}
	switch t.kind {
	case tickClock:
		c.session.Tick()
		c.emit(protocol.ClockTick{
			Type:           protocol.TypeClockTick,
			SessionID:      c.sessionID,
			ElapsedSeconds: c.session.ElapsedSeconds,
			Speaking:       c.session.Speaking(),
		})
	case tickMetrics:
		c.emitMetrics()
	case tickEye:
		c.sampleEyeContact(ctx)
	}
}

func (c *Controller) emitMetrics() {
	if c.session == nil {
		return
	}
	started := time.Now()
	snap := c.session.Recompute(c.now())
	c.metrics.ObserveStage(observability.StageMetricsRecompute, time.Since(started))
	c.emit(protocol.NewMetricsUpdate(c.sessionID, snap, c.session.WordCount(), c.session.PaceHistory()))
}

func (c *Controller) startEyeTimer(ctx context.Context) {
	if c.status != Recording || !c.camera || !c.detectorReady {
		return
	}
	c.timers.start(ctx, tickEye, c.cfg.EyeInterval, c.gen, c.ticks)
}

// sampleEyeContact hands the latest unsampled frame to the detector. Calls may overlap; each
// result is appended as it arrives. Once frames stop arriving for maxMissedFrames ticks, every
// further tick samples 0.
func (c *Controller) sampleEyeContact(ctx context.Context) {
	if !c.camera || c.det == nil || !c.detectorReady {
		return
	}
	frame := c.lastFrame
	if frame == nil {
		c.missedFrames++
		c.metrics.ObserveIndicator(observability.IndicatorEyeFrameMissing)
		if c.missedFrames >= maxMissedFrames {
			c.session.RecordEyeContact(false, 0)
		}
		return
	}
	c.lastFrame = nil
	c.missedFrames = 0

	gen := c.gen
	go func(f facedetect.Frame) {
		started := time.Now()
		res, err := c.det.Detect(ctx, f)
		select {
		case c.detections <- detection{gen: gen, result: res, err: err, latency: time.Since(started)}:
		case <-ctx.Done():
		}
	}(*frame)
}

func (c *Controller) handleDetection(d detection) {
	c.metrics.ObserveStage(observability.StageEyeDetect, d.latency)
	if d.gen != c.gen || c.status != Recording || !c.camera {
		return
	}
	if d.err != nil {
		c.log.WithError(d.err).Debug("face detection failed")
		c.metrics.ObserveCollaboratorError("detector", "detect_failed")
		c.session.RecordEyeContact(false, 0)
		return
	}
	c.session.RecordEyeContact(d.result.FaceDetected, d.result.EyeContactRaw)
	c.emit(protocol.EyeContactUpdate{
		Type:             protocol.TypeEyeContactUpdate,
		SessionID:        c.sessionID,
		FaceDetected:     d.result.FaceDetected,
		LookingDirection: d.result.LookingDirection,
		EyeContact:       d.result.EyeContactRaw,
	})
}

func (c *Controller) handleDetectorLoaded(ctx context.Context, err error) {
	if err != nil {
		c.log.WithError(err).Error("failed to load face detection models")
		c.metrics.ObserveCollaboratorError("detector", "load_failed")
		c.metrics.ObserveIndicator(observability.IndicatorDetectorNotReady)
		c.detectorReady = false
		c.emitDeviceState()
		return
	}
	c.detectorReady = c.det.Ready()
	if !c.detectorReady {
		c.metrics.ObserveIndicator(observability.IndicatorDetectorNotReady)
	}
	c.log.Info("face detection models loaded")
	c.startEyeTimer(ctx)
	c.emitDeviceState()
}

func (c *Controller) saveReport(ctx context.Context, rec coach.SessionRecord) {
	if c.reports == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, reportSaveTimeout)
	defer cancel()
	started := time.Now()
	err := c.reports.SaveReport(saveCtx, rec)
	c.metrics.ObserveStage(observability.StageReportSave, time.Since(started))
	if err != nil {
		c.log.WithError(err).WithField("report_id", rec.ID).Error("failed to save session")
		c.metrics.ObserveCollaboratorError("reports", "save_failed")
	}
}

func (c *Controller) emitDeviceState() {
	c.emit(protocol.DeviceState{
		Type:              protocol.TypeDeviceState,
		SessionID:         c.sessionID,
		CameraEnabled:     c.camera,
		MicrophoneEnabled: c.microphone,
		DetectorReady:     c.detectorReady,
	})
}

func (c *Controller) emitError(code, source, detail string) {
	c.emit(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: c.sessionID,
		Code:      code,
		Source:    source,
		Detail:    detail,
	})
}

func scoredEvent(sessionID string, out Outcome) protocol.SessionScored {
	msg := protocol.SessionScored{
		Type:      protocol.TypeSessionScored,
		SessionID: sessionID,
		Saved:     out.Saved,
		Reason:    out.Reason,
		Scorecard: out.Scorecard,
		Record:    out.Record,
	}
	for _, id := range out.Achievements {
		msg.Achievements = append(msg.Achievements, string(id))
	}
	return msg
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrMicrophoneDisabled):
		return "microphone_disabled"
	case errors.Is(err, ErrAlreadyRecording):
		return "already_recording"
	case errors.Is(err, ErrNotRecording):
		return "not_recording"
	case errors.Is(err, ErrDeviceLocked):
		return "device_locked"
	default:
		return "invalid_control"
	}
}

// emitNotifier answers notifications with session_started and session_ended events.
type emitNotifier struct {
	sessionID string
	emit      func(any)
}

func (n emitNotifier) SessionStarted(_ context.Context, practiceID string, at time.Time) {
	n.emit(protocol.SessionNotice{
		Type:       protocol.TypeSessionStarted,
		SessionID:  n.sessionID,
		PracticeID: practiceID,
		Timestamp:  at.UnixMilli(),
	})
}

func (n emitNotifier) SessionEnded(_ context.Context, practiceID string, at time.Time) {
	n.emit(protocol.SessionNotice{
		Type:       protocol.TypeSessionEnded,
		SessionID:  n.sessionID,
		PracticeID: practiceID,
		Timestamp:  at.UnixMilli(),
	})
}
