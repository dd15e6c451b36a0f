package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/coach"
	"github.com/echocoach/echo/internal/facedetect"
	"github.com/echocoach/echo/internal/observability"
	"github.com/echocoach/echo/internal/policy"
	"github.com/echocoach/echo/internal/practice"
	"github.com/echocoach/echo/internal/protocol"
	"github.com/echocoach/echo/internal/recognizer"
	"github.com/echocoach/echo/internal/reports"
	"github.com/echocoach/echo/internal/session"
)

const (
	wsQueueSize      = 256
	wsWriteTimeout   = 10 * time.Second
	wsReadTimeout    = 120 * time.Second
	wsReadLimit      = 2 << 20
	criticalSendWait = 600 * time.Millisecond
	stateSaveTimeout = 5 * time.Second
	stateLoadTimeout = 3 * time.Second
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status == session.StatusEnded {
		respondError(w, http.StatusGone, "session_ended", session.ErrEnded.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.logger(r.Context()).WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    sess.UserID,
	})
	s.metrics.ObserveSessionEvent("ws_connected")
	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
		defer s.metrics.ActiveConnections.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stateKey := s.stateKey(sess)
	state := s.loadState(ctx, stateKey, log)

	out := &outboundQueue{
		ctx:     ctx,
		ch:      make(chan any, wsQueueSize),
		metrics: s.metrics,
	}
	relay := recognizer.NewRelay(func(_ context.Context, cmd recognizer.Command) error {
		out.send(practice.RelayCommand(sessionID, cmd))
		return nil
	})

	opts := practice.Options{
		Config: practice.Config{
			ClockInterval:   s.cfg.PracticeClockInterval,
			MetricsInterval: s.cfg.PracticeMetricsInterval,
			EyeInterval:     s.cfg.PracticeEyeInterval,
			MinSaveSeconds:  s.cfg.PracticeMinSaveSeconds,
		},
		Recognizer: relay,
		Detector:   facedetect.NewLandmarkDetector(nil),
		Notifier:   &sessionNotifier{sessionID: sessionID, sessions: s.sessions, send: out.send, log: log},
		State:      state,
		Metrics:    s.metrics,
		Logger:     log,
	}
	if s.reports != nil && sess.UserID != anonymousUser {
		opts.Reports = &reportSink{store: s.reports, userID: sess.UserID}
	}
	ctrl := practice.New(sessionID, opts, out.send)

	inbound := make(chan any, wsQueueSize)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ctrl.Run(ctx, inbound); err != nil {
			log.WithError(err).Warn("practice controller stopped with error")
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-out.ch:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.ObserveOutboundMessage(outboundType(msg), "write_error")
					cancel()
					return
				}
				s.metrics.ObserveWSMessage("outbound", outboundType(msg))
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_ = s.sessions.Touch(sessionID)

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			}
			select {
			case out.ch <- errEvent:
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "queued")
			default:
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "drop_full")
			}
			continue
		}
		s.metrics.ObserveWSMessage("inbound", inboundType(parsed))

		// Recognizer callbacks go straight to the relay; the controller reads them from its
		// event channel.
		if ev, ok := practice.RecognizerEvent(parsed); ok {
			if err := relay.Deliver(ctx, ev); err != nil {
				break readLoop
			}
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone

	s.saveState(ctx, stateKey, state, log)
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

// stateKey picks the persisted state slot. Anonymous connections get a slot of their own.
func (s *Server) stateKey(sess *session.Session) string {
	if sess.UserID == "" || sess.UserID == anonymousUser {
		return anonymousUser + ":" + sess.ID
	}
	return sess.UserID
}

func (s *Server) loadState(ctx context.Context, key string, log logrus.FieldLogger) *appstate.State {
	loadCtx, cancel := context.WithTimeout(ctx, stateLoadTimeout)
	defer cancel()
	st, err := s.states.Load(loadCtx, key)
	if err != nil || st == nil {
		if err != nil {
			log.WithError(err).Warn("failed to load practice state, starting fresh")
		}
		return appstate.New()
	}
	return st
}

func (s *Server) saveState(ctx context.Context, key string, st *appstate.State, log logrus.FieldLogger) {
	if strings.HasPrefix(key, anonymousUser+":") {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateSaveTimeout)
	defer cancel()
	if err := s.states.Save(saveCtx, key, st); err != nil {
		log.WithError(err).Error("failed to save practice state")
		s.metrics.ObserveCollaboratorError("appstate", "save_failed")
	}
}

// outboundQueue keeps websocket writes on one goroutine. Critical events wait briefly for
// room; everything else is dropped when the queue is full.
type outboundQueue struct {
	ctx     context.Context
	ch      chan any
	metrics *observability.Metrics
}

func (q *outboundQueue) send(msg any) {
	msgType, critical := outboundMessageMeta(msg)
	if q.ctx.Err() != nil {
		q.metrics.ObserveOutboundMessage(msgType, "closed")
		return
	}

	if critical {
		timer := time.NewTimer(criticalSendWait)
		defer timer.Stop()
		select {
		case q.ch <- msg:
			q.metrics.ObserveOutboundMessage(msgType, "delivered")
		case <-q.ctx.Done():
			q.metrics.ObserveOutboundMessage(msgType, "closed")
		case <-timer.C:
			q.metrics.ObserveOutboundMessage(msgType, "timeout")
			q.metrics.ObserveSessionEvent("outbound_drop")
			q.metrics.ObserveIndicator(observability.IndicatorOutboundDropped)
		}
		return
	}

	select {
	case q.ch <- msg:
		q.metrics.ObserveOutboundMessage(msgType, "delivered")
	default:
		q.metrics.ObserveOutboundMessage(msgType, "dropped")
		q.metrics.ObserveSessionEvent("outbound_drop")
		q.metrics.ObserveIndicator(observability.IndicatorOutboundDropped)
	}
}

func outboundMessageMeta(msg any) (msgType string, critical bool) {
	switch m := msg.(type) {
	case protocol.SessionNotice:
		return string(m.Type), true
	case protocol.RecognizerCommand:
		return string(m.Type), true
	case protocol.SessionScored:
		return string(m.Type), true
	case protocol.DeviceState:
		return string(m.Type), true
	case protocol.ErrorEvent:
		return string(m.Type), true
	case protocol.SystemEvent:
		return string(m.Type), true
	case protocol.ClockTick:
		return string(m.Type), false
	case protocol.MetricsUpdate:
		return string(m.Type), false
	case protocol.EyeContactUpdate:
		return string(m.Type), false
	default:
		return "unknown", false
	}
}

func outboundType(msg any) string {
	t, _ := outboundMessageMeta(msg)
	return t
}

func inboundType(msg any) string {
	switch m := msg.(type) {
	case protocol.ClientControl:
		return string(m.Type)
	case protocol.RecognizerResult:
		return string(m.Type)
	case protocol.RecognizerError:
		return string(m.Type)
	case protocol.RecognizerEnd:
		return string(m.Type)
	case protocol.FaceFrame:
		return string(m.Type)
	default:
		return "unknown"
	}
}

// sessionNotifier records practice runs on the connection session and answers each
// notification with a session_started or session_ended event.
type sessionNotifier struct {
	sessionID string
	sessions  *session.Manager
	send      func(any)
	log       logrus.FieldLogger
}

func (n *sessionNotifier) SessionStarted(_ context.Context, practiceID string, at time.Time) {
	if err := n.sessions.BeginPractice(n.sessionID, practiceID); err != nil {
		n.log.WithError(err).Warn("failed to record practice start")
	}
	n.send(protocol.SessionNotice{
		Type:       protocol.TypeSessionStarted,
		SessionID:  n.sessionID,
		PracticeID: practiceID,
		Timestamp:  at.UnixMilli(),
	})
}

func (n *sessionNotifier) SessionEnded(_ context.Context, practiceID string, at time.Time) {
	if err := n.sessions.EndPractice(n.sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		n.log.WithError(err).Warn("failed to record practice end")
	}
	n.send(protocol.SessionNotice{
		Type:       protocol.TypeSessionEnded,
		SessionID:  n.sessionID,
		PracticeID: practiceID,
		Timestamp:  at.UnixMilli(),
	})
}

// reportSink stores saved sessions as reports owned by the connection's user.
type reportSink struct {
	store  reports.Store
	userID string
}

func (r *reportSink) SaveReport(ctx context.Context, rec coach.SessionRecord) error {
	rec.Transcript, _ = policy.RedactPII(rec.Transcript)
	_, err := r.store.Create(ctx, reports.Report{SessionRecord: rec, UserID: r.userID})
	return err
}
