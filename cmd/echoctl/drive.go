package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/echocoach/echo/internal/protocol"
	"github.com/echocoach/echo/internal/reportclient"
)

const driveWriteTimeout = 10 * time.Second

type driveOptions struct {
	Dialer  *websocket.Dialer
	Logger  logrus.FieldLogger
	OnEvent func(any)
}

// driver plays a scenario as the browser would: it answers recognizer commands with scripted
// recognizer callbacks and sends a landmark frame on every clock tick.
type driver struct {
	conn      *websocket.Conn
	sessionID string
	sc        *Scenario
	log       logrus.FieldLogger

	writeMu sync.Mutex

	mu         sync.Mutex
	next       int
	stopPlayer context.CancelFunc
}

func runDrive(ctx context.Context, client *reportclient.Client, sc *Scenario, opts driveOptions) (protocol.SessionScored, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	created, err := client.CreatePracticeSession(ctx)
	if err != nil {
		return protocol.SessionScored{}, fmt.Errorf("create session: %w", err)
	}
	defer func() {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := client.EndPracticeSession(endCtx, created.SessionID); err != nil {
			log.WithError(err).Warn("failed to end practice session")
		}
	}()

	wsURL, err := client.PracticeURL(created.SessionID)
	if err != nil {
		return protocol.SessionScored{}, err
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return protocol.SessionScored{}, fmt.Errorf("dial practice websocket: %w", err)
	}
	defer conn.Close()

	d := &driver{conn: conn, sessionID: created.SessionID, sc: sc, log: log.WithField("session_id", created.SessionID)}
	defer d.stopPlaying()

	msgs := make(chan any, 64)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msg, err := protocol.ParseServerMessage(data)
			if err != nil {
				d.log.WithError(err).Debug("skipping unknown server message")
				continue
			}
			select {
			case msgs <- msg:
			case <-readerDone:
				return
			}
		}
	}()

	if !sc.cameraEnabled() {
		off := false
		if err := d.control(protocol.ActionToggleCamera, &off); err != nil {
			return protocol.SessionScored{}, err
		}
	}
	if err := d.control(protocol.ActionStart, nil); err != nil {
		return protocol.SessionScored{}, err
	}

	frame := sc.Frame()
	stopped := false
	for {
		select {
		case <-ctx.Done():
			return protocol.SessionScored{}, ctx.Err()
		case err := <-readErr:
			return protocol.SessionScored{}, fmt.Errorf("practice websocket closed: %w", err)
		case msg := <-msgs:
			if opts.OnEvent != nil {
				opts.OnEvent(msg)
			}
			switch m := msg.(type) {
			case *protocol.RecognizerCommand:
				switch m.Action {
				case "start":
					d.startPlaying(ctx)
				case "stop":
					d.stopPlaying()
				}
			case *protocol.ClockTick:
				if err := d.write(protocol.FaceFrame{Type: protocol.TypeFaceFrame, SessionID: d.sessionID, Frame: frame}); err != nil {
					return protocol.SessionScored{}, err
				}
				if m.ElapsedSeconds >= sc.DurationSeconds && !stopped {
					stopped = true
					if err := d.control(protocol.ActionStop, nil); err != nil {
						return protocol.SessionScored{}, err
					}
				}
			case *protocol.ErrorEvent:
				d.log.WithFields(logrus.Fields{"code": m.Code, "source": m.Source}).Warn(m.Detail)
				if m.Code == "microphone_disabled" {
					return protocol.SessionScored{}, errors.New(m.Detail)
				}
			case *protocol.SessionScored:
				return *m, nil
			}
		}
	}
}

func (d *driver) write(v any) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_ = d.conn.SetWriteDeadline(time.Now().Add(driveWriteTimeout))
	return d.conn.WriteJSON(v)
}

func (d *driver) control(action string, enabled *bool) error {
	return d.write(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: d.sessionID,
		Action:    action,
		Enabled:   enabled,
		TSMs:      time.Now().UnixMilli(),
	})
}

// startPlaying resumes the script at the first unplayed step. An end or error step pauses
// playback until the server asks the recognizer to start again.
func (d *driver) startPlaying(ctx context.Context) {
	d.mu.Lock()
	if d.stopPlayer != nil {
		d.mu.Unlock()
		return
	}
	playCtx, cancel := context.WithCancel(ctx)
	d.stopPlayer = cancel
	d.mu.Unlock()

	go d.play(playCtx)
}

func (d *driver) stopPlaying() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopPlayer != nil {
		d.stopPlayer()
		d.stopPlayer = nil
	}
}

func (d *driver) play(ctx context.Context) {
	for {
		d.mu.Lock()
		if d.next >= len(d.sc.Steps) {
			d.mu.Unlock()
			return
		}
		step := d.sc.Steps[d.next]
		d.mu.Unlock()

		if step.After > 0 {
			timer := time.NewTimer(step.After)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}

		terminal := step.Error != "" || step.End
		d.mu.Lock()
		d.next++
		if terminal && d.stopPlayer != nil {
			d.stopPlayer()
			d.stopPlayer = nil
		}
		d.mu.Unlock()

		var msg any
		switch {
		case step.Error != "":
			msg = protocol.RecognizerError{Type: protocol.TypeRecognizerError, SessionID: d.sessionID, Error: step.Error}
		case step.End:
			msg = protocol.RecognizerEnd{Type: protocol.TypeRecognizerEnd, SessionID: d.sessionID}
		default:
			msg = protocol.RecognizerResult{
				Type:      protocol.TypeRecognizerResult,
				SessionID: d.sessionID,
				Final:     step.Final,
				Interim:   step.Interim,
				TSMs:      time.Now().UnixMilli(),
			}
		}
		if err := d.write(msg); err != nil {
			d.log.WithError(err).Warn("failed to send recognizer callback")
			return
		}
		if terminal {
			return
		}
	}
}
