package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/facedetect"
	"github.com/echocoach/echo/internal/practice"
	"github.com/echocoach/echo/internal/protocol"
	"github.com/echocoach/echo/internal/recognizer"
)

const replaySessionID = "replay"

type replayOptions struct {
	State   *appstate.State
	Reports practice.ReportSink
	Logger  logrus.FieldLogger
	// OnEvent sees every event the engine emits, in order.
	OnEvent func(any)
}

// runReplay drives a local practice controller through the scenario and returns the scored
// outcome. The clock runs at the scenario's replay speed.
func runReplay(ctx context.Context, sc *Scenario, opts replayOptions) (protocol.SessionScored, error) {
	clock := sc.replayClock()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan any, 256)
	ctrl := practice.New(replaySessionID, practice.Options{
		Config: practice.Config{
			ClockInterval:   clock,
			MetricsInterval: clock / 2,
			EyeInterval:     clock / 2,
		},
		Recognizer: recognizer.NewScript(sc.RecognizerSteps(clock)),
		Detector:   facedetect.NewLandmarkDetector(nil),
		Reports:    opts.Reports,
		State:      opts.State,
		Logger:     opts.Logger,
	}, func(msg any) {
		select {
		case events <- msg:
		case <-runCtx.Done():
		}
	})

	inbound := make(chan any, 16)
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(runCtx, inbound) }()
	finish := func() {
		cancel()
		<-done
	}

	send := func(msg any) bool {
		select {
		case inbound <- msg:
			return true
		case <-runCtx.Done():
			return false
		}
	}
	control := func(action string, enabled *bool) bool {
		return send(protocol.ClientControl{
			Type:      protocol.TypeClientControl,
			SessionID: replaySessionID,
			Action:    action,
			Enabled:   enabled,
		})
	}

	if !sc.cameraEnabled() {
		off := false
		control(protocol.ActionToggleCamera, &off)
	}
	control(protocol.ActionStart, nil)

	limit := time.Duration(sc.DurationSeconds+5)*clock*2 + 10*time.Second
	timeout := time.NewTimer(limit)
	defer timeout.Stop()

	frame := sc.Frame()
	stopped := false
	for {
		select {
		case <-ctx.Done():
			finish()
			return protocol.SessionScored{}, ctx.Err()
		case <-timeout.C:
			finish()
			return protocol.SessionScored{}, errors.New("replay timed out waiting for the session score")
		case msg := <-events:
			if opts.OnEvent != nil {
				opts.OnEvent(msg)
			}
			switch m := msg.(type) {
			case protocol.ClockTick:
				send(protocol.FaceFrame{Type: protocol.TypeFaceFrame, SessionID: replaySessionID, Frame: frame})
				if m.ElapsedSeconds >= sc.DurationSeconds && !stopped {
					stopped = true
					control(protocol.ActionStop, nil)
				}
			case protocol.ErrorEvent:
				if m.Code == "microphone_disabled" {
					finish()
					return protocol.SessionScored{}, fmt.Errorf("replay: %s", m.Detail)
				}
			case protocol.SessionScored:
				finish()
				return m, nil
			}
		}
	}
}
