package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/echocoach/echo/internal/coach"
	"github.com/echocoach/echo/internal/facedetect"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl    MessageType = "client_control"
	TypeRecognizerResult MessageType = "recognizer_result"
	TypeRecognizerError  MessageType = "recognizer_error"
	TypeRecognizerEnd    MessageType = "recognizer_end"
	TypeFaceFrame        MessageType = "face_frame"

	TypeSessionStarted    MessageType = "session_started"
	TypeSessionEnded      MessageType = "session_ended"
	TypeRecognizerCommand MessageType = "recognizer_command"
	TypeClockTick         MessageType = "clock_tick"
	TypeMetricsUpdate     MessageType = "metrics_update"
	TypeEyeContactUpdate  MessageType = "eye_contact_update"
	TypeSessionScored     MessageType = "session_scored"
	TypeDeviceState       MessageType = "device_state"
	TypeSystemEvent       MessageType = "system_event"
	TypeErrorEvent        MessageType = "error_event"
)

// Control actions carried by client_control.
const (
	ActionStart            = "start"
	ActionStop             = "stop"
	ActionToggleCamera     = "toggle_camera"
	ActionToggleMicrophone = "toggle_microphone"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Enabled   *bool       `json:"enabled,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

// RecognizerResult relays one client recognizer callback. Final is cumulative for the current
// recognition run.
type RecognizerResult struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Final     string      `json:"final"`
	Interim   string      `json:"interim"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type RecognizerError struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Error     string      `json:"error"`
	Detail    string      `json:"detail,omitempty"`
}

type RecognizerEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type FaceFrame struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"session_id"`
	Frame     facedetect.Frame `json:"frame"`
}

// SessionNotice answers the start-session and end-session notifications.
type SessionNotice struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	PracticeID string      `json:"practice_id"`
	Timestamp  int64       `json:"timestamp"`
}

type RecognizerCommand struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type ClockTick struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	Speaking       bool        `json:"speaking"`
}

type MetricsUpdate struct {
	Type        MessageType        `json:"type"`
	SessionID   string             `json:"session_id"`
	Pace        int                `json:"pace"`
	FillerWords []coach.FillerWord `json:"filler_words"`
	EyeContact  int                `json:"eye_contact"`
	Sentiment   coach.Sentiment    `json:"sentiment"`
	Transcript  string             `json:"transcript"`
	WordCount   int                `json:"word_count"`
	PaceHistory []int              `json:"pace_history"`
}

func NewMetricsUpdate(sessionID string, snap coach.Snapshot, wordCount int, paceHistory []int) MetricsUpdate {
	return MetricsUpdate{
		Type:        TypeMetricsUpdate,
		SessionID:   sessionID,
		Pace:        snap.Pace,
		FillerWords: snap.FillerWords,
		EyeContact:  snap.EyeContact,
		Sentiment:   snap.Sentiment,
		Transcript:  snap.Transcript,
		WordCount:   wordCount,
		PaceHistory: paceHistory,
	}
}

type EyeContactUpdate struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	FaceDetected     bool        `json:"face_detected"`
	LookingDirection string      `json:"looking_direction"`
	EyeContact       int         `json:"eye_contact"`
}

// SessionScored reports the outcome of a stop. Record is nil when the session was discarded.
type SessionScored struct {
	Type         MessageType          `json:"type"`
	SessionID    string               `json:"session_id"`
	Saved        bool                 `json:"saved"`
	Reason       string               `json:"reason,omitempty"`
	Scorecard    coach.Scorecard      `json:"scorecard"`
	Record       *coach.SessionRecord `json:"record,omitempty"`
	Achievements []string             `json:"achievements,omitempty"`
}

type DeviceState struct {
	Type              MessageType `json:"type"`
	SessionID         string      `json:"session_id"`
	CameraEnabled     bool        `json:"camera_enabled"`
	MicrophoneEnabled bool        `json:"microphone_enabled"`
	DetectorReady     bool        `json:"detector_ready"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	case TypeRecognizerResult:
		var msg RecognizerResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid recognizer_result")
		}
		return msg, nil
	case TypeRecognizerError:
		var msg RecognizerError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Error == "" {
			return nil, errors.New("invalid recognizer_error")
		}
		return msg, nil
	case TypeRecognizerEnd:
		var msg RecognizerEnd
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid recognizer_end")
		}
		return msg, nil
	case TypeFaceFrame:
		var msg FaceFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Frame.Width <= 0 {
			return nil, errors.New("invalid face_frame")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ParseServerMessage decodes server events for clients such as echoctl.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeSessionStarted, TypeSessionEnded:
		msg = &SessionNotice{}
	case TypeRecognizerCommand:
		msg = &RecognizerCommand{}
	case TypeClockTick:
		msg = &ClockTick{}
	case TypeMetricsUpdate:
		msg = &MetricsUpdate{}
	case TypeEyeContactUpdate:
		msg = &EyeContactUpdate{}
	case TypeSessionScored:
		msg = &SessionScored{}
	case TypeDeviceState:
		msg = &DeviceState{}
	case TypeSystemEvent:
		msg = &SystemEvent{}
	case TypeErrorEvent:
		msg = &ErrorEvent{}
	default:
		return nil, ErrUnsupportedType
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
