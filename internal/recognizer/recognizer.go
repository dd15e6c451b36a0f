package recognizer

import (
	"context"
	"strings"
	"time"

	"github.com/echocoach/echo/internal/reliability"
)

type EventType string

const (
	EventResult EventType = "result"
	EventError  EventType = "error"
	EventEnd    EventType = "end"
)

// ErrorKind is the closed set of recognizer failures.
type ErrorKind string

const (
	ErrorNoSpeech     ErrorKind = "no-speech"
	ErrorAudioCapture ErrorKind = "audio-capture"
	ErrorNotAllowed   ErrorKind = "not-allowed"
	ErrorNetwork      ErrorKind = "network"
	ErrorAborted      ErrorKind = "aborted"
	ErrorOther        ErrorKind = "other"
)

// ParseErrorKind maps a wire value onto the enum. Unknown values become ErrorOther.
func ParseErrorKind(raw string) ErrorKind {
	switch k := ErrorKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case ErrorNoSpeech, ErrorAudioCapture, ErrorNotAllowed, ErrorNetwork, ErrorAborted:
		return k
	default:
		return ErrorOther
	}
}

// Fatal reports whether the error ends listening for the session.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrorAudioCapture, ErrorNotAllowed, ErrorNetwork:
		return true
	default:
		return false
	}
}

// Message is the user-visible text for a fatal error.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorAudioCapture:
		return "Microphone not available. Please check your microphone settings."
	case ErrorNotAllowed:
		return "Microphone permission denied. Please allow microphone access."
	case ErrorNetwork:
		return "Network error occurred. Please check your connection."
	default:
		return ""
	}
}

// Event is one recognizer callback. Final carries the cumulative final text of the current
// recognition run; Interim is display-only.
type Event struct {
	Type    EventType
	Final   string
	Interim string
	Kind    ErrorKind
	Detail  string
	At      time.Time
}

// Recognizer is a continuous speech-to-text source.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Events() <-chan Event
}

// Action is what the session owner should do with an event while listening.
type Action int

const (
	ActionApply Action = iota
	ActionRestart
	ActionHalt
	ActionIgnore
)

// Decide classifies an event received while the session is listening.
func Decide(ev Event) Action {
	switch ev.Type {
	case EventResult:
		return ActionApply
	case EventEnd:
		return ActionRestart
	case EventError:
		switch {
		case ev.Kind.Fatal():
			return ActionHalt
		case ev.Kind == ErrorNoSpeech:
			return ActionRestart
		default:
			return ActionIgnore
		}
	default:
		return ActionIgnore
	}
}

const (
	restartBase = 100 * time.Millisecond
	restartCap  = 2 * time.Second
)

// RestartDelay is the wait before the attempt-th consecutive restart. The first restart waits
// 100ms; later ones back off until speech is seen again.
func RestartDelay(attempt int) time.Duration {
	return reliability.ExponentialBackoff(attempt, restartBase, restartCap)
}
