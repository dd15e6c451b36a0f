package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/echocoach/echo/internal/coach"
)

func TestParseClientMessageRecognizerResult(t *testing.T) {
	raw := []byte(`{"type":"recognizer_result","session_id":"s1","final":"hello there ","interim":"how","ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	result, ok := msg.(RecognizerResult)
	if !ok {
		t.Fatalf("message type = %T, want RecognizerResult", msg)
	}
	if result.Final != "hello there " || result.Interim != "how" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":"s1","action":" Toggle_Camera ","enabled":false,"ts_ms":456}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionToggleCamera {
		t.Fatalf("Action = %q, want %q", control.Action, ActionToggleCamera)
	}
	if control.Enabled == nil || *control.Enabled {
		t.Fatalf("Enabled = %v, want false", control.Enabled)
	}
	if control.TSMs != 456 {
		t.Fatalf("TSMs = %d, want %d", control.TSMs, 456)
	}
}

func TestParseClientMessageFaceFrame(t *testing.T) {
	raw := []byte(`{"type":"face_frame","session_id":"s1","frame":{"width":640,"box":{"x":270,"y":10,"width":100,"height":100},"left_eye":[{"x":1,"y":2}],"right_eye":[{"x":3,"y":2}]}}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	frame, ok := msg.(FaceFrame)
	if !ok {
		t.Fatalf("message type = %T, want FaceFrame", msg)
	}
	if frame.Frame.Box == nil || frame.Frame.Box.X != 270 || len(frame.Frame.LeftEye) != 1 {
		t.Fatalf("unexpected frame: %+v", frame.Frame)
	}
}

func TestParseClientMessageRejectsInvalid(t *testing.T) {
	cases := []string{
		`{"type":"client_control","session_id":"","action":"start"}`,
		`{"type":"recognizer_error","session_id":"s1","error":""}`,
		`{"type":"recognizer_end"}`,
		`{"type":"face_frame","session_id":"s1","frame":{"width":0}}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) expected validation error", raw)
		}
	}
}

func TestMetricsUpdateWireShape(t *testing.T) {
	snap := coach.EmptySnapshot()
	snap.Pace = 140
	snap.FillerWords = []coach.FillerWord{{Word: "um", Count: 2}}
	raw, err := json.Marshal(NewMetricsUpdate("s1", snap, 12, []int{120, 140}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}
	update, ok := msg.(*MetricsUpdate)
	if !ok {
		t.Fatalf("message type = %T, want *MetricsUpdate", msg)
	}
	if update.Type != TypeMetricsUpdate || update.Pace != 140 || update.WordCount != 12 {
		t.Fatalf("unexpected update: %+v", update)
	}
	if len(update.FillerWords) != 1 || update.FillerWords[0].Word != "um" {
		t.Fatalf("FillerWords = %+v", update.FillerWords)
	}
	if update.Sentiment.Neutral != 100 {
		t.Fatalf("Sentiment = %+v, want neutral 100", update.Sentiment)
	}
}

func TestParseServerMessageRejectsUnknownType(t *testing.T) {
	if _, err := ParseServerMessage([]byte(`{"type":"client_control"}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func BenchmarkParseClientMessageRecognizerResult(b *testing.B) {
	raw := []byte(`{"type":"recognizer_result","session_id":"s1","final":"so this is the talk I wanted to give ","interim":"today","ts_ms":123456}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(RecognizerResult); !ok {
			b.Fatalf("message type = %T, want RecognizerResult", msg)
		}
	}
}
