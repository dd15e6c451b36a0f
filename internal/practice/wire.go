package practice

import (
	"fmt"
	"time"

	"github.com/echocoach/echo/internal/protocol"
	"github.com/echocoach/echo/internal/recognizer"
)

// RecognizerEvent converts a relayed recognizer callback into a recognizer event. It reports
// false for any other message.
func RecognizerEvent(msg any) (recognizer.Event, bool) {
	switch m := msg.(type) {
	case protocol.RecognizerResult:
		ev := recognizer.Event{Type: recognizer.EventResult, Final: m.Final, Interim: m.Interim}
		if m.TSMs > 0 {
			ev.At = time.UnixMilli(m.TSMs)
		}
		return ev, true
	case protocol.RecognizerError:
		return recognizer.Event{
			Type:   recognizer.EventError,
			Kind:   recognizer.ParseErrorKind(m.Error),
			Detail: m.Detail,
		}, true
	case protocol.RecognizerEnd:
		return recognizer.Event{Type: recognizer.EventEnd}, true
	default:
		return recognizer.Event{}, false
	}
}

// RelayCommand maps a recognizer command onto the outbound protocol event.
func RelayCommand(sessionID string, cmd recognizer.Command) protocol.RecognizerCommand {
	return protocol.RecognizerCommand{
		Type:      protocol.TypeRecognizerCommand,
		SessionID: sessionID,
		Action:    string(cmd),
	}
}

func typeName(msg any) string {
	return fmt.Sprintf("%T", msg)
}
