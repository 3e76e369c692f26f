package log

import (
	"testing"
	"time"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "test-conn",
		Layer:        LayerTransport,
		Category:     CategorySend,
	}

	logger.Log(event)

	event.Send = &SendEvent{MessageID: 1, Result: "OK"}
	logger.Log(event)

	event.Send = nil
	event.StateChange = &StateChangeEvent{Entity: StateEntityController, NewState: "STARTED"}
	logger.Log(event)

	event.StateChange = nil
	event.Disposition = &DispositionEvent{Source: "devices/d/messages/devicebound", MessageID: 1, Verdict: "ACCEPTED"}
	logger.Log(event)

	event.Disposition = nil
	event.Error = &ErrorEventData{Message: "test error"}
	logger.Log(event)
}

func TestLoggerInterfaceSatisfaction(t *testing.T) {
	var _ Logger = NoopLogger{}
	var _ Logger = &NoopLogger{}
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
}
