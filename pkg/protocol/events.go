package protocol

import "github.com/rs/zerolog"

// EventSink receives typed events published by the core. Each package
// defines its own event structs; sinks dispatch on concrete type.
type EventSink interface {
	Publish(event any)
}

// NopSink drops all events.
type NopSink struct{}

func (NopSink) Publish(any) {}

// LogSink logs every event at debug level.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Publish(event any) {
	s.Log.Debug().Type("event", event).Interface("fields", event).Msg("event")
}
