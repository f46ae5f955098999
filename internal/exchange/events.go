package exchange

import (
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// EventSink receives the events of committed invocations.
type EventSink interface {
	Publish(event model.Event)
}

type nopSink struct{}

func (nopSink) Publish(model.Event) {}

// NopEventSink discards every event.
func NopEventSink() EventSink { return nopSink{} }

// RecordingSink keeps published events in memory.
type RecordingSink struct {
	Events []model.Event
}

func (s *RecordingSink) Publish(event model.Event) {
	s.Events = append(s.Events, event)
}

func (e *Exchange[T, A]) emit(event model.Event) {
	event.Timestamp = e.now()
	e.events.Publish(event)
}
