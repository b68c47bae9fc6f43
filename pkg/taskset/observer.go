package taskset

import (
	"log/slog"
	"sync"
)

// EventType classifies engine events for filtering and routing.
type EventType string

const (
	EventInstanceCreated   EventType = "instance_created"
	EventInstanceCompleted EventType = "instance_completed"
	EventInstancePaused    EventType = "instance_paused"
	EventInstanceResumed   EventType = "instance_resumed"
	EventInstanceCancelled EventType = "instance_cancelled"
	EventTaskAvailable     EventType = "task_available"
	EventTaskStarted       EventType = "task_started"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskSkipped       EventType = "task_skipped"
	EventTaskBlocked       EventType = "task_blocked"
	EventConditionError    EventType = "condition_error"
)

// Event is a single observation from the engine. The Metadata map is the
// forward-compatible extension point.
type Event struct {
	Type       EventType
	InstanceID string
	TaskID     string
	Error      error
	Metadata   map[string]any
}

// Sink receives engine events. Single-method design (like http.Handler)
// so adding new event types never breaks existing sinks.
type Sink interface {
	OnEvent(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(e Event) { f(e) }

// MultiSink fans out events to multiple sinks.
type MultiSink []Sink

func (m MultiSink) OnEvent(e Event) {
	for _, s := range m {
		s.OnEvent(e)
	}
}

// LogSink writes engine events as structured slog lines.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) OnEvent(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
	}
	if e.InstanceID != "" {
		attrs = append(attrs, slog.String("instance", e.InstanceID))
	}
	if e.TaskID != "" {
		attrs = append(attrs, slog.String("task", e.TaskID))
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}

	if e.Error != nil {
		logger.LogAttrs(nil, slog.LevelWarn, "taskset", attrs...)
	} else {
		logger.LogAttrs(nil, slog.LevelInfo, "taskset", attrs...)
	}
}

// Recorder accumulates events in memory for post-run analysis.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of all collected events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset clears collected events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// EventsOfType returns only events matching the given type.
func (r *Recorder) EventsOfType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// emit sends an event to a possibly-nil sink.
func emit(s Sink, e Event) {
	if s != nil {
		s.OnEvent(e)
	}
}
