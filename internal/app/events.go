package app

// EventType identifies session events.
type EventType int

const (
	EventReflectionsChanged EventType = iota
	EventRotationChanged
	EventGeometryChanged
	EventWatchChanged
	EventRefined
	EventFixedAxisChanged
	EventStateLoaded
	EventStageChanged
)

// String returns a short name for logs.
func (e EventType) String() string {
	switch e {
	case EventReflectionsChanged:
		return "reflections-changed"
	case EventRotationChanged:
		return "rotation-changed"
	case EventGeometryChanged:
		return "geometry-changed"
	case EventWatchChanged:
		return "watch-changed"
	case EventRefined:
		return "refined"
	case EventFixedAxisChanged:
		return "fixed-axis-changed"
	case EventStateLoaded:
		return "state-loaded"
	case EventStageChanged:
		return "stage-changed"
	default:
		return "unknown"
	}
}

// EventListener is called when an event occurs. Listeners run on the
// caller's goroutine after the session lock is released, so they may call
// back into the session.
type EventListener func(data interface{})

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}
