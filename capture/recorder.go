package capture

// Recorder receives relayed line events. Implementations must be safe for concurrent use,
// because both pumps of a session, and all sessions of a server, share one Recorder.
type Recorder interface {
	Record(event Event)
}

// NopRecorder discards all events. It stands in where a Recorder value is required;
// a relay without capture has a nil recorder instead.
type NopRecorder struct{}

// Record discards the event.
func (NopRecorder) Record(Event) {}

var _ Recorder = NopRecorder{}

// MultiRecorder fans events out to several recorders.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a MultiRecorder. Nil recorders are skipped.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}

	return m
}

// Record forwards the event to every recorder in order.
func (m *MultiRecorder) Record(event Event) {
	for _, r := range m.recorders {
		r.Record(event)
	}
}

var _ Recorder = (*MultiRecorder)(nil)
