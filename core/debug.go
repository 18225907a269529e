package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// DiagEvent captures an applier event for post-mortem analysis
type DiagEvent struct {
	EventType uint8  // Event type code
	Channel   uint8  // Comparator channel
	Tick      uint32 // Modulator tick count at the event
	Value1    int32  // Context-dependent value
	Value2    int32  // Context-dependent value
}

// Event type codes
const (
	EvtRunStart    = 1 // Applier loop entered
	EvtRunStop     = 2 // Applier loop left on stop
	EvtClamp       = 3 // Value1 raw sample, Value2 value applied
	EvtDriverError = 4 // Value1 value the driver rejected
)

const (
	DiagRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	debugPrintln(msg)
}

// diagRing holds the last applier events. Only the applier writes it.
type diagRing struct {
	events [DiagRingSize]DiagEvent
	head   uint8
}

func (r *diagRing) record(eventType uint8, channel int, tick uint32, v1, v2 int32) {
	idx := r.head
	r.events[idx] = DiagEvent{
		EventType: eventType,
		Channel:   uint8(channel),
		Tick:      tick,
		Value1:    v1,
		Value2:    v2,
	}
	r.head = (idx + 1) % DiagRingSize
}

// snapshot returns the recorded events, oldest first
func (r *diagRing) snapshot() []DiagEvent {
	var out []DiagEvent
	for i := uint8(0); i < DiagRingSize; i++ {
		evt := r.events[(r.head+i)%DiagRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

func eventName(eventType uint8) string {
	switch eventType {
	case EvtRunStart:
		return "RUN_START"
	case EvtRunStop:
		return "RUN_STOP"
	case EvtClamp:
		return "CLAMP"
	case EvtDriverError:
		return "DRIVER_ERR!"
	default:
		return "UNKNOWN"
	}
}

// Diagnostics returns the applier event ring, oldest first. Call it once
// the applier loop has returned.
func (m *Modulator) Diagnostics() []DiagEvent {
	return m.diag.snapshot()
}

// DumpDiagnostics writes the counters and the event ring through the debug
// writer. Call it once the applier loop has returned.
func (m *Modulator) DumpDiagnostics() {
	s := m.Stats()
	debugPrintln("idx=" + itoa(s.Index) + " ticks=" + utoa(s.Ticks))
	debugPrintln("applied=" + utoa(s.Applied) + " overruns=" + utoa(s.Overruns) +
		" clamped=" + utoa(s.Clamped))

	for _, evt := range m.diag.snapshot() {
		debugPrintln(eventName(evt.EventType) +
			" ch=" + itoa(int(evt.Channel)) +
			" t=" + utoa(evt.Tick) +
			" v1=" + itoa(int(evt.Value1)) +
			" v2=" + itoa(int(evt.Value2)))
	}
}
