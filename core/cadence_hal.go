package core

// CadenceSource invokes a callback at a fixed interval from a context that
// may preempt the applier loop (a timer interrupt on hardware).
// Delivery is best effort: missed or late ticks are neither detected nor
// compensated.
type CadenceSource interface {
	Schedule(periodUS uint32, callback func()) error
}

// Global singleton used by core code.
var cadenceSource CadenceSource

// SetCadenceSource is called by target-specific code to register its source.
func SetCadenceSource(c CadenceSource) {
	cadenceSource = c
}

// MustCadence returns the configured source or panics if missing.
func MustCadence() CadenceSource {
	if cadenceSource == nil {
		panic("cadence source not configured")
	}
	return cadenceSource
}
