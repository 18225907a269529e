package core

import "sync/atomic"

// DutyRegister is the single-slot handoff between the cadence callback
// (producer) and the applier loop (consumer).
//
// Each field is an independent atomic. The producer stores the three duties
// and then raises the dirty flag; the consumer reads the flag, reads the
// duties and clears the flag once the values are pushed. The latest write
// wins: a publish that lands between the consumer's flag read and its clear
// is dropped, and the next cadence tick replaces it.
type DutyRegister struct {
	duty  [PhaseCount]atomic.Int32
	dirty atomic.Bool
}

// Publish replaces the duty triple and raises the dirty flag.
// Returns true if the previous triple had not been consumed yet.
func (r *DutyRegister) Publish(a, b, c int32) bool {
	r.duty[PhaseA].Store(a)
	r.duty[PhaseB].Store(b)
	r.duty[PhaseC].Store(c)
	return r.dirty.Swap(true)
}

// Pending reports whether an unconsumed triple is waiting.
func (r *DutyRegister) Pending() bool {
	return r.dirty.Load()
}

// Load returns the most recently published triple.
func (r *DutyRegister) Load() [PhaseCount]int32 {
	return [PhaseCount]int32{
		r.duty[PhaseA].Load(),
		r.duty[PhaseB].Load(),
		r.duty[PhaseC].Load(),
	}
}

// Clear lowers the dirty flag.
func (r *DutyRegister) Clear() {
	r.dirty.Store(false)
}
