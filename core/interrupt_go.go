//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// interruptMu stands in for the interrupt mask on a host OS, where timer
// callbacks run on other goroutines instead of in an interrupt.
var interruptMu sync.Mutex

// disableInterrupts takes the host-side mask
func disableInterrupts() State {
	interruptMu.Lock()
	return 0
}

// restoreInterrupts releases the host-side mask
func restoreInterrupts(State) {
	interruptMu.Unlock()
}
