//go:build rp2040

package main

import "device/rp"

// The RP2040 TIMER is a 64-bit microsecond counter; the cadence only needs
// the low word and compares deadlines with wraparound.

// hardwareTime reads the low 32 bits of the microsecond counter without
// latching the high word
func hardwareTime() uint32 {
	return rp.TIMER.TIMERAWL.Get()
}
