//go:build rp2040

package main

import (
	"inverter/core"
	"inverter/protocol"
)

const targetName = "rp2040"

// sendStartupReport writes the identify, timing and table messages so a
// host monitor can check the modulation parameters
func sendStartupReport(enc *protocol.Encoder, inv *core.Inverter) error {
	return protocol.InverterReport(targetName, inv).Write(enc)
}
