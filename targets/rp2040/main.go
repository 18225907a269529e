//go:build rp2040

package main

import (
	"inverter/core"
	"inverter/protocol"
	"machine"
	"time"
)

var (
	driver  *RP2040InverterDriver
	cadence *AlarmCadence
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	enc := protocol.NewEncoder(&usbWriter{})
	core.SetDebugWriter(func(msg string) {
		_ = enc.Send(&protocol.DebugText{Text: msg})
	})

	driver = NewRP2040InverterDriver()
	cadence = NewAlarmCadence()
	core.SetInverterDriver(driver)
	core.SetCadenceSource(cadence)

	inv, err := core.Setup(core.DefaultConfig())
	if err != nil {
		core.DebugPrintln("setup: " + err.Error())
		halt()
	}

	// The applier loop never yields, so the report goes out first.
	// It is informational; a missing host must not stop modulation.
	_ = sendStartupReport(enc, inv)

	// Applier loop; only a comparator failure returns
	if err := inv.Run(nil); err != nil {
		driver.Stop()
		core.DebugPrintln("applier: " + err.Error())
		inv.Modulator().DumpDiagnostics()
		halt()
	}
}

// halt turns the bridge off and blinks the LED forever
func halt() {
	if driver != nil {
		driver.Stop()
	}
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
