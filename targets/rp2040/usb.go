//go:build rp2040

package main

import (
	"errors"
	"machine"
	"time"
)

const maxWriteFailures = 10

var errUSBDisconnected = errors.New("usb write made no progress")

// InitUSB configures machine.Serial, which is USB CDC on the RP2040
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// usbWriter is an io.Writer over USB CDC that retries partial writes and
// gives up after repeated failures
type usbWriter struct {
	consecutiveFailures uint32
}

func (w *usbWriter) Write(data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := machine.Serial.Write(data[written:])
		if err != nil || n == 0 {
			w.consecutiveFailures++
			if w.consecutiveFailures > maxWriteFailures {
				w.consecutiveFailures = 0
				if err == nil {
					err = errUSBDisconnected
				}
				return written, err
			}
			time.Sleep(time.Millisecond)
			continue
		}
		w.consecutiveFailures = 0
		written += n
	}
	return written, nil
}
