//go:build rp2040

package main

import (
	"errors"
	"machine"
	"runtime/volatile"
	"unsafe"
)

// RP2040 PWM block, not exposed by machine.PWM
const (
	pwmBase        = 0x40050000
	pwmSliceStride = 0x14
	pwmCSROffset   = 0x00
	pwmCTROffset   = 0x08
	pwmENOffset    = 0xA0

	pwmCSREnable    = 1 << 0
	pwmCSRPhCorrect = 1 << 1
	pwmCSRInvertA   = 1 << 2
	pwmChannelA     = 0
	pwmChannelB     = 1
	pwmMaxTop       = 0xFFFE // TOP+1 must still fit the 16 bit compare register
	inverterPhases  = 3
	nanosPerSecond  = 1000000000
)

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// inverterLeg is one half bridge: a PWM slice driving the high side gate on
// channel A and the complementary low side gate on channel B
type inverterLeg struct {
	slice uint8
	high  machine.Pin
	low   machine.Pin
	pwm   pwmPeripheral
	csr   *volatile.Register32
	ctr   *volatile.Register32
}

// RP2040InverterDriver implements core.InverterDriver with three PWM slices
// counting up and down in phase-correct mode.
//
// A leg's high side is on while the counter is above the compare value and
// its low side while it is below, with the dead time carved out of the low
// side on both edges.
type RP2040InverterDriver struct {
	legs       [inverterPhases]inverterLeg
	halfPeriod uint32 // Carrier ticks from counter zero to TOP
	top        uint32
	deadHW     uint32 // Dead time in counter steps
	compare    [inverterPhases]uint32
}

// NewRP2040InverterDriver maps U, V and W to GPIO 16/17, 18/19 and 20/21
// (PWM slices 0, 1 and 2).
func NewRP2040InverterDriver() *RP2040InverterDriver {
	d := &RP2040InverterDriver{}
	pins := [inverterPhases][2]machine.Pin{
		{machine.GPIO16, machine.GPIO17},
		{machine.GPIO18, machine.GPIO19},
		{machine.GPIO20, machine.GPIO21},
	}
	groups := [inverterPhases]pwmPeripheral{machine.PWM0, machine.PWM1, machine.PWM2}
	for i := range d.legs {
		slice := uint8(i)
		base := uintptr(pwmBase + pwmSliceStride*uint32(slice))
		d.legs[i] = inverterLeg{
			slice: slice,
			high:  pins[i][0],
			low:   pins[i][1],
			pwm:   groups[i],
			csr:   (*volatile.Register32)(unsafe.Pointer(base + pwmCSROffset)),
			ctr:   (*volatile.Register32)(unsafe.Pointer(base + pwmCTROffset)),
		}
	}
	return d
}

// ConfigureCarrier sets every slice to a full up/down period of periodTicks
// at resolutionHz. The slices stay stopped until Start.
func (d *RP2040InverterDriver) ConfigureCarrier(periodTicks uint32, resolutionHz uint32) error {
	if periodTicks < 2 || resolutionHz == 0 {
		return errors.New("carrier period too short")
	}
	d.halfPeriod = periodTicks / 2

	// Phase-correct counting doubles the period machine.PWM computes
	periodNS := uint64(periodTicks) * nanosPerSecond / uint64(resolutionHz)
	for i := range d.legs {
		leg := &d.legs[i]
		if err := leg.pwm.Configure(machine.PWMConfig{Period: periodNS / 2}); err != nil {
			return err
		}
		if _, err := leg.pwm.Channel(leg.high); err != nil {
			return err
		}
		if _, err := leg.pwm.Channel(leg.low); err != nil {
			return err
		}
		leg.csr.ClearBits(pwmCSREnable)
		leg.csr.SetBits(pwmCSRPhCorrect | pwmCSRInvertA)
	}
	d.top = d.legs[0].pwm.Top()
	if d.top > pwmMaxTop {
		return errors.New("carrier period out of range")
	}
	return nil
}

// SetDeadTime converts the dead time from carrier ticks to counter steps
func (d *RP2040InverterDriver) SetDeadTime(ticks uint32) error {
	if d.halfPeriod == 0 {
		return errors.New("carrier not configured")
	}
	d.deadHW = (ticks*(d.top+1) + d.halfPeriod - 1) / d.halfPeriod
	for ch := range d.compare {
		d.apply(ch)
	}
	return nil
}

// SetCompareValue sets a leg's compare value in carrier ticks, [0, halfPeriod]
func (d *RP2040InverterDriver) SetCompareValue(channel int, value int) error {
	if channel < 0 || channel >= inverterPhases {
		return errors.New("phase channel out of range")
	}
	if d.halfPeriod == 0 {
		return errors.New("carrier not configured")
	}
	if value < 0 {
		value = 0
	}
	d.compare[channel] = uint32(value) * (d.top + 1) / d.halfPeriod
	d.apply(channel)
	return nil
}

// apply loads both channel levels of a leg from its compare value
func (d *RP2040InverterDriver) apply(channel int) {
	leg := &d.legs[channel]
	level := d.compare[channel]
	if level > d.top+1 {
		level = d.top + 1
	}

	// Channel A is inverted: high side on while counter >= level + dead
	high := level + d.deadHW
	if high > d.top+1 {
		high = d.top + 1
	}
	leg.pwm.Set(pwmChannelA, high)
	leg.pwm.Set(pwmChannelB, level)
}

// Start zeroes the counters and enables the three slices in the same cycle
// so the carriers stay aligned.
func (d *RP2040InverterDriver) Start() error {
	if d.halfPeriod == 0 {
		return errors.New("carrier not configured")
	}
	var mask uint32
	for i := range d.legs {
		leg := &d.legs[i]
		leg.ctr.Set(0)
		mask |= 1 << leg.slice
	}
	en := (*volatile.Register32)(unsafe.Pointer(uintptr(pwmBase + pwmENOffset)))
	en.SetBits(mask)
	return nil
}

// Stop disables the slices and drives every gate low
func (d *RP2040InverterDriver) Stop() {
	var mask uint32
	for i := range d.legs {
		mask |= 1 << d.legs[i].slice
	}
	en := (*volatile.Register32)(unsafe.Pointer(uintptr(pwmBase + pwmENOffset)))
	en.ClearBits(mask)

	for i := range d.legs {
		leg := &d.legs[i]
		leg.csr.ClearBits(pwmCSRInvertA)
		leg.pwm.Set(pwmChannelA, 0)
		leg.pwm.Set(pwmChannelB, 0)
		leg.high.Configure(machine.PinConfig{Mode: machine.PinOutput})
		leg.low.Configure(machine.PinConfig{Mode: machine.PinOutput})
		leg.high.Low()
		leg.low.Low()
	}
}
