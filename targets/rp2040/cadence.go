//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"runtime/interrupt"
)

// Alarm 0 is used by the TinyGo runtime for sleeping
const cadenceAlarmMask = rp.TIMER_INTE_ALARM_3

// activeCadence is the source the alarm interrupt serves
var activeCadence *AlarmCadence

// AlarmCadence implements core.CadenceSource on TIMER alarm 3. The callback
// runs in the alarm interrupt and so preempts the applier loop.
type AlarmCadence struct {
	period   uint32
	deadline uint32
	callback func()
	late     uint32 // Deadlines already passed when re-arming
}

// NewAlarmCadence creates the cadence source. Only one may be scheduled.
func NewAlarmCadence() *AlarmCadence {
	return &AlarmCadence{}
}

// Schedule arms alarm 3 to fire every periodUS microseconds
func (c *AlarmCadence) Schedule(periodUS uint32, callback func()) error {
	if periodUS == 0 {
		return errors.New("cadence period must be positive")
	}
	if callback == nil {
		return errors.New("cadence callback is nil")
	}
	if activeCadence != nil {
		return errors.New("alarm cadence already scheduled")
	}

	c.period = periodUS
	c.callback = callback
	activeCadence = c

	intr := interrupt.New(rp.IRQ_TIMER_IRQ_3, alarmHandler)
	intr.SetPriority(0x00)

	rp.TIMER.INTR.Set(cadenceAlarmMask)
	rp.TIMER.INTE.SetBits(cadenceAlarmMask)
	intr.Enable()

	c.deadline = hardwareTime() + periodUS
	rp.TIMER.ALARM3.Set(c.deadline)
	return nil
}

// Late returns how many times a deadline had already passed when re-arming
func (c *AlarmCadence) Late() uint32 {
	return c.late
}

// alarmHandler re-arms the alarm at the next absolute deadline, then runs
// the callback. Missed deadlines are skipped, not replayed.
func alarmHandler(intr interrupt.Interrupt) {
	rp.TIMER.INTR.Set(cadenceAlarmMask)

	c := activeCadence
	if c == nil {
		return
	}

	c.deadline += c.period
	if int32(c.deadline-hardwareTime()) <= 0 {
		c.late++
		c.deadline = hardwareTime() + c.period
	}
	rp.TIMER.ALARM3.Set(c.deadline)

	c.callback()
}
