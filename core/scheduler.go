package core

import (
	"errors"
	"sync/atomic"
)

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by WakeTime and runs the ones that are due
// when its clock is advanced. Times are in microseconds.
type Scheduler struct {
	timerList *Timer
	now       atomic.Uint32
}

// NewScheduler creates a scheduler with its clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the scheduler clock.
func (s *Scheduler) Now() uint32 {
	return s.now.Load()
}

// ScheduleTimer adds a timer to the schedule
func (s *Scheduler) ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.insertTimer(t)
}

// insertTimer inserts a timer in sorted order by WakeTime
func (s *Scheduler) insertTimer(t *Timer) {
	if s.timerList == nil || timerBefore(t.WakeTime, s.timerList.WakeTime) {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && timerBefore(current.Next.WakeTime, t.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Advance moves the clock to now and runs every timer that is due
func (s *Scheduler) Advance(now uint32) {
	s.now.Store(now)

	state := disableInterrupts()
	defer restoreInterrupts(state)

	for s.timerList != nil && !timerBefore(now, s.timerList.WakeTime) {
		timer := s.timerList
		s.timerList = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SF_RESCHEDULE {
			s.insertTimer(timer)
		}
	}
}

// Pending returns the number of scheduled timers
func (s *Scheduler) Pending() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	n := 0
	for t := s.timerList; t != nil; t = t.Next {
		n++
	}
	return n
}

// SoftCadence is a CadenceSource driven by a Scheduler clock instead of a
// hardware timer. Each tick reschedules itself one period after its previous
// deadline, so advancing the clock in period steps never drifts.
type SoftCadence struct {
	sched    *Scheduler
	timer    Timer
	period   uint32
	callback func()
}

// NewSoftCadence creates a cadence source on the given scheduler.
func NewSoftCadence(s *Scheduler) *SoftCadence {
	return &SoftCadence{sched: s}
}

// Schedule registers callback to run every periodUS microseconds of scheduler time.
func (c *SoftCadence) Schedule(periodUS uint32, callback func()) error {
	if periodUS == 0 {
		return ErrInvalidPeriod
	}
	if callback == nil {
		return errors.New("cadence callback is nil")
	}
	if c.callback != nil {
		return errors.New("cadence already scheduled")
	}
	c.period = periodUS
	c.callback = callback
	c.timer.WakeTime = c.sched.Now() + periodUS
	c.timer.Handler = c.fire
	c.sched.ScheduleTimer(&c.timer)
	return nil
}

// Period returns the scheduled period in microseconds, 0 before Schedule.
func (c *SoftCadence) Period() uint32 {
	return c.period
}

func (c *SoftCadence) fire(t *Timer) uint8 {
	c.callback()
	t.WakeTime += c.period
	return SF_RESCHEDULE
}
