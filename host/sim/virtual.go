package sim

import (
	"sync"

	"github.com/pkg/errors"

	"inverter/core"
)

var ErrInjectedFailure = errors.New("injected comparator failure")

// CompareWrite is one value pushed to a channel comparator
type CompareWrite struct {
	Channel int `json:"channel"`
	Value   int `json:"value"`
}

// VirtualInverter implements core.InverterDriver in memory. It keeps the
// last value per channel and a bounded history of compare writes.
type VirtualInverter struct {
	mu          sync.Mutex
	calls       []string
	periodTicks uint32
	resolution  uint32
	deadTicks   uint32
	started     bool
	compare     [core.PhaseCount]int
	history     []CompareWrite
	historySize int
	next        int
	writes      uint64
	failAfter   uint64 // Fail every compare write after this many, 0 never
}

// NewVirtualInverter creates a driver keeping up to historySize writes
func NewVirtualInverter(historySize int) *VirtualInverter {
	if historySize < 1 {
		historySize = 1
	}
	return &VirtualInverter{
		history:     make([]CompareWrite, 0, historySize),
		historySize: historySize,
	}
}

// FailAfter makes every compare write after the first n return ErrInjectedFailure
func (v *VirtualInverter) FailAfter(n uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failAfter = n
}

func (v *VirtualInverter) ConfigureCarrier(periodTicks uint32, resolutionHz uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, "configure_carrier")
	v.periodTicks = periodTicks
	v.resolution = resolutionHz
	return nil
}

func (v *VirtualInverter) SetDeadTime(ticks uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, "set_dead_time")
	v.deadTicks = ticks
	return nil
}

func (v *VirtualInverter) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, "start")
	v.started = true
	return nil
}

func (v *VirtualInverter) SetCompareValue(channel int, value int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if channel < 0 || channel >= core.PhaseCount {
		return errors.Errorf("channel %d out of range", channel)
	}
	if v.failAfter > 0 && v.writes >= v.failAfter {
		return ErrInjectedFailure
	}
	if v.periodTicks > 0 && value > int(v.periodTicks/2) {
		return errors.Errorf("compare %d above half period %d", value, v.periodTicks/2)
	}
	if len(v.calls) == 0 || v.calls[len(v.calls)-1] != "set_compare" {
		v.calls = append(v.calls, "set_compare")
	}

	v.compare[channel] = value
	w := CompareWrite{Channel: channel, Value: value}
	if len(v.history) < v.historySize {
		v.history = append(v.history, w)
	} else {
		v.history[v.next] = w
	}
	v.next = (v.next + 1) % v.historySize
	v.writes++
	return nil
}

// Snapshot is the observable state of a VirtualInverter
type Snapshot struct {
	PeriodTicks  uint32               `json:"period_ticks"`
	ResolutionHz uint32               `json:"resolution_hz"`
	DeadTicks    uint32               `json:"dead_ticks"`
	Started      bool                 `json:"started"`
	Compare      [core.PhaseCount]int `json:"compare"`
	Writes       uint64               `json:"writes"`
	Calls        []string             `json:"calls"`
}

// Snapshot returns a copy of the current state
func (v *VirtualInverter) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		PeriodTicks:  v.periodTicks,
		ResolutionHz: v.resolution,
		DeadTicks:    v.deadTicks,
		Started:      v.started,
		Compare:      v.compare,
		Writes:       v.writes,
		Calls:        append([]string(nil), v.calls...),
	}
}

// History returns the retained compare writes, oldest first
func (v *VirtualInverter) History() []CompareWrite {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.history) < v.historySize {
		return append([]CompareWrite(nil), v.history...)
	}
	out := make([]CompareWrite, 0, v.historySize)
	out = append(out, v.history[v.next:]...)
	return append(out, v.history[:v.next]...)
}

// ChannelHistory returns the retained values of one channel, oldest first
func (v *VirtualInverter) ChannelHistory(channel int) []int {
	var out []int
	for _, w := range v.History() {
		if w.Channel == channel {
			out = append(out, w.Value)
		}
	}
	return out
}
