package core

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Modulator advances through the phase tables on each cadence tick and
// hands the new duties to the applier loop through a DutyRegister.
type Modulator struct {
	tables     *PhaseTables
	n          int32
	maxCompare int
	driver     CompareDriver

	index atomic.Int32 // Owned by Tick
	reg   DutyRegister
	last  [PhaseCount]atomic.Int32

	ticks    atomic.Uint32
	overruns atomic.Uint32
	applied  atomic.Uint32
	clamped  atomic.Uint32

	diag diagRing // Owned by the applier
}

// Stats is a snapshot of the modulator counters.
type Stats struct {
	Index    int               // Current table index
	Ticks    uint32            // Cadence callbacks run
	Applied  uint32            // Triples pushed to the comparator
	Overruns uint32            // Triples replaced before they were applied
	Clamped  uint32            // Samples pulled into [0, MaxCompare]
	Compare  [PhaseCount]int32 // Last values pushed per channel
}

// NewModulator creates a modulator over the given tables. Values pushed to
// the driver are clamped to [0, maxCompare].
func NewModulator(tables *PhaseTables, maxCompare int, driver CompareDriver) (*Modulator, error) {
	if tables == nil || tables.Len() < 1 {
		return nil, ErrInvalidSampleCount
	}
	if driver == nil {
		return nil, errors.New("compare driver is nil")
	}
	if maxCompare < 0 {
		return nil, fmt.Errorf("max compare %d is negative", maxCompare)
	}
	return &Modulator{
		tables:     tables,
		n:          int32(tables.Len()),
		maxCompare: maxCompare,
		driver:     driver,
	}, nil
}

// Tick is the cadence callback. It runs in a preemptive context and must not
// block or allocate.
//
// The wrap guard compares against N rather than N-1, so once per cycle the
// index sits at N for one tick. The tables keep slot N aliased to slot 0,
// which makes that tick repeat the first sample.
func (m *Modulator) Tick() {
	idx := m.index.Load()
	if idx == m.n {
		idx = 0
	} else {
		idx++
	}
	m.index.Store(idx)

	i := int(idx)
	if m.reg.Publish(
		int32(m.tables.A.At(i)),
		int32(m.tables.B.At(i)),
		int32(m.tables.C.At(i)),
	) {
		m.overruns.Add(1)
	}
	m.ticks.Add(1)
}

// Clamp limits v to [0, max].
func Clamp(v, max int) int {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

// ApplyPending runs one applier iteration. When a triple is pending it is
// clamped, pushed channel by channel and the dirty flag cleared.
// A driver error is returned as is; the caller treats it as fatal.
func (m *Modulator) ApplyPending() (bool, error) {
	if !m.reg.Pending() {
		return false, nil
	}
	duty := m.reg.Load()
	for ch, v := range duty {
		value := Clamp(int(v), m.maxCompare)
		if value != int(v) {
			m.clamped.Add(1)
			m.diag.record(EvtClamp, ch, m.ticks.Load(), v, int32(value))
		}
		if err := m.driver.SetCompareValue(ch, value); err != nil {
			m.diag.record(EvtDriverError, ch, m.ticks.Load(), int32(value), 0)
			return false, fmt.Errorf("set compare channel %d to %d: %w", ch, value, err)
		}
		m.last[ch].Store(int32(value))
	}
	m.reg.Clear()
	m.applied.Add(1)
	return true, nil
}

// Run polls for pending triples without sleeping or yielding until stop is
// closed. A nil stop channel never closes.
func (m *Modulator) Run(stop <-chan struct{}) error {
	m.diag.record(EvtRunStart, 0, m.ticks.Load(), 0, 0)
	for {
		select {
		case <-stop:
			m.diag.record(EvtRunStop, 0, m.ticks.Load(), 0, 0)
			return nil
		default:
		}
		if _, err := m.ApplyPending(); err != nil {
			return err
		}
	}
}

// Register exposes the handoff cell.
func (m *Modulator) Register() *DutyRegister {
	return &m.reg
}

// Index returns the current table index.
func (m *Modulator) Index() int {
	return int(m.index.Load())
}

// MaxCompare returns the clamp upper bound.
func (m *Modulator) MaxCompare() int {
	return m.maxCompare
}

// Stats returns a snapshot of the counters.
func (m *Modulator) Stats() Stats {
	s := Stats{
		Index:    int(m.index.Load()),
		Ticks:    m.ticks.Load(),
		Applied:  m.applied.Load(),
		Overruns: m.overruns.Load(),
		Clamped:  m.clamped.Load(),
	}
	for ch := range s.Compare {
		s.Compare[ch] = m.last[ch].Load()
	}
	return s
}
