package core

import (
	"fmt"
	"math"
)

// Angle constants, kept at the precision the reference tables were built with
// so generated tables match them sample for sample.
const (
	twoPi      = 6.2831853072
	phaseShift = 2.094395102 // 2π/3
	gainScale  = 100
)

// Phase indices, also used as compare channel numbers.
const (
	PhaseA     = 0
	PhaseB     = 1
	PhaseC     = 2
	PhaseCount = 3
)

// TableStrategy computes the normalised reference S(i) in [-1, 1] (roughly)
// for sample i of n, with the given phase shift in radians.
type TableStrategy interface {
	Name() string
	Sample(i, n int, shift float64) float64
}

// Fundamental is plain sinusoidal modulation.
type Fundamental struct{}

func (Fundamental) Name() string { return ModeFundamental }

func (Fundamental) Sample(i, n int, shift float64) float64 {
	return math.Sin((twoPi/float64(n))*float64(i) + shift)
}

// ThirdHarmonic blends a third harmonic into the reference. The third harmonic
// is common mode across phases, so it is not shifted; it flattens the peaks and
// lets M1 exceed 1 before clipping.
type ThirdHarmonic struct {
	M1 float64 // Fundamental weight
	M3 float64 // Third harmonic weight
}

func (h ThirdHarmonic) Name() string { return ModeThirdHarmonic }

func (h ThirdHarmonic) Sample(i, n int, shift float64) float64 {
	return h.M3*math.Sin((twoPi/float64(n))*3*float64(i)) +
		h.M1*math.Sin((twoPi/float64(n))*float64(i)+shift)
}

// StrategyFor returns the table strategy selected by the configuration.
func StrategyFor(cfg Config) (TableStrategy, error) {
	switch cfg.Mode {
	case "", ModeFundamental:
		return Fundamental{}, nil
	case ModeThirdHarmonic:
		return ThirdHarmonic{M1: cfg.FundamentalWeight, M3: cfg.HarmonicWeight}, nil
	default:
		return nil, fmt.Errorf("unknown modulation mode %q", cfg.Mode)
	}
}

// WaveformTable is one phase worth of amplitude samples for a full
// electrical cycle. The backing store holds one extra slot aliasing sample 0,
// so reading index Len() is defined and continues the cycle.
type WaveformTable struct {
	samples []int
}

// Len returns the number of samples per cycle.
func (t WaveformTable) Len() int {
	return len(t.samples) - 1
}

// At returns sample i, 0 <= i <= Len().
func (t WaveformTable) At(i int) int {
	return t.samples[i]
}

// Samples returns a copy of the Len() samples of the cycle.
func (t WaveformTable) Samples() []int {
	out := make([]int, t.Len())
	copy(out, t.samples)
	return out
}

// PhaseTables holds the three phase tables, A at 0, B at -120° and C at +120°.
type PhaseTables struct {
	A, B, C  WaveformTable
	Strategy string
	Gain     int
}

// Phase returns the table for the given phase index.
func (p *PhaseTables) Phase(phase int) WaveformTable {
	switch phase {
	case PhaseB:
		return p.B
	case PhaseC:
		return p.C
	default:
		return p.A
	}
}

// Len returns the number of samples per cycle.
func (p *PhaseTables) Len() int {
	return p.A.Len()
}

// BuildTables computes the three phase tables once at startup:
//
//	table[i] = int(gain*100 * (1 + S(i)))
//
// Conversion truncates toward zero, which equals floor for the
// non-negative samples the strategies produce.
func BuildTables(n, gain int, strategy TableStrategy) (*PhaseTables, error) {
	if n < 1 {
		return nil, ErrInvalidSampleCount
	}
	if strategy == nil {
		strategy = Fundamental{}
	}
	scale := float64(gain * gainScale)
	shifts := [PhaseCount]float64{0, -phaseShift, phaseShift}
	var tables [PhaseCount]WaveformTable
	for p, shift := range shifts {
		samples := make([]int, n+1)
		for i := 0; i < n; i++ {
			samples[i] = int(scale * (1 + strategy.Sample(i, n, shift)))
		}
		samples[n] = samples[0]
		tables[p] = WaveformTable{samples: samples}
	}
	return &PhaseTables{
		A:        tables[PhaseA],
		B:        tables[PhaseB],
		C:        tables[PhaseC],
		Strategy: strategy.Name(),
		Gain:     gain,
	}, nil
}
