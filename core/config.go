package core

import (
	"errors"
	"fmt"
)

// Modulation modes
const (
	ModeFundamental   = "fundamental"
	ModeThirdHarmonic = "third-harmonic"
)

// Reference firmware defaults
const (
	DefaultLineFreqHz        = 60
	DefaultSampleCount       = 111
	DefaultFrequencyRatio    = 150
	DefaultTimerResolutionHz = 10000000 // 10MHz, 0.1us per tick
	DefaultDeadTimeTicks     = 5
	DefaultFundamentalWeight = 1.15
	DefaultHarmonicWeight    = 0.22
	DefaultInitialCompare    = 100

	// CadenceClockHz is the clock the update period is expressed in (microseconds)
	CadenceClockHz = 1000000
)

var (
	ErrInvalidSampleCount = errors.New("sample count must be at least 1")
	ErrInvalidPeriod      = errors.New("derived period must be a positive integer")
)

// Config holds the static inverter parameters.
// All values are consumed once at bring-up; nothing here changes at runtime.
type Config struct {
	LineFreqHz        int     `json:"line_freq_hz"`        // Fundamental output frequency f
	SampleCount       int     `json:"sample_count"`        // Points per electrical cycle N
	FrequencyRatio    int     `json:"frequency_ratio"`     // Switching to line frequency ratio m_f
	TimerResolutionHz int     `json:"timer_resolution_hz"` // Carrier timer tick rate
	DeadTimeTicks     int     `json:"dead_time_ticks"`     // Gate pair dead time in carrier ticks
	Mode              string  `json:"mode"`                // fundamental | third-harmonic
	FundamentalWeight float64 `json:"fundamental_weight"`  // M1 (third-harmonic mode)
	HarmonicWeight    float64 `json:"harmonic_weight"`     // M3 (third-harmonic mode)
	InitialCompare    int     `json:"initial_compare"`     // Compare value loaded before the first update
}

// Timing holds the numbers derived from a Config.
type Timing struct {
	CarrierPeriod  int // Carrier period in timer ticks
	UpdatePeriodUS int // Cadence period in microseconds
	Gain           int // Modulation gain K
	MaxCompare     int // Largest compare value accepted by the comparator
	DeadTimeNS     int // Dead time in nanoseconds
}

// DefaultConfig returns the reference 60Hz, 111 point configuration.
func DefaultConfig() Config {
	return Config{
		LineFreqHz:        DefaultLineFreqHz,
		SampleCount:       DefaultSampleCount,
		FrequencyRatio:    DefaultFrequencyRatio,
		TimerResolutionHz: DefaultTimerResolutionHz,
		DeadTimeTicks:     DefaultDeadTimeTicks,
		Mode:              ModeFundamental,
		FundamentalWeight: DefaultFundamentalWeight,
		HarmonicWeight:    DefaultHarmonicWeight,
		InitialCompare:    DefaultInitialCompare,
	}
}

// UpdatePeriodUS returns the cadence period so that n samples span one
// cycle of frequency f. The product is formed in integers, the reciprocal
// in floating point, and the result truncated: 60Hz, 111 points gives 150us.
func UpdatePeriodUS(frequency, numberOfPoints int) int {
	return int(CadenceClockHz * (1.0 / float64(frequency*numberOfPoints)))
}

// CarrierPeriod returns the carrier period in timer ticks (integer division).
func CarrierPeriod(resolutionHz, frequency, ratio int) int {
	return resolutionHz / (frequency * ratio)
}

// Gain returns the modulation gain K. A sine spanning [0,2] scaled by 100*K
// reaches carrierPeriod/2, the peak of the up/down carrier.
func Gain(carrierPeriod int) int {
	return carrierPeriod / 400
}

// MaxCompare returns the upper clamp bound for compare values.
func MaxCompare(carrierPeriod int) int {
	return carrierPeriod / 2
}

// Validate checks that the configuration yields positive integer periods.
func (c Config) Validate() error {
	if c.SampleCount < 1 {
		return ErrInvalidSampleCount
	}
	if c.LineFreqHz <= 0 {
		return fmt.Errorf("line frequency %d: %w", c.LineFreqHz, ErrInvalidPeriod)
	}
	if c.FrequencyRatio <= 0 {
		return fmt.Errorf("frequency ratio %d: %w", c.FrequencyRatio, ErrInvalidPeriod)
	}
	if c.TimerResolutionHz <= 0 {
		return fmt.Errorf("timer resolution %d: %w", c.TimerResolutionHz, ErrInvalidPeriod)
	}
	if c.DeadTimeTicks < 0 {
		return fmt.Errorf("dead time %d ticks is negative", c.DeadTimeTicks)
	}
	if UpdatePeriodUS(c.LineFreqHz, c.SampleCount) <= 0 {
		return fmt.Errorf("update period for %dHz x %d points: %w", c.LineFreqHz, c.SampleCount, ErrInvalidPeriod)
	}
	if CarrierPeriod(c.TimerResolutionHz, c.LineFreqHz, c.FrequencyRatio) <= 0 {
		return fmt.Errorf("carrier period: %w", ErrInvalidPeriod)
	}
	if _, err := StrategyFor(c); err != nil {
		return err
	}
	return nil
}

// Derive computes the timing numbers. Call Validate first.
func (c Config) Derive() Timing {
	carrier := CarrierPeriod(c.TimerResolutionHz, c.LineFreqHz, c.FrequencyRatio)
	return Timing{
		CarrierPeriod:  carrier,
		UpdatePeriodUS: UpdatePeriodUS(c.LineFreqHz, c.SampleCount),
		Gain:           Gain(carrier),
		MaxCompare:     MaxCompare(carrier),
		DeadTimeNS:     int(NSFromTicks(uint32(c.DeadTimeTicks), uint32(c.TimerResolutionHz))),
	}
}
