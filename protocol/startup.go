package protocol

import (
	"inverter/core"
)

// StartupReport is what the firmware sends once the inverter is running:
// who it is, the timing it derived and the three phase tables.
type StartupReport struct {
	Identify Identify
	Timing   TimingReport
	Tables   [PhaseCount][]int32
}

// NewStartupReport collects the report for a configuration and the tables
// built from it
func NewStartupReport(target string, cfg core.Config, timing core.Timing, tables *core.PhaseTables) *StartupReport {
	r := &StartupReport{
		Identify: Identify{Version: Version, Target: target},
		Timing: TimingReport{
			LineFreqHz:        uint32(cfg.LineFreqHz),
			SampleCount:       uint32(cfg.SampleCount),
			FrequencyRatio:    uint32(cfg.FrequencyRatio),
			TimerResolutionHz: uint32(cfg.TimerResolutionHz),
			CarrierPeriod:     uint32(timing.CarrierPeriod),
			UpdatePeriodUS:    uint32(timing.UpdatePeriodUS),
			Gain:              uint32(timing.Gain),
			MaxCompare:        uint32(timing.MaxCompare),
			DeadTimeTicks:     uint32(cfg.DeadTimeTicks),
			FundamentalWeight: scaleWeight(cfg.FundamentalWeight),
			HarmonicWeight:    scaleWeight(cfg.HarmonicWeight),
			Mode:              tables.Strategy,
		},
	}
	for p := 0; p < PhaseCount; p++ {
		samples := tables.Phase(p).Samples()
		values := make([]int32, len(samples))
		for i, v := range samples {
			values[i] = int32(v)
		}
		r.Tables[p] = values
	}
	return r
}

// InverterReport collects the report of a running inverter
func InverterReport(target string, inv *core.Inverter) *StartupReport {
	return NewStartupReport(target, inv.Config(), inv.Timing(), inv.Tables())
}

// scaleWeight rounds a weight to the nearest 1/WeightScale
func scaleWeight(w float64) uint32 {
	if w <= 0 {
		return 0
	}
	return uint32(w*WeightScale + 0.5)
}

// Write sends the identify and timing messages, then each table
func (r *StartupReport) Write(e *Encoder) error {
	if err := e.Send(&r.Identify); err != nil {
		return err
	}
	if err := e.Send(&r.Timing); err != nil {
		return err
	}
	for p, values := range r.Tables {
		if err := WriteTable(e, uint8(p), values); err != nil {
			return err
		}
	}
	return nil
}
