package monitor

import (
	"fmt"

	"github.com/pkg/errors"

	"inverter/core"
	"inverter/protocol"
)

// Mismatch is a reported value that differs from the one rebuilt on the host
type Mismatch struct {
	Field    string `json:"field"`
	Expected int64  `json:"expected"`
	Got      int64  `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %d, got %d", m.Field, m.Expected, m.Got)
}

// Result is the outcome of checking one startup report
type Result struct {
	Identify   protocol.Identify `json:"identify"`
	Config     core.Config       `json:"config"`
	Timing     core.Timing       `json:"timing"`
	Mismatches []Mismatch        `json:"mismatches,omitempty"`
}

// OK reports whether the firmware matched the host computation
func (r Result) OK() bool {
	return len(r.Mismatches) == 0
}

// ConfigFromReport converts the reported parameters to a core.Config
func ConfigFromReport(t *protocol.TimingReport) core.Config {
	return core.Config{
		LineFreqHz:        int(t.LineFreqHz),
		SampleCount:       int(t.SampleCount),
		FrequencyRatio:    int(t.FrequencyRatio),
		TimerResolutionHz: int(t.TimerResolutionHz),
		DeadTimeTicks:     int(t.DeadTimeTicks),
		Mode:              t.Mode,
		FundamentalWeight: float64(t.FundamentalWeight) / protocol.WeightScale,
		HarmonicWeight:    float64(t.HarmonicWeight) / protocol.WeightScale,
	}
}

// Check rebuilds the timing and tables from the reported configuration and
// compares them with what the firmware sent. An error means the report
// could not be checked at all.
func Check(report *protocol.Report) (Result, error) {
	if !report.Complete() {
		return Result{}, errors.New("report incomplete")
	}
	if err := report.Verify(); err != nil {
		return Result{}, errors.Wrap(err, "report damaged")
	}

	cfg := ConfigFromReport(report.Timing)
	if err := cfg.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "reported config")
	}
	timing := cfg.Derive()

	result := Result{Config: cfg, Timing: timing}
	if report.Identify != nil {
		result.Identify = *report.Identify
	}
	add := func(field string, expected, got int64) {
		if expected != got {
			result.Mismatches = append(result.Mismatches, Mismatch{field, expected, got})
		}
	}

	t := report.Timing
	add("carrier_period", int64(timing.CarrierPeriod), int64(t.CarrierPeriod))
	add("update_period_us", int64(timing.UpdatePeriodUS), int64(t.UpdatePeriodUS))
	add("gain", int64(timing.Gain), int64(t.Gain))
	add("max_compare", int64(timing.MaxCompare), int64(t.MaxCompare))

	strategy, err := core.StrategyFor(cfg)
	if err != nil {
		return Result{}, errors.WithStack(err)
	}
	tables, err := core.BuildTables(cfg.SampleCount, timing.Gain, strategy)
	if err != nil {
		return Result{}, errors.WithStack(err)
	}
	for p := 0; p < core.PhaseCount; p++ {
		expected := tables.Phase(p).Samples()
		got := report.Tables[p]
		add(fmt.Sprintf("phase_%d_length", p), int64(len(expected)), int64(len(got)))
		for i := 0; i < len(expected) && i < len(got); i++ {
			add(fmt.Sprintf("phase_%d[%d]", p, i), int64(expected[i]), int64(got[i]))
		}
	}
	return result, nil
}
