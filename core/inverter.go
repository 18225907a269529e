package core

import (
	"errors"
	"fmt"
)

// Inverter ties the tables, the modulator and the peripheral together.
type Inverter struct {
	cfg       Config
	timing    Timing
	tables    *PhaseTables
	modulator *Modulator
}

// Setup brings the inverter up on the globally registered driver and cadence source.
func Setup(cfg Config) (*Inverter, error) {
	return NewInverter(cfg, MustInverter(), MustCadence())
}

// NewInverter validates the configuration, builds the phase tables,
// configures the peripheral and schedules the modulator on the cadence
// source. Setup is one shot: any collaborator failure aborts it.
func NewInverter(cfg Config, driver InverterDriver, cadence CadenceSource) (*Inverter, error) {
	if driver == nil || cadence == nil {
		return nil, errors.New("inverter requires a driver and a cadence source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	timing := cfg.Derive()

	strategy, err := StrategyFor(cfg)
	if err != nil {
		return nil, err
	}
	tables, err := BuildTables(cfg.SampleCount, timing.Gain, strategy)
	if err != nil {
		return nil, fmt.Errorf("build tables: %w", err)
	}
	mod, err := NewModulator(tables, timing.MaxCompare, driver)
	if err != nil {
		return nil, err
	}

	if err := driver.ConfigureCarrier(uint32(timing.CarrierPeriod), uint32(cfg.TimerResolutionHz)); err != nil {
		return nil, fmt.Errorf("configure carrier: %w", err)
	}
	initial := Clamp(cfg.InitialCompare, timing.MaxCompare)
	for ch := 0; ch < PhaseCount; ch++ {
		if err := driver.SetCompareValue(ch, initial); err != nil {
			return nil, fmt.Errorf("initial compare channel %d: %w", ch, err)
		}
	}
	if err := driver.SetDeadTime(uint32(cfg.DeadTimeTicks)); err != nil {
		return nil, fmt.Errorf("set dead time: %w", err)
	}
	if err := driver.Start(); err != nil {
		return nil, fmt.Errorf("start carrier: %w", err)
	}
	if err := cadence.Schedule(uint32(timing.UpdatePeriodUS), mod.Tick); err != nil {
		return nil, fmt.Errorf("schedule update every %dus: %w", timing.UpdatePeriodUS, err)
	}

	return &Inverter{
		cfg:       cfg,
		timing:    timing,
		tables:    tables,
		modulator: mod,
	}, nil
}

// Config returns the configuration the inverter was built from.
func (inv *Inverter) Config() Config {
	return inv.cfg
}

// Timing returns the derived periods and gain.
func (inv *Inverter) Timing() Timing {
	return inv.timing
}

// Tables returns the phase tables.
func (inv *Inverter) Tables() *PhaseTables {
	return inv.tables
}

// Modulator returns the modulator driven by the cadence source.
func (inv *Inverter) Modulator() *Modulator {
	return inv.modulator
}

// Run runs the applier loop, see Modulator.Run.
func (inv *Inverter) Run(stop <-chan struct{}) error {
	return inv.modulator.Run(stop)
}
