// Package sim runs the modulation engine against an in-memory inverter.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"inverter/core"
	"inverter/host/config"
)

const exportInterval = time.Second

var maskAny = errors.WithStack

// Simulator drives a core.Inverter on a VirtualInverter, either on the wall
// clock (TickerCadence) or on a virtual clock (core.SoftCadence) that is
// advanced one update period at a time.
type Simulator struct {
	log      zerolog.Logger
	cfg      config.SimulatorConfig
	driver   *VirtualInverter
	inverter *core.Inverter
	ticker   *TickerCadence
	sched    *core.Scheduler
	soft     *core.SoftCadence
	exporter metricsExporter

	mu      sync.Mutex
	started time.Time
	running bool
	err     error
}

// New brings up an inverter on a virtual driver. In wall clock mode the
// cadence starts ticking immediately, as it does on hardware.
func New(cfg core.Config, simCfg config.SimulatorConfig, log zerolog.Logger) (*Simulator, error) {
	s := &Simulator{
		log:    log.With().Str("component", "sim").Logger(),
		cfg:    simCfg,
		driver: NewVirtualInverter(simCfg.HistorySize),
	}
	if s.cfg.ApplyEvery < 1 {
		s.cfg.ApplyEvery = 1
	}

	var cadence core.CadenceSource
	switch simCfg.Clock {
	case config.ClockWall:
		s.ticker = NewTickerCadence()
		cadence = s.ticker
	case config.ClockVirtual:
		s.sched = core.NewScheduler()
		s.soft = core.NewSoftCadence(s.sched)
		cadence = s.soft
	default:
		return nil, errors.Errorf("unknown clock '%s'", simCfg.Clock)
	}

	inv, err := core.NewInverter(cfg, s.driver, cadence)
	if err != nil {
		return nil, maskAny(err)
	}
	s.inverter = inv

	timing := inv.Timing()
	s.log.Info().
		Str("mode", inv.Tables().Strategy).
		Str("carrier", humanize.SIWithDigits(carrierHz(cfg, timing), 2, "Hz")).
		Int("update_us", timing.UpdatePeriodUS).
		Int("gain", timing.Gain).
		Int("max_compare", timing.MaxCompare).
		Int("dead_time_ns", timing.DeadTimeNS).
		Msg("Inverter configured")
	return s, nil
}

func carrierHz(cfg core.Config, timing core.Timing) float64 {
	return float64(cfg.TimerResolutionHz) / float64(timing.CarrierPeriod)
}

// Run runs the applier loop until ctx is canceled, the configured number of
// virtual cycles completes, or the comparator fails.
func (s *Simulator) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.running = true
	s.mu.Unlock()

	var err error
	if s.ticker != nil {
		err = s.runWall(ctx)
	} else {
		err = s.runVirtual(ctx)
	}
	s.exporter.export(s.inverter.Modulator().Stats())

	s.mu.Lock()
	s.running = false
	s.err = err
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("Applier stopped")
		return err
	}
	stats := s.inverter.Modulator().Stats()
	s.log.Info().
		Str("ticks", humanize.Comma(int64(stats.Ticks))).
		Str("applied", humanize.Comma(int64(stats.Applied))).
		Str("overruns", humanize.Comma(int64(stats.Overruns))).
		Msg("Simulator stopped")
	return nil
}

func (s *Simulator) runWall(ctx context.Context) error {
	defer s.ticker.Stop()

	g, ctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	g.Go(func() error {
		<-ctx.Done()
		close(stop)
		return nil
	})
	g.Go(func() error {
		if err := s.inverter.Run(stop); err != nil {
			return errors.Wrap(err, "applier loop")
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(exportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.exporter.export(s.inverter.Modulator().Stats())
			}
		}
	})
	return g.Wait()
}

// runVirtual advances the scheduler one update period per step. One
// electrical cycle is N+1 ticks because of the wrap slot.
func (s *Simulator) runVirtual(ctx context.Context) error {
	mod := s.inverter.Modulator()
	period := s.soft.Period()
	perCycle := uint64(s.inverter.Tables().Len() + 1)
	steps := uint64(s.cfg.Cycles) * perCycle
	every := uint64(s.cfg.ApplyEvery)

	now := s.sched.Now()
	for i := uint64(1); steps == 0 || i <= steps; i++ {
		if i%perCycle == 0 {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.exporter.export(mod.Stats())
		}

		now += period
		s.sched.Advance(now)
		if i%every == 0 {
			if _, err := mod.ApplyPending(); err != nil {
				return errors.Wrap(err, "applier loop")
			}
		}
	}
	return nil
}

// Driver returns the virtual inverter
func (s *Simulator) Driver() *VirtualInverter {
	return s.driver
}

// Inverter returns the inverter under simulation
func (s *Simulator) Inverter() *core.Inverter {
	return s.inverter
}

// Status is the simulator state served over HTTP
type Status struct {
	Clock            string      `json:"clock"`
	Running          bool        `json:"running"`
	Started          string      `json:"started,omitempty"`
	Error            string      `json:"error,omitempty"`
	Mode             string      `json:"mode"`
	Config           core.Config `json:"config"`
	Timing           core.Timing `json:"timing"`
	CarrierFrequency string      `json:"carrier_frequency"`
	UpdateRate       string      `json:"update_rate"`
	Stats            core.Stats  `json:"stats"`
	Driver           Snapshot    `json:"driver"`
}

// Status returns a snapshot of the simulator
func (s *Simulator) Status() Status {
	cfg := s.inverter.Config()
	timing := s.inverter.Timing()
	st := Status{
		Clock:            s.cfg.Clock,
		Mode:             s.inverter.Tables().Strategy,
		Config:           cfg,
		Timing:           timing,
		CarrierFrequency: humanize.SIWithDigits(carrierHz(cfg, timing), 2, "Hz"),
		UpdateRate:       humanize.SIWithDigits(float64(core.CadenceClockHz)/float64(timing.UpdatePeriodUS), 2, "Hz"),
		Stats:            s.inverter.Modulator().Stats(),
		Driver:           s.driver.Snapshot(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Running = s.running
	if !s.started.IsZero() {
		st.Started = humanize.Time(s.started)
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}
