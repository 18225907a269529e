package sim

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inverter/core"
	"inverter/host/config"
)

func virtualConfig(cycles, applyEvery int) config.SimulatorConfig {
	return config.SimulatorConfig{
		Clock:       config.ClockVirtual,
		HistorySize: 1000,
		Cycles:      cycles,
		ApplyEvery:  applyEvery,
	}
}

func TestVirtualSimulatorFollowsTables(t *testing.T) {
	s, err := New(core.DefaultConfig(), virtualConfig(2, 1), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := s.Inverter().Modulator().Stats()
	if stats.Ticks != 224 || stats.Applied != 224 || stats.Overruns != 0 {
		t.Errorf("Expected 224 ticks applied without overrun, got %+v", stats)
	}

	tables := s.Inverter().Tables()
	maxCompare := s.Inverter().Timing().MaxCompare
	for ch := 0; ch < core.PhaseCount; ch++ {
		values := s.Driver().ChannelHistory(ch)
		// Initial compare, then two cycles of indexes 1..N, 0
		if len(values) != 1+224 {
			t.Fatalf("Channel %d: expected 225 writes, got %d", ch, len(values))
		}
		if values[0] != core.DefaultInitialCompare {
			t.Errorf("Channel %d: expected initial compare %d, got %d", ch, core.DefaultInitialCompare, values[0])
		}
		for k, v := range values[1:] {
			idx := (k + 1) % 112
			want := core.Clamp(tables.Phase(ch).At(idx), maxCompare)
			if v != want {
				t.Fatalf("Channel %d write %d: expected %d, got %d", ch, k, want, v)
			}
		}
	}
}

func TestVirtualSimulatorSlowApplierOverruns(t *testing.T) {
	s, err := New(core.DefaultConfig(), virtualConfig(2, 2), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := s.Inverter().Modulator().Stats()
	if stats.Applied != 112 || stats.Overruns != 112 {
		t.Errorf("Expected 112 applied and 112 overruns, got %+v", stats)
	}
	// Only the latest of each pair reaches the comparator
	tables := s.Inverter().Tables()
	if got, want := s.Driver().Snapshot().Compare[0], tables.A.At(0); got != want {
		t.Errorf("Expected last compare %d, got %d", want, got)
	}
}

func TestSimulatorStopsOnComparatorFailure(t *testing.T) {
	s, err := New(core.DefaultConfig(), virtualConfig(1, 1), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Three initial writes plus two applied triples
	s.Driver().FailAfter(9)

	err = s.Run(context.Background())
	if !errors.Is(err, ErrInjectedFailure) {
		t.Fatalf("Expected injected failure, got %v", err)
	}
	if applied := s.Inverter().Modulator().Stats().Applied; applied != 2 {
		t.Errorf("Expected 2 applied triples, got %d", applied)
	}
	if !s.Inverter().Modulator().Register().Pending() {
		t.Error("Expected failed triple to stay pending")
	}

	status := s.Status()
	if status.Running || status.Error == "" {
		t.Errorf("Expected stopped status with error, got %+v", status)
	}
}

func TestSimulatorStatus(t *testing.T) {
	s, err := New(core.DefaultConfig(), virtualConfig(1, 1), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	status := s.Status()
	if status.CarrierFrequency != "9 kHz" {
		t.Errorf("Expected 9 kHz carrier, got %s", status.CarrierFrequency)
	}
	if status.Timing.UpdatePeriodUS != 150 || status.Mode != core.ModeFundamental {
		t.Errorf("Unexpected status %+v", status)
	}
	expected := []string{"configure_carrier", "set_compare", "set_dead_time", "start"}
	calls := status.Driver.Calls
	if len(calls) != len(expected) {
		t.Fatalf("Expected calls %v, got %v", expected, calls)
	}
	for i := range expected {
		if calls[i] != expected[i] {
			t.Errorf("Call %d: expected %s, got %s", i, expected[i], calls[i])
		}
	}
}

func TestWallClockSimulator(t *testing.T) {
	simCfg := config.SimulatorConfig{Clock: config.ClockWall, HistorySize: 16}
	s, err := New(core.DefaultConfig(), simCfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := s.Inverter().Modulator().Stats()
	if stats.Ticks == 0 || stats.Applied == 0 {
		t.Errorf("Expected ticks to be applied, got %+v", stats)
	}
	if stats.Applied > stats.Ticks {
		t.Errorf("Applied %d exceeds ticks %d", stats.Applied, stats.Ticks)
	}
	if n := len(s.Driver().History()); n > 16 {
		t.Errorf("History exceeds its bound: %d", n)
	}
}

func TestTickerCadence(t *testing.T) {
	c := NewTickerCadence()
	var count atomic.Int32

	if err := c.Schedule(0, func() {}); err != core.ErrInvalidPeriod {
		t.Errorf("Expected ErrInvalidPeriod, got %v", err)
	}
	if err := c.Schedule(500, func() { count.Add(1) }); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if err := c.Schedule(500, func() {}); err == nil {
		t.Error("Expected error for second Schedule")
	}
	if c.Period() != 500*time.Microsecond {
		t.Errorf("Expected 500us period, got %v", c.Period())
	}

	time.Sleep(20 * time.Millisecond)
	c.Stop()
	n := count.Load()
	if n == 0 {
		t.Error("Expected callbacks before Stop")
	}
	time.Sleep(5 * time.Millisecond)
	if count.Load() != n {
		t.Error("Callback ran after Stop")
	}
}

func TestVirtualInverterHistoryBound(t *testing.T) {
	v := NewVirtualInverter(4)
	for i := 0; i < 6; i++ {
		if err := v.SetCompareValue(i%core.PhaseCount, i); err != nil {
			t.Fatalf("SetCompareValue failed: %v", err)
		}
	}

	history := v.History()
	if len(history) != 4 {
		t.Fatalf("Expected 4 retained writes, got %d", len(history))
	}
	for i, w := range history {
		if w.Value != i+2 {
			t.Errorf("Expected oldest-first values 2..5, got %v", history)
			break
		}
	}
	if v.Snapshot().Compare != [core.PhaseCount]int{3, 4, 5} {
		t.Errorf("Unexpected last values %v", v.Snapshot().Compare)
	}
	if err := v.SetCompareValue(3, 0); err == nil {
		t.Error("Expected error for channel out of range")
	}
}
