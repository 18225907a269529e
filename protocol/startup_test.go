package protocol

import (
	"bytes"
	"testing"

	"inverter/core"
)

// nopDriver accepts every peripheral call
type nopDriver struct{}

func (nopDriver) ConfigureCarrier(uint32, uint32) error { return nil }
func (nopDriver) SetCompareValue(int, int) error        { return nil }
func (nopDriver) SetDeadTime(uint32) error              { return nil }
func (nopDriver) Start() error                          { return nil }

func TestInverterReportRoundTrip(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Mode = core.ModeThirdHarmonic
	inv, err := core.NewInverter(cfg, nopDriver{}, core.NewSoftCadence(core.NewScheduler()))
	if err != nil {
		t.Fatalf("NewInverter failed: %v", err)
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := InverterReport("rp2040", inv).Write(enc); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Identify, timing, then 7 chunks and an end marker per phase
	if enc.Frames() != 2+3*(7+1) {
		t.Errorf("Expected 26 frames, got %d", enc.Frames())
	}

	var report Report
	for _, frame := range NewDecoder().Feed(buf.Bytes()) {
		msg, err := ParseMessage(frame.Payload)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}
		if err := report.Handle(msg); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
	}
	if !report.Complete() {
		t.Fatal("Expected a complete report")
	}
	if err := report.Verify(); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	timing := report.Timing
	if timing.CarrierPeriod != 1111 || timing.UpdatePeriodUS != 150 || timing.Gain != 2 || timing.MaxCompare != 555 {
		t.Errorf("Unexpected timing %+v", timing)
	}
	if timing.FundamentalWeight != 1150 || timing.HarmonicWeight != 220 {
		t.Errorf("Expected weights 1150/220, got %d/%d", timing.FundamentalWeight, timing.HarmonicWeight)
	}
	if timing.Mode != core.ModeThirdHarmonic || report.Identify.Target != "rp2040" {
		t.Errorf("Unexpected mode %q target %q", timing.Mode, report.Identify.Target)
	}
	for p := 0; p < PhaseCount; p++ {
		table := inv.Tables().Phase(p)
		if len(report.Tables[p]) != table.Len() {
			t.Fatalf("Phase %d: expected %d samples, got %d", p, table.Len(), len(report.Tables[p]))
		}
		for i, v := range report.Tables[p] {
			if int(v) != table.At(i) {
				t.Errorf("Phase %d sample %d: expected %d, got %d", p, i, table.At(i), v)
				break
			}
		}
	}
}

func TestScaleWeight(t *testing.T) {
	testCases := []struct {
		w        float64
		expected uint32
	}{
		{1.15, 1150},
		{0.22, 220},
		{0.0004, 0},
		{0, 0},
		{-1, 0},
	}
	for _, tc := range testCases {
		if got := scaleWeight(tc.w); got != tc.expected {
			t.Errorf("scaleWeight(%v): expected %d, got %d", tc.w, tc.expected, got)
		}
	}
}
