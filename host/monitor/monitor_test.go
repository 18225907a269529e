package monitor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"inverter/core"
	"inverter/protocol"
)

// writeReport encodes the startup report for cfg. tamper may edit a table
// after the host computed it. With fixCRC false the end markers keep the
// checksums of the untouched tables.
func writeReport(t *testing.T, w io.Writer, cfg core.Config, tamper func(phase int, values []int32), fixCRC bool) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid config: %v", err)
	}
	timing := cfg.Derive()
	strategy, _ := core.StrategyFor(cfg)
	tables, err := core.BuildTables(cfg.SampleCount, timing.Gain, strategy)
	if err != nil {
		t.Fatalf("BuildTables failed: %v", err)
	}
	report := protocol.NewStartupReport("test", cfg, timing, tables)
	enc := protocol.NewEncoder(w)

	if tamper == nil || fixCRC {
		if tamper != nil {
			for p := range report.Tables {
				tamper(p, report.Tables[p])
			}
		}
		if err := report.Write(enc); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		return
	}

	// Send the edited samples behind the original end markers
	send := func(msg protocol.Encodable) {
		if err := enc.Send(msg); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	send(&report.Identify)
	send(&report.Timing)
	for p, values := range report.Tables {
		crc := protocol.TableCRC(values)
		tamper(p, values)
		for off := 0; off < len(values); off += protocol.TableChunkSize {
			end := off + protocol.TableChunkSize
			if end > len(values) {
				end = len(values)
			}
			send(&protocol.TableChunk{Phase: uint8(p), Offset: uint32(off), Values: values[off:end]})
		}
		send(&protocol.TableEnd{Phase: uint8(p), Length: uint32(len(values)), CRC: crc})
	}
}

func TestMonitorAcceptsMatchingReport(t *testing.T) {
	for _, mode := range []string{core.ModeFundamental, core.ModeThirdHarmonic} {
		cfg := core.DefaultConfig()
		cfg.Mode = mode

		var stream bytes.Buffer
		writeReport(t, &stream, cfg, nil, false)

		m := New(zerolog.Nop())
		if err := m.Run(context.Background(), &stream); err != nil {
			t.Fatalf("%s: Run failed: %v", mode, err)
		}
		results := m.Results()
		if len(results) != 1 {
			t.Fatalf("%s: expected 1 result, got %d (last error %v)", mode, len(results), m.LastError())
		}
		r := results[0]
		if !r.OK() {
			t.Errorf("%s: unexpected mismatches %v", mode, r.Mismatches)
		}
		if r.Identify.Target != "test" {
			t.Errorf("%s: expected target test, got %q", mode, r.Identify.Target)
		}
		if r.Timing.CarrierPeriod != 1111 || r.Config.Mode != mode {
			t.Errorf("%s: unexpected timing %+v mode %s", mode, r.Timing, r.Config.Mode)
		}
	}
}

func TestMonitorFlagsTableMismatch(t *testing.T) {
	var stream bytes.Buffer
	tamper := func(phase int, values []int32) {
		if phase == 1 {
			values[40] += 3
		}
	}
	writeReport(t, &stream, core.DefaultConfig(), tamper, true)

	m := New(zerolog.Nop())
	m.Feed(stream.Bytes())

	results := m.Results()
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	mm := results[0].Mismatches
	if len(mm) != 1 {
		t.Fatalf("Expected 1 mismatch, got %v", mm)
	}
	if mm[0].Field != "phase_1[40]" || mm[0].Got != mm[0].Expected+3 {
		t.Errorf("Unexpected mismatch %v", mm[0])
	}
}

func TestMonitorRejectsDamagedTable(t *testing.T) {
	var stream bytes.Buffer
	tamper := func(phase int, values []int32) {
		if phase == 2 {
			values[0] = 0
		}
	}
	writeReport(t, &stream, core.DefaultConfig(), tamper, false)

	m := New(zerolog.Nop())
	m.Feed(stream.Bytes())

	if len(m.Results()) != 0 {
		t.Errorf("Expected no result for a damaged table")
	}
	err := m.LastError()
	if err == nil || !strings.Contains(err.Error(), "crc") {
		t.Errorf("Expected crc error, got %v", err)
	}
}

func TestMonitorHandlesByteAtATime(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x42, 0x7E})
	writeReport(t, &stream, core.DefaultConfig(), nil, false)

	m := New(zerolog.Nop())
	for _, b := range stream.Bytes() {
		m.Feed([]byte{b})
	}
	if len(m.Results()) != 1 {
		t.Fatalf("Expected 1 result, got %d (last error %v)", len(m.Results()), m.LastError())
	}
	select {
	case r := <-m.Reports():
		if !r.OK() {
			t.Errorf("Unexpected mismatches %v", r.Mismatches)
		}
	default:
		t.Error("Expected result on the reports channel")
	}
	if m.Stats().Frames == 0 {
		t.Error("Expected decoder frames counted")
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	m := New(zerolog.Nop())
	go func() {
		done <- m.Run(ctx, r)
	}()

	writeReport(t, w, core.DefaultConfig(), nil, false)
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected clean stop, got %v", err)
	}
	if len(m.Results()) != 1 {
		t.Errorf("Expected report processed before cancel, got %d", len(m.Results()))
	}
}

func TestConfigFromReport(t *testing.T) {
	cfg := ConfigFromReport(&protocol.TimingReport{
		LineFreqHz:        50,
		SampleCount:       100,
		FrequencyRatio:    200,
		TimerResolutionHz: 10000000,
		DeadTimeTicks:     5,
		FundamentalWeight: 1150,
		HarmonicWeight:    220,
		Mode:              core.ModeThirdHarmonic,
	})
	if cfg.FundamentalWeight != 1.15 || cfg.HarmonicWeight != 0.22 {
		t.Errorf("Expected weights 1.15/0.22, got %v/%v", cfg.FundamentalWeight, cfg.HarmonicWeight)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
	if cfg.Derive().CarrierPeriod != 1000 {
		t.Errorf("Expected carrier period 1000, got %d", cfg.Derive().CarrierPeriod)
	}
}

func TestMonitorSkipsDebugText(t *testing.T) {
	var stream bytes.Buffer
	if err := protocol.NewEncoder(&stream).Send(&protocol.DebugText{Text: "boot"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	writeReport(t, &stream, core.DefaultConfig(), nil, false)

	m := New(zerolog.Nop())
	m.Feed(stream.Bytes())
	if len(m.Results()) != 1 || m.LastError() != nil {
		t.Errorf("Expected one clean result, got %d (%v)", len(m.Results()), m.LastError())
	}
}

func TestMonitorStatsWhileFeeding(t *testing.T) {
	var stream bytes.Buffer
	writeReport(t, &stream, core.DefaultConfig(), nil, false)
	data := stream.Bytes()

	m := New(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m.Stats()
			m.Results()
		}
	}()
	for i := 0; i < 20; i++ {
		m.Feed(data)
	}
	<-done

	if got := m.Stats().Frames; got != 20*26 {
		t.Errorf("Expected %d frames, got %d", 20*26, got)
	}
	if len(m.Results()) != 20 {
		t.Errorf("Expected 20 results, got %d", len(m.Results()))
	}
}
