// Package monitor reads the startup report a firmware image sends over its
// serial port and checks it against tables rebuilt on the host.
package monitor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"inverter/protocol"
)

var (
	maskAny = errors.WithStack
)

// Monitor decodes report frames from a byte stream
type Monitor struct {
	log zerolog.Logger

	decodeMu sync.Mutex // Guards decoder, report and last
	decoder  *protocol.Decoder
	report   protocol.Report
	last     protocol.DecoderStats

	mu      sync.Mutex
	results []Result
	lastErr error
	notify  chan Result
}

// New creates a monitor
func New(log zerolog.Logger) *Monitor {
	return &Monitor{
		log:     log,
		decoder: protocol.NewDecoder(),
		notify:  make(chan Result, 4),
	}
}

// Results returns a copy of every checked report so far
func (m *Monitor) Results() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Result(nil), m.results...)
}

// LastError returns the last report that could not be checked
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Reports delivers each checked report. Results are dropped when nobody reads.
func (m *Monitor) Reports() <-chan Result {
	return m.notify
}

// Stats returns the decoder counters
func (m *Monitor) Stats() protocol.DecoderStats {
	m.decodeMu.Lock()
	defer m.decodeMu.Unlock()
	return m.decoder.Stats()
}

// Run reads from r until ctx is canceled or r returns an error.
// When r is an io.Closer it is closed on cancel to unblock the read.
func (m *Monitor) Run(ctx context.Context, r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-done:
			}
		}()
	}

	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.Feed(buf[:n])
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return maskAny(err)
		}
		if n == 0 {
			// Read timeout without data
			time.Sleep(time.Millisecond)
		}
	}
}

// Feed decodes raw bytes and handles every complete frame
func (m *Monitor) Feed(data []byte) {
	m.decodeMu.Lock()
	defer m.decodeMu.Unlock()

	for _, msg := range m.decoder.Feed(data) {
		m.handleFrame(msg)
	}
	m.exportDecoderStats()
}

func (m *Monitor) handleFrame(frame *protocol.Message) {
	framesTotal.Inc()
	msg, err := protocol.ParseMessage(frame.Payload)
	if err != nil {
		m.log.Warn().Err(err).Uint8("seq", frame.Sequence).Msg("Cannot parse frame")
		return
	}

	switch v := msg.(type) {
	case *protocol.Identify:
		m.log.Info().
			Str("version", v.Version).
			Str("target", v.Target).
			Msg("Firmware identified")
	case *protocol.TimingReport:
		m.log.Info().
			Uint32("line_freq", v.LineFreqHz).
			Uint32("samples", v.SampleCount).
			Uint32("carrier_period", v.CarrierPeriod).
			Uint32("update_period_us", v.UpdatePeriodUS).
			Uint32("gain", v.Gain).
			Str("mode", v.Mode).
			Msg("Timing received")
	case *protocol.TableEnd:
		m.log.Debug().
			Uint8("phase", v.Phase).
			Uint32("length", v.Length).
			Msg("Table received")
	case *protocol.DebugText:
		m.log.Info().Str("text", v.Text).Msg("Firmware")
		return
	}

	if err := m.report.Handle(msg); err != nil {
		m.log.Warn().Err(err).Msg("Dropping report")
		m.report = protocol.Report{}
		return
	}
	if m.report.Complete() {
		m.finish()
	}
}

// finish checks the collected report and starts a new one
func (m *Monitor) finish() {
	report := m.report
	m.report = protocol.Report{}

	result, err := Check(&report)
	if err != nil {
		reportsTotal.WithLabelValues("error").Inc()
		m.log.Error().Err(err).Msg("Report check failed")
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return
	}

	if result.OK() {
		reportsTotal.WithLabelValues("ok").Inc()
		m.log.Info().
			Int("samples", result.Config.SampleCount).
			Str("mode", result.Config.Mode).
			Msg("Report matches host tables")
	} else {
		reportsTotal.WithLabelValues("mismatch").Inc()
		mismatchesTotal.Add(float64(len(result.Mismatches)))
		for _, mm := range result.Mismatches {
			m.log.Warn().
				Str("field", mm.Field).
				Int64("expected", mm.Expected).
				Int64("got", mm.Got).
				Msg("Mismatch")
		}
	}

	m.mu.Lock()
	m.results = append(m.results, result)
	m.mu.Unlock()
	select {
	case m.notify <- result:
	default:
	}
}

func (m *Monitor) exportDecoderStats() {
	s := m.decoder.Stats()
	frameErrorsTotal.WithLabelValues("crc").Add(float64(s.CRCErrors - m.last.CRCErrors))
	frameErrorsTotal.WithLabelValues("framing").Add(float64(s.FramingErrors - m.last.FramingErrors))
	frameErrorsTotal.WithLabelValues("sequence").Add(float64(s.SequenceGaps - m.last.SequenceGaps))
	m.last = s
}
