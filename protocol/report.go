package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Report message IDs
const (
	MsgIdentify   = 1
	MsgTiming     = 2
	MsgTableChunk = 3
	MsgTableEnd   = 4
	MsgDebug      = 5
)

// PhaseCount is the number of phase tables in a report
const PhaseCount = 3

// TableChunkSize is the number of samples per table chunk. Sixteen samples
// of up to three VLQ bytes each fit a single frame.
const TableChunkSize = 16

// WeightScale converts the third-harmonic weights to integers on the wire
const WeightScale = 1000

// DebugTextMax is the longest debug line sent in one frame
const DebugTextMax = 48

var (
	ErrUnknownMessage = errors.New("unknown message id")
	ErrBadPhase       = errors.New("phase out of range")
)

// Encodable is a report message that can be written to an Encoder
type Encodable interface {
	MessageID() uint16
	Encode(output OutputBuffer)
}

// Identify names the firmware and the board it runs on
type Identify struct {
	Version string
	Target  string
}

func (m *Identify) MessageID() uint16 { return MsgIdentify }

func (m *Identify) Encode(output OutputBuffer) {
	EncodeVLQString(output, m.Version)
	EncodeVLQString(output, m.Target)
}

// TimingReport carries the configuration and the numbers derived from it
type TimingReport struct {
	LineFreqHz        uint32
	SampleCount       uint32
	FrequencyRatio    uint32
	TimerResolutionHz uint32
	CarrierPeriod     uint32
	UpdatePeriodUS    uint32
	Gain              uint32
	MaxCompare        uint32
	DeadTimeTicks     uint32
	FundamentalWeight uint32 // M1 * WeightScale
	HarmonicWeight    uint32 // M3 * WeightScale
	Mode              string
}

func (m *TimingReport) MessageID() uint16 { return MsgTiming }

func (m *TimingReport) Encode(output OutputBuffer) {
	for _, v := range m.fields() {
		EncodeVLQUint(output, *v)
	}
	EncodeVLQString(output, m.Mode)
}

func (m *TimingReport) fields() []*uint32 {
	return []*uint32{
		&m.LineFreqHz, &m.SampleCount, &m.FrequencyRatio, &m.TimerResolutionHz,
		&m.CarrierPeriod, &m.UpdatePeriodUS, &m.Gain, &m.MaxCompare,
		&m.DeadTimeTicks, &m.FundamentalWeight, &m.HarmonicWeight,
	}
}

// TableChunk carries consecutive samples of one phase table
type TableChunk struct {
	Phase  uint8
	Offset uint32
	Values []int32
}

func (m *TableChunk) MessageID() uint16 { return MsgTableChunk }

func (m *TableChunk) Encode(output OutputBuffer) {
	EncodeVLQUint(output, uint32(m.Phase))
	EncodeVLQUint(output, m.Offset)
	EncodeVLQUint(output, uint32(len(m.Values)))
	for _, v := range m.Values {
		EncodeVLQInt(output, v)
	}
}

// TableEnd closes a phase table with its length and checksum
type TableEnd struct {
	Phase  uint8
	Length uint32
	CRC    uint16
}

func (m *TableEnd) MessageID() uint16 { return MsgTableEnd }

func (m *TableEnd) Encode(output OutputBuffer) {
	EncodeVLQUint(output, uint32(m.Phase))
	EncodeVLQUint(output, m.Length)
	EncodeVLQUint(output, uint32(m.CRC))
}

// DebugText is a diagnostic line from the firmware. It is not part of the
// startup report.
type DebugText struct {
	Text string
}

func (m *DebugText) MessageID() uint16 { return MsgDebug }

// Encode writes the text, cut to DebugTextMax bytes
func (m *DebugText) Encode(output OutputBuffer) {
	text := m.Text
	if len(text) > DebugTextMax {
		text = text[:DebugTextMax]
	}
	EncodeVLQString(output, text)
}

// TableCRC returns the CRC16 of a table, each sample as 4 little endian bytes
func TableCRC(values []int32) uint16 {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return CRC16(buf)
}

// WriteTable sends one phase table as chunks followed by its end marker
func WriteTable(e *Encoder, phase uint8, values []int32) error {
	for off := 0; off < len(values); off += TableChunkSize {
		end := off + TableChunkSize
		if end > len(values) {
			end = len(values)
		}
		chunk := TableChunk{Phase: phase, Offset: uint32(off), Values: values[off:end]}
		if err := e.Send(&chunk); err != nil {
			return err
		}
	}
	end := TableEnd{Phase: phase, Length: uint32(len(values)), CRC: TableCRC(values)}
	return e.Send(&end)
}

// ParseMessage decodes a frame payload into one of the report messages
func ParseMessage(payload []byte) (Encodable, error) {
	data := payload
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return nil, err
	}

	switch id {
	case MsgIdentify:
		m := &Identify{}
		if m.Version, err = DecodeVLQString(&data); err != nil {
			return nil, err
		}
		if m.Target, err = DecodeVLQString(&data); err != nil {
			return nil, err
		}
		return m, nil

	case MsgTiming:
		m := &TimingReport{}
		for _, v := range m.fields() {
			if *v, err = DecodeVLQUint(&data); err != nil {
				return nil, err
			}
		}
		if m.Mode, err = DecodeVLQString(&data); err != nil {
			return nil, err
		}
		return m, nil

	case MsgTableChunk:
		phase, offset, count, err := decodeTriple(&data)
		if err != nil {
			return nil, err
		}
		if count > TableChunkSize {
			return nil, fmt.Errorf("chunk of %d samples exceeds %d", count, TableChunkSize)
		}
		m := &TableChunk{Phase: uint8(phase), Offset: offset, Values: make([]int32, count)}
		for i := range m.Values {
			if m.Values[i], err = DecodeVLQInt(&data); err != nil {
				return nil, err
			}
		}
		return m, nil

	case MsgTableEnd:
		phase, length, crc, err := decodeTriple(&data)
		if err != nil {
			return nil, err
		}
		return &TableEnd{Phase: uint8(phase), Length: length, CRC: uint16(crc)}, nil

	case MsgDebug:
		m := &DebugText{}
		if m.Text, err = DecodeVLQString(&data); err != nil {
			return nil, err
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, id)
}

func decodeTriple(data *[]byte) (a, b, c uint32, err error) {
	if a, err = DecodeVLQUint(data); err != nil {
		return
	}
	if b, err = DecodeVLQUint(data); err != nil {
		return
	}
	c, err = DecodeVLQUint(data)
	return
}

// Report collects the messages of one startup report
type Report struct {
	Identify *Identify
	Timing   *TimingReport
	Tables   [PhaseCount][]int32
	Ends     [PhaseCount]*TableEnd
}

// Handle folds one decoded message into the report
func (r *Report) Handle(msg Encodable) error {
	switch m := msg.(type) {
	case *Identify:
		*r = Report{Identify: m}
	case *TimingReport:
		r.Timing = m
	case *TableChunk:
		if int(m.Phase) >= PhaseCount {
			return ErrBadPhase
		}
		table := r.Tables[m.Phase]
		if int(m.Offset) != len(table) {
			return fmt.Errorf("phase %d chunk at offset %d, expected %d", m.Phase, m.Offset, len(table))
		}
		r.Tables[m.Phase] = append(table, m.Values...)
	case *TableEnd:
		if int(m.Phase) >= PhaseCount {
			return ErrBadPhase
		}
		r.Ends[m.Phase] = m
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return nil
}

// Complete reports whether timing and all three tables have arrived
func (r *Report) Complete() bool {
	if r.Timing == nil {
		return false
	}
	for _, end := range r.Ends {
		if end == nil {
			return false
		}
	}
	return true
}

// Verify checks every received table against its end marker
func (r *Report) Verify() error {
	for p := 0; p < PhaseCount; p++ {
		end := r.Ends[p]
		if end == nil {
			return fmt.Errorf("phase %d: table incomplete", p)
		}
		if int(end.Length) != len(r.Tables[p]) {
			return fmt.Errorf("phase %d: received %d samples, expected %d", p, len(r.Tables[p]), end.Length)
		}
		if crc := TableCRC(r.Tables[p]); crc != end.CRC {
			return fmt.Errorf("phase %d: table crc 0x%04X, expected 0x%04X", p, crc, end.CRC)
		}
	}
	return nil
}
