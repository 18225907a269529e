package protocol

import (
	"errors"
	"io"
)

var ErrFrameTooLong = errors.New("frame exceeds maximum message length")

// Encoder writes framed messages to a byte stream (USB CDC on the firmware)
type Encoder struct {
	w      io.Writer
	out    ScratchOutput
	seq    uint8
	frames uint32
}

// NewEncoder creates an Encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		seq: MessageDest,
	}
}

// EncodeFrame builds one frame around the payload written by frameData and
// sends it. The sequence advances only when the frame is written.
func (e *Encoder) EncodeFrame(frameData func(output OutputBuffer)) error {
	e.out.Reset()
	cursor := e.out.CurPosition()

	// Write header (length placeholder and sequence)
	e.out.Output([]byte{0, e.seq})

	// Write frame contents
	frameData(&e.out)

	// Update length field
	changed := len(e.out.DataSince(cursor))
	if changed+MessageTrailerSize > MessageLengthMax {
		return ErrFrameTooLong
	}
	e.out.Update(cursor, uint8(changed+MessageTrailerSize))

	// Calculate and write CRC
	crc := CRC16(e.out.DataSince(cursor))
	e.out.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	if _, err := e.w.Write(e.out.Result()); err != nil {
		return err
	}
	e.seq = nextSeq(e.seq)
	e.frames++
	return nil
}

// SendMessage sends a message ID followed by its arguments
func (e *Encoder) SendMessage(msgID uint16, args func(output OutputBuffer)) error {
	return e.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(msgID))
		if args != nil {
			args(output)
		}
	})
}

// Send encodes and sends a report message
func (e *Encoder) Send(msg Encodable) error {
	return e.SendMessage(msg.MessageID(), msg.Encode)
}

// Frames returns the number of frames written
func (e *Encoder) Frames() uint32 {
	return e.frames
}
