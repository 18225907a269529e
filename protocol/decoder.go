package protocol

// DecoderStats counts what the decoder saw on the wire
type DecoderStats struct {
	Frames         uint32 // Valid frames
	CRCErrors      uint32 // Frames dropped on CRC mismatch
	FramingErrors  uint32 // Bad length, destination or trailing sync byte
	SequenceGaps   uint32 // Frames whose sequence did not follow the previous one
	DiscardedBytes uint32 // Bytes skipped while resynchronizing
}

// Decoder extracts frames from a byte stream. It resynchronizes on the
// 0x7E sync byte after any framing or CRC error.
type Decoder struct {
	input        *FifoBuffer
	synchronized bool
	expectedSeq  uint8
	seqKnown     bool
	stats        DecoderStats
}

// NewDecoder creates a decoder
func NewDecoder() *Decoder {
	return &Decoder{
		input:        NewFifoBuffer(1024),
		synchronized: true,
	}
}

// Feed appends raw bytes and returns every complete frame found so far.
// Partial frames are kept until the rest arrives.
func (d *Decoder) Feed(data []byte) []*Message {
	var msgs []*Message
	for len(data) > 0 {
		n := d.input.Write(data)
		data = data[n:]
		msgs = append(msgs, d.processMessages()...)
		if n == 0 && d.input.Free() == 0 {
			// Cannot happen with a buffer larger than a frame, drop it all
			d.stats.DiscardedBytes += uint32(d.input.Available())
			d.input.Reset()
			d.synchronized = false
		}
	}
	return msgs
}

// Stats returns the decoder counters
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// processMessages parses frames from the input buffer
func (d *Decoder) processMessages() []*Message {
	var msgs []*Message
	data := d.input.Data()

	for len(data) > 0 {
		if !d.synchronized {
			// Look for sync byte
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}

			if syncPos >= 0 {
				// Found sync - skip to after sync byte
				d.stats.DiscardedBytes += uint32(syncPos)
				data = data[syncPos+1:]
				d.synchronized = true
			} else {
				// No sync found - discard all
				d.stats.DiscardedBytes += uint32(len(data))
				data = nil
			}
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		// Need minimum message length
		if len(data) < MessageLengthMin {
			break
		}

		// Extract message length
		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.desync()
			continue
		}

		// Check sequence/destination byte
		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		// Verify trailing sync byte
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}

		// Verify CRC
		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		actualCRC := CRC16(data[:msgLen-MessageTrailerSize])

		if frameCRC != actualCRC {
			d.stats.CRCErrors++
			d.synchronized = false
			continue
		}

		// Extract message components
		payload := make([]byte, msgLen-MessageHeaderSize-MessageTrailerSize)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])

		msgs = append(msgs, &Message{
			Length:   data[MessagePositionLen],
			Sequence: seq,
			Payload:  payload,
			CRC:      frameCRC,
		})
		data = data[msgLen:]

		if d.seqKnown && seq != d.expectedSeq {
			d.stats.SequenceGaps++
		}
		d.expectedSeq = nextSeq(seq)
		d.seqKnown = true
		d.stats.Frames++
	}

	// Remove consumed bytes from input buffer
	consumed := d.input.Available() - len(data)
	if consumed > 0 {
		d.input.Pop(consumed)
	}
	return msgs
}

func (d *Decoder) desync() {
	d.stats.FramingErrors++
	d.synchronized = false
}
