// Package protocol implements the framed report stream the inverter
// firmware sends to host tools.
//
// Frames use the Klipper message block layout:
//
//	[len][seq][payload ...][crc16 hi][crc16 lo][0x7E]
//
// Payload integers are VLQ encoded.
package protocol

// Version is the firmware version reported in the identify message
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax         = 512 // Scratch buffer size
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// Message sequence masks
	MessageSeqMask = 0x0F
)

// Message is a decoded frame
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}

// nextSeq advances a sequence byte, wrapping within the destination range
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
