// Package packet frames LED payloads for the controller link.
//
// Wire format, all multi-byte fields little endian:
//
//	0xFF 0xAA | len u16 | payload (len bytes) | checksum u8
//
// The checksum is the sum of the payload bytes modulo 256.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic0 byte = 0xFF
	Magic1 byte = 0xAA

	HeaderSize = 4
	Overhead   = HeaderSize + 1

	// MaxPayload is the largest payload a u16 length field can describe.
	MaxPayload = 0xFFFF
)

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrShortPacket     = errors.New("short packet")
	ErrBadMagic        = errors.New("bad magic")
	ErrLengthMismatch  = errors.New("length mismatch")
	ErrChecksum        = errors.New("checksum mismatch")
)

// Packet is a decoded frame.
type Packet struct {
	Length   uint16
	Payload  []byte
	Checksum byte
}

// Checksum returns the additive 8-bit checksum of p.
func Checksum(p []byte) byte {
	var sum byte
	for _, b := range p {
		sum += b
	}
	return sum
}

// Size returns the encoded size of a packet carrying n payload bytes.
func Size(n int) int { return n + Overhead }

// Frame encodes payload into a single packet. The result is a fresh slice;
// payload is not retained.
func Frame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("frame %d bytes (max %d): %w", len(payload), MaxPayload, ErrPayloadTooLarge)
	}
	out := make([]byte, Size(len(payload)))
	out[0], out[1] = Magic0, Magic1
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[HeaderSize:], payload)
	out[len(out)-1] = Checksum(payload)
	return out, nil
}

// Decode parses exactly one packet from b. Trailing bytes are an error.
func Decode(b []byte) (Packet, error) {
	if len(b) < Overhead {
		return Packet{}, fmt.Errorf("decode %d bytes: %w", len(b), ErrShortPacket)
	}
	if b[0] != Magic0 || b[1] != Magic1 {
		return Packet{}, fmt.Errorf("decode: got % X: %w", b[:2], ErrBadMagic)
	}
	n := binary.LittleEndian.Uint16(b[2:4])
	if len(b) != Size(int(n)) {
		return Packet{}, fmt.Errorf("decode: header says %d, have %d payload bytes: %w",
			n, len(b)-Overhead, ErrLengthMismatch)
	}
	payload := b[HeaderSize : HeaderSize+int(n)]
	sum := b[len(b)-1]
	if got := Checksum(payload); got != sum {
		return Packet{}, fmt.Errorf("decode: want 0x%02X, got 0x%02X: %w", sum, got, ErrChecksum)
	}
	return Packet{Length: n, Payload: payload, Checksum: sum}, nil
}
