package packet

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// Reader pulls packets off a byte stream such as a serial port. Bytes ahead
// of a magic pair are skipped, and a packet whose checksum fails is dropped
// and the search resumes one byte past its magic.
type Reader struct {
	r *bufio.Reader

	// Skipped counts bytes discarded while hunting for a magic pair.
	Skipped int
	// Corrupt counts packets dropped for a bad checksum.
	Corrupt int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, Size(MaxPayload))}
}

// Next blocks until a valid packet is read or the stream fails. The
// returned payload is owned by the caller.
func (r *Reader) Next() (Packet, error) {
	for {
		if err := r.sync(); err != nil {
			return Packet{}, err
		}
		hdr, err := r.r.Peek(HeaderSize)
		if err != nil {
			return Packet{}, eof(err)
		}
		n := int(binary.LittleEndian.Uint16(hdr[2:4]))
		frame, err := r.r.Peek(Size(n))
		if err != nil {
			return Packet{}, eof(err)
		}
		payload := frame[HeaderSize : HeaderSize+n]
		sum := frame[len(frame)-1]
		if Checksum(payload) != sum {
			r.Corrupt++
			// drop only the first magic byte; a real packet may start inside
			_, _ = r.r.Discard(1)
			continue
		}
		p := Packet{Length: uint16(n), Payload: append([]byte(nil), payload...), Checksum: sum}
		_, _ = r.r.Discard(Size(n))
		return p, nil
	}
}

// sync advances until the next two bytes are the magic pair.
func (r *Reader) sync() error {
	for {
		b, err := r.r.Peek(2)
		if err != nil {
			if len(b) == 1 && b[0] != Magic0 {
				_, _ = r.r.Discard(1)
				r.Skipped++
			}
			return err
		}
		if b[0] == Magic0 && b[1] == Magic1 {
			return nil
		}
		_, _ = r.r.Discard(1)
		r.Skipped++
	}
}

// eof reports a stream that ends inside a packet as io.ErrUnexpectedEOF.
func eof(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
