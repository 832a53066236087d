// Package streams decodes the fixed PDB streams: PDB info, DBI and TPI.
package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// reader is a little-endian cursor over a stream's bytes. The first short
// read sets err; later reads return zero values.
type reader struct {
	data []byte
	pos  int
	err  error
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("read of %d bytes at offset %d: %w", n, r.pos, io.ErrUnexpectedEOF)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) cstring() string {
	if r.err != nil {
		return ""
	}
	s, n := ParseString(r.data[r.pos:])
	r.pos += n
	return s
}

func (r *reader) align(n int) {
	r.pos = (r.pos + n - 1) &^ (n - 1)
	if r.pos > len(r.data) {
		r.pos = len(r.data)
	}
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

// ParseString reads a NUL-terminated string and returns it with the number
// of bytes consumed, terminator included.
func ParseString(data []byte) (string, int) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return string(data), len(data)
	}
	return string(data[:i]), i + 1
}
