package msf

import (
	"fmt"
	"io"
)

// Stream is one logical stream, stored in possibly scattered blocks.
type Stream struct {
	file   *File
	size   uint32
	blocks []uint32
}

// Size returns the stream length in bytes.
func (s *Stream) Size() uint32 { return s.size }

// Blocks returns the file blocks that hold the stream, in order.
func (s *Stream) Blocks() []uint32 { return s.blocks }

// ReadAt implements io.ReaderAt over the stream's logical bytes.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(s.size) {
		return 0, io.EOF
	}

	bs := int64(s.file.sb.BlockSize)
	n := 0
	for n < len(p) && off < int64(s.size) {
		idx := off / bs
		within := off % bs
		chunk := min(int64(len(p)-n), bs-within, int64(s.size)-off)
		if idx >= int64(len(s.blocks)) {
			return n, fmt.Errorf("offset %d beyond the stream's %d blocks", off, len(s.blocks))
		}
		if err := s.file.readBlock(p[n:n+int(chunk)], s.blocks[idx], int(within)); err != nil {
			return n, err
		}
		n += int(chunk)
		off += chunk
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadAll returns the complete stream contents.
func (s *Stream) ReadAll() ([]byte, error) {
	data := make([]byte, s.size)
	if _, err := s.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}
