package msf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// unusedStream marks a deleted stream in the directory.
const unusedStream = 0xFFFFFFFF

// File is an opened MSF container.
type File struct {
	r       io.ReaderAt
	closer  io.Closer
	sb      *SuperBlock
	streams []*Stream
}

// Open opens the MSF file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	m, err := NewFile(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	m.closer = f
	return m, nil
}

// NewFile reads an MSF container from r. The caller keeps ownership of r.
func NewFile(r io.ReaderAt) (*File, error) {
	sb, err := ReadSuperBlock(io.NewSectionReader(r, 0, SuperBlockSize))
	if err != nil {
		return nil, err
	}

	m := &File{r: r, sb: sb}
	dir, err := m.readDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream directory: %w", err)
	}
	if err := m.parseDirectory(dir); err != nil {
		return nil, fmt.Errorf("failed to parse stream directory: %w", err)
	}
	return m, nil
}

// Close releases the underlying file when Open created it.
func (m *File) Close() error {
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}

// SuperBlock returns the file header.
func (m *File) SuperBlock() *SuperBlock { return m.sb }

// BlockSize returns the block size in bytes.
func (m *File) BlockSize() uint32 { return m.sb.BlockSize }

// NumStreams returns the number of directory entries.
func (m *File) NumStreams() int { return len(m.streams) }

// Stream returns the stream at index.
func (m *File) Stream(index int) (*Stream, error) {
	if index < 0 || index >= len(m.streams) {
		return nil, fmt.Errorf("stream index %d out of range [0, %d)", index, len(m.streams))
	}
	return m.streams[index], nil
}

// ReadStream returns the full contents of the stream at index.
func (m *File) ReadStream(index int) ([]byte, error) {
	s, err := m.Stream(index)
	if err != nil {
		return nil, err
	}
	return s.ReadAll()
}

func (m *File) readBlock(p []byte, block uint32, off int) error {
	if block >= m.sb.NumBlocks {
		return fmt.Errorf("block %d beyond %d blocks", block, m.sb.NumBlocks)
	}
	pos := int64(block)*int64(m.sb.BlockSize) + int64(off)
	if _, err := m.r.ReadAt(p, pos); err != nil {
		return fmt.Errorf("failed to read block %d: %w", block, err)
	}
	return nil
}

func (m *File) readDirectory() ([]byte, error) {
	if uint64(m.sb.NumDirectoryBytes) > m.sb.capacity() {
		return nil, fmt.Errorf("directory size %d exceeds file capacity %d", m.sb.NumDirectoryBytes, m.sb.capacity())
	}
	n := m.sb.NumDirectoryBlocks()
	if uint64(n)*4 > uint64(m.sb.BlockSize) {
		return nil, fmt.Errorf("directory needs %d blocks, more than one block map holds", n)
	}

	raw := make([]byte, n*4)
	if err := m.readBlock(raw, m.sb.BlockMapAddr, 0); err != nil {
		return nil, err
	}

	dir := make([]byte, m.sb.NumDirectoryBytes)
	bs := int(m.sb.BlockSize)
	for i := 0; i < int(n); i++ {
		chunk := dir[i*bs : min((i+1)*bs, len(dir))]
		if err := m.readBlock(chunk, binary.LittleEndian.Uint32(raw[i*4:]), 0); err != nil {
			return nil, err
		}
	}
	return dir, nil
}

// parseDirectory decodes NumStreams, the stream sizes, then each stream's
// block list.
func (m *File) parseDirectory(dir []byte) error {
	pos := 0
	u32 := func() (uint32, error) {
		if pos+4 > len(dir) {
			return 0, io.ErrUnexpectedEOF
		}
		v := binary.LittleEndian.Uint32(dir[pos:])
		pos += 4
		return v, nil
	}

	count, err := u32()
	if err != nil {
		return fmt.Errorf("failed to read stream count: %w", err)
	}
	if uint64(count)*4 > uint64(len(dir)) {
		return fmt.Errorf("stream count %d exceeds directory size", count)
	}

	sizes := make([]uint32, count)
	for i := range sizes {
		if sizes[i], err = u32(); err != nil {
			return fmt.Errorf("failed to read size of stream %d: %w", i, err)
		}
	}

	m.streams = make([]*Stream, count)
	for i, size := range sizes {
		s := &Stream{file: m}
		if size != unusedStream {
			if uint64(size) > m.sb.capacity() {
				return fmt.Errorf("stream %d size %d exceeds file capacity %d", i, size, m.sb.capacity())
			}
			n := blocksFor(size, m.sb.BlockSize)
			if uint64(n)*4 > uint64(len(dir)-pos) {
				return fmt.Errorf("stream %d needs %d blocks, directory lists fewer", i, n)
			}
			s.size = size
			s.blocks = make([]uint32, n)
			for j := range s.blocks {
				if s.blocks[j], err = u32(); err != nil {
					return fmt.Errorf("failed to read block list of stream %d: %w", i, err)
				}
				if s.blocks[j] >= m.sb.NumBlocks {
					return fmt.Errorf("stream %d block %d beyond %d blocks", i, s.blocks[j], m.sb.NumBlocks)
				}
			}
		}
		m.streams[i] = s
	}
	return nil
}
