// Package msf reads the Multi-Stream Format container that holds a PDB.
package msf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
)

// Magic is the MSF 7.00 file signature.
var Magic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

// SuperBlockSize is the on-disk size of SuperBlock.
const SuperBlockSize = 56

// ValidBlockSizes are the block sizes an MSF file may use.
var ValidBlockSizes = []uint32{512, 1024, 2048, 4096}

// SuperBlock is the header at offset zero of an MSF file.
type SuperBlock struct {
	Magic             [32]byte
	BlockSize         uint32
	FreeBlockMapBlock uint32 // 1 or 2
	NumBlocks         uint32
	NumDirectoryBytes uint32
	Unknown           uint32
	BlockMapAddr      uint32 // block holding the directory block list
}

// ReadSuperBlock reads and validates the superblock.
func ReadSuperBlock(r io.Reader) (*SuperBlock, error) {
	var sb SuperBlock
	if err := binary.Read(r, binary.LittleEndian, &sb); err != nil {
		return nil, fmt.Errorf("failed to read superblock: %w", err)
	}

	if !bytes.Equal(sb.Magic[:], Magic) {
		return nil, fmt.Errorf("invalid MSF magic: not a PDB file")
	}
	if !slices.Contains(ValidBlockSizes, sb.BlockSize) {
		return nil, fmt.Errorf("invalid block size: %d", sb.BlockSize)
	}
	if sb.FreeBlockMapBlock != 1 && sb.FreeBlockMapBlock != 2 {
		return nil, fmt.Errorf("invalid free block map block: %d", sb.FreeBlockMapBlock)
	}
	if sb.BlockMapAddr >= sb.NumBlocks {
		return nil, fmt.Errorf("block map address %d beyond %d blocks", sb.BlockMapAddr, sb.NumBlocks)
	}
	return &sb, nil
}

// NumDirectoryBlocks returns how many blocks the stream directory spans.
func (sb *SuperBlock) NumDirectoryBlocks() uint32 {
	return blocksFor(sb.NumDirectoryBytes, sb.BlockSize)
}

// blocksFor is computed in 64 bits so sizes near 4 GiB do not wrap.
func blocksFor(size, blockSize uint32) uint32 {
	return uint32((uint64(size) + uint64(blockSize) - 1) / uint64(blockSize))
}

// capacity returns the number of bytes the file's blocks can hold.
func (sb *SuperBlock) capacity() uint64 {
	return uint64(sb.NumBlocks) * uint64(sb.BlockSize)
}
