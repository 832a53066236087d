package msf_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbscope/pkg/pdb/msf"
	"github.com/jtang613/pdbscope/pkg/pdb/pdbtest"
)

func TestNewFile_Streams(t *testing.T) {
	big := bytes.Repeat([]byte("0123456789abcdef"), 100) // spans four blocks
	raw := pdbtest.Container([][]byte{nil, []byte("hello"), big})

	f, err := msf.NewFile(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, uint32(pdbtest.BlockSize), f.BlockSize())
	assert.Equal(t, 3, f.NumStreams())

	data, err := f.ReadStream(1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = f.ReadStream(2)
	require.NoError(t, err)
	assert.Equal(t, big, data)

	s, err := f.Stream(2)
	require.NoError(t, err)
	assert.Len(t, s.Blocks(), 4)

	buf := make([]byte, 20)
	n, err := s.ReadAt(buf, 510)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, big[510:530], buf)

	_, err = s.ReadAt(buf, int64(len(big)-5))
	assert.ErrorIs(t, err, io.EOF)

	empty, err := f.ReadStream(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.Stream(3)
	assert.Error(t, err)
}

func TestReadSuperBlock_Invalid(t *testing.T) {
	raw := pdbtest.Container([][]byte{nil})

	tests := []struct {
		name   string
		mutate func(b []byte)
	}{
		{"magic", func(b []byte) { b[0] = 'X' }},
		{"block size", func(b []byte) { b[32] = 0x10; b[33] = 0 }},
		{"free block map", func(b []byte) { b[36] = 7 }},
		{"block map address", func(b []byte) { b[52] = 0xff }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bytes.Clone(raw)
			tt.mutate(b)
			_, err := msf.NewFile(bytes.NewReader(b))
			assert.Error(t, err)
		})
	}

	_, err := msf.ReadSuperBlock(bytes.NewReader(raw[:10]))
	assert.Error(t, err)
}

func TestNewFile_CorruptDirectory(t *testing.T) {
	// directory starts at block 4: count, sizes, then block lists
	const dir = 4 * pdbtest.BlockSize
	raw := pdbtest.Container([][]byte{nil, []byte("hello")})

	tests := []struct {
		name   string
		mutate func(b []byte)
	}{
		{"stream size near 4 GiB", func(b []byte) {
			binary.LittleEndian.PutUint32(b[dir+8:], 0xFFFFFF00)
		}},
		{"stream size beyond listed blocks", func(b []byte) {
			binary.LittleEndian.PutUint32(b[dir+8:], 3*pdbtest.BlockSize)
		}},
		{"block beyond file", func(b []byte) {
			binary.LittleEndian.PutUint32(b[dir+12:], 0xFFFF)
		}},
		{"directory size near 4 GiB", func(b []byte) {
			binary.LittleEndian.PutUint32(b[44:], 0xFFFFFFF0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bytes.Clone(raw)
			tt.mutate(b)
			_, err := msf.NewFile(bytes.NewReader(b))
			assert.Error(t, err)
		})
	}
}

func FuzzNewFile(f *testing.F) {
	f.Add(pdbtest.Container([][]byte{nil, []byte("hello")}))
	f.Add(pdbtest.Container([][]byte{nil, bytes.Repeat([]byte{0xAB}, 1500)}))

	f.Fuzz(func(t *testing.T, raw []byte) {
		m, err := msf.NewFile(bytes.NewReader(raw))
		if err != nil {
			return
		}
		for i := range m.NumStreams() {
			_, _ = m.ReadStream(i)
		}
	})
}
