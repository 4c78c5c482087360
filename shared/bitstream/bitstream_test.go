package bitstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterPacksMSBFirst(t *testing.T) {
	w := NewWriter(8)
	w.WriteBits(0b101, 3)
	w.WriteBits(0b11110, 5)
	w.WriteBool(true)

	assert.Equal(t, 9, w.Len())
	assert.Equal(t, []byte{0b10111110, 0b10000000}, w.Bytes())
}

func TestMixedWidthsSurviveUnalignedOffsets(t *testing.T) {
	w := NewWriter(16)
	w.WriteBits(42, 6)
	w.WriteBits(0xDEADBEEF, 32)
	w.WriteInt(-1234, 20)
	w.WriteBool(false)
	w.WriteFloat32(3.25)
	w.WriteBytes([]byte{0xAB, 0x01})

	r := NewReaderBits(w.Bytes(), w.Len())
	assert.Equal(t, uint64(42), r.ReadBits(6))
	assert.Equal(t, uint64(0xDEADBEEF), r.ReadBits(32))
	assert.Equal(t, int64(-1234), r.ReadInt(20))
	assert.False(t, r.ReadBool())
	assert.Equal(t, float32(3.25), r.ReadFloat32())
	p := make([]byte, 2)
	r.ReadBytes(p)
	assert.Equal(t, []byte{0xAB, 0x01}, p)
	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestReaderOverrunIsSticky(t *testing.T) {
	r := NewReader([]byte{0xFF})
	assert.Equal(t, uint64(0x7F), r.ReadBits(7))
	assert.Zero(t, r.ReadBits(2))
	require.ErrorIs(t, r.Err(), ErrOverrun)
	assert.Zero(t, r.ReadBits(1))
	assert.ErrorIs(t, r.Err(), ErrOverrun)
}

func TestReaderBitLengthLimit(t *testing.T) {
	r := NewReaderBits([]byte{0xFF, 0xFF}, 10)
	assert.Equal(t, 10, r.Remaining())
	r.ReadBits(10)
	require.NoError(t, r.Err())
	r.ReadBool()
	assert.ErrorIs(t, r.Err(), ErrOverrun)
}

func TestWriterResetReusesStorage(t *testing.T) {
	w := NewWriter(4)
	w.WriteBits(0xFFFF, 16)
	w.Reset()
	assert.Zero(t, w.Len())
	w.WriteBits(1, 1)
	assert.Equal(t, []byte{0x80}, w.Bytes())
}
