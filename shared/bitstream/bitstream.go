// Package bitstream packs unsigned and signed integers into a byte buffer at
// arbitrary bit offsets, most significant bit first.
//
// Readers keep a sticky error: once a read runs past the end of the buffer all
// further reads return zero and Err reports ErrOverrun. Callers decode a whole
// payload and check Err once, the same way bufio.Scanner is used.
package bitstream

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverrun is returned when a read runs past the declared bit length.
var ErrOverrun = errors.New("bitstream: read past end of payload")

// Writer appends bits to a growable buffer. The zero value is ready to use and
// a Writer is meant to be Reset and reused rather than reallocated.
type Writer struct {
	buf  []byte
	bits int
}

// NewWriter returns a writer with capacity for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Reset empties the writer, keeping its storage.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.bits = 0
}

// Len returns the number of bits written.
func (w *Writer) Len() int { return w.bits }

// Bytes returns the written bytes. The final byte is zero-padded. The slice
// aliases the writer's storage and is only valid until the next Reset.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteBits writes the low n bits of v, 0 <= n <= 64.
func (w *Writer) WriteBits(v uint64, n int) {
	if n < 0 || n > 64 {
		panic(fmt.Sprintf("bitstream: invalid bit count %d", n))
	}
	for n > 0 {
		used := w.bits & 7
		if used == 0 {
			w.buf = append(w.buf, 0)
		}
		free := 8 - used
		take := free
		if n < take {
			take = n
		}
		chunk := byte(v>>(uint(n-take))) & byte(1<<uint(take)-1)
		w.buf[len(w.buf)-1] |= chunk << uint(free-take)
		w.bits += take
		n -= take
	}
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
		return
	}
	w.WriteBits(0, 1)
}

// WriteInt writes v as an n-bit two's complement integer.
func (w *Writer) WriteInt(v int64, n int) {
	w.WriteBits(uint64(v), n)
}

// WriteFloat32 writes the IEEE-754 bits of f.
func (w *Writer) WriteFloat32(f float32) {
	w.WriteBits(uint64(math.Float32bits(f)), 32)
}

// WriteBytes appends opaque bytes, not necessarily byte aligned.
func (w *Writer) WriteBytes(p []byte) {
	for _, b := range p {
		w.WriteBits(uint64(b), 8)
	}
}

// Reader consumes bits from a payload.
type Reader struct {
	buf   []byte
	limit int
	pos   int
	err   error
}

// NewReader reads every bit of p.
func NewReader(p []byte) *Reader {
	return &Reader{buf: p, limit: len(p) * 8}
}

// NewReaderBits reads at most bitLength bits of p.
func NewReaderBits(p []byte, bitLength int) *Reader {
	if bitLength > len(p)*8 || bitLength < 0 {
		bitLength = len(p) * 8
	}
	return &Reader{buf: p, limit: bitLength}
}

// Err returns the first overrun, if any.
func (r *Reader) Err() error { return r.err }

// Pos returns the number of bits consumed.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int { return r.limit - r.pos }

// ReadBits reads n bits, 0 <= n <= 64.
func (r *Reader) ReadBits(n int) uint64 {
	if r.err != nil {
		return 0
	}
	if n < 0 || n > 64 {
		panic(fmt.Sprintf("bitstream: invalid bit count %d", n))
	}
	if r.pos+n > r.limit {
		r.err = fmt.Errorf("%w: want %d bits at %d of %d", ErrOverrun, n, r.pos, r.limit)
		r.pos = r.limit
		return 0
	}
	var v uint64
	for n > 0 {
		used := r.pos & 7
		avail := 8 - used
		take := avail
		if n < take {
			take = n
		}
		b := r.buf[r.pos>>3]
		chunk := (b >> uint(avail-take)) & byte(1<<uint(take)-1)
		v = v<<uint(take) | uint64(chunk)
		r.pos += take
		n -= take
	}
	return v
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() bool {
	return r.ReadBits(1) == 1
}

// ReadInt reads an n-bit two's complement integer.
func (r *Reader) ReadInt(n int) int64 {
	v := r.ReadBits(n)
	if n == 0 || n == 64 {
		return int64(v)
	}
	shift := uint(64 - n)
	return int64(v<<shift) >> shift
}

// ReadFloat32 reads IEEE-754 bits written by WriteFloat32.
func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(uint32(r.ReadBits(32)))
}

// ReadBytes fills p.
func (r *Reader) ReadBytes(p []byte) {
	for i := range p {
		p[i] = byte(r.ReadBits(8))
	}
}
