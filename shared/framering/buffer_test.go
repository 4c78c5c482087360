package framering

import (
	"testing"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scalarFrame struct {
	v       float64
	changed bool
}

func (f *scalarFrame) CopyFrom(src *scalarFrame) { *f = *src }
func (f *scalarFrame) HasChanged() bool          { return f.changed }
func (f *scalarFrame) SetChanged(c bool)         { f.changed = c }

func (f *scalarFrame) Interpolate(start, end *scalarFrame, t float64) {
	f.v = start.v + (end.v-start.v)*t
	f.changed = true
}

func (f *scalarFrame) Extrapolate(prev, snap *scalarFrame) {
	f.v = snap.v + (snap.v - prev.v)
	f.changed = true
}

func newScalarBuffer() *Buffer[*scalarFrame] {
	return NewBuffer(func() *scalarFrame { return &scalarFrame{} })
}

func put(b *Buffer[*scalarFrame], v *ValidityRing, id netconfig.FrameID, val float64, changed bool) {
	f := b.Frame(id)
	f.v = val
	f.changed = changed
	v.Set(id)
}

func TestValidityRingCountAheadWraps(t *testing.T) {
	v := NewValidityRing()
	v.Set(58)
	v.Set(59)
	v.Set(0)
	v.Set(14)
	v.Set(57)

	assert.Equal(t, 5, v.Count())
	// 58..59..0..12 only: 14 is outside a window of 15 starting after 57.
	assert.Equal(t, 3, v.CountAhead(57, 15))
	assert.Equal(t, 2, v.CountAhead(59, 15))

	v.Clear(59)
	assert.False(t, v.IsValid(59))
	v.Reset()
	assert.Zero(t, v.Count())
}

func TestBufferHasOfftickSlot(t *testing.T) {
	b := newScalarBuffer()
	b.Offtick().v = 7
	for i := 0; i < netconfig.FrameCount; i++ {
		assert.NotSame(t, b.Offtick(), b.Frame(netconfig.FrameID(i)))
	}
	assert.Equal(t, 7.0, b.Offtick().v)
}

func TestPointersRotateWrap(t *testing.T) {
	p := PointersAt(1)
	assert.Equal(t, Pointers{Pre2: 58, Pre1: 59, Snap: 0, Targ: 1, Next: 2}, p)

	p.Rotate(2)
	assert.Equal(t, Pointers{Pre2: 59, Pre1: 0, Snap: 1, Targ: 2, Next: 3}, p)
}

func TestReconstructInterpolatesTowardFirstChangedFrame(t *testing.T) {
	b := newScalarBuffer()
	v := NewValidityRing()
	put(b, v, 10, 1, true)
	put(b, v, 11, 2, true)
	put(b, v, 13, 6, true)

	p := PointersAt(12)
	src := b.Settle(v, p, true, 3)

	require.Equal(t, SourceInterpolated, src)
	assert.Equal(t, 4.0, b.Frame(12).v)
	assert.Equal(t, SourceInterpolated, b.Source(12))
}

func TestReconstructUsesLookaheadThree(t *testing.T) {
	b := newScalarBuffer()
	v := NewValidityRing()
	put(b, v, 11, 3, true)
	put(b, v, 13, 9, false) // unchanged frames are skipped as endpoints
	put(b, v, 14, 12, true)

	src := b.Reconstruct(v, PointersAt(12), 3)

	require.Equal(t, SourceInterpolated, src)
	assert.InDelta(t, 6.0, b.Frame(12).v, 1e-9)
}

func TestReconstructFallsBackToExtrapolation(t *testing.T) {
	b := newScalarBuffer()
	v := NewValidityRing()
	put(b, v, 58, 1, true)
	put(b, v, 59, 3, true)
	put(b, v, 3, 100, true) // beyond lookahead

	src := b.Reconstruct(v, PointersAt(0), 3)

	require.Equal(t, SourceExtrapolated, src)
	assert.Equal(t, 5.0, b.Frame(0).v)
}

func TestSettleCopiesUnchangedFrameForward(t *testing.T) {
	b := newScalarBuffer()
	v := NewValidityRing()
	put(b, v, 20, 42, true)
	put(b, v, 21, -1, false)

	src := b.Settle(v, PointersAt(21), true, 3)

	assert.Equal(t, SourceCopied, src)
	assert.Equal(t, 42.0, b.Frame(21).v)
	assert.False(t, b.Frame(21).HasChanged())
}

func TestSettleLeavesMissingFrameForWriter(t *testing.T) {
	b := newScalarBuffer()
	v := NewValidityRing()
	put(b, v, 20, 42, true)
	b.Frame(21).v = 5
	b.SetSource(21, SourceCaptured)

	src := b.Settle(v, PointersAt(21), false, 3)

	assert.Equal(t, SourceCaptured, src)
	assert.Equal(t, 5.0, b.Frame(21).v)
}

func TestCopyInitKeepsReceivedNext(t *testing.T) {
	b := newScalarBuffer()
	v := NewValidityRing()
	put(b, v, 31, 99, true)
	b.Offtick().v = 4

	p := PointersAt(30)
	b.CopyInit(b.Offtick(), p, v)

	for _, id := range []netconfig.FrameID{27, 28, 29, 30} {
		assert.Equal(t, 4.0, b.Frame(id).v)
		assert.Equal(t, SourceInitial, b.Source(id))
	}
	assert.Equal(t, 99.0, b.Frame(31).v)
	assert.Equal(t, SourceNone, b.Source(31))

	b.Reset()
	assert.Equal(t, SourceNone, b.Source(30))
}

func TestSourceNames(t *testing.T) {
	assert.Equal(t, "interpolated", SourceInterpolated.String())
	assert.Equal(t, "unknown", Source(200).String())
	assert.True(t, SourceExtrapolated.Reconstructed())
	assert.False(t, SourceCopied.Reconstructed())
}
