package netsync

import (
	"github.com/automoto/framesync/shared/framering"
	"github.com/automoto/framesync/shared/netconfig"
)

// Track is one component's frame ring. Incoming payloads are decoded into a
// staging frame first and committed to the ring only once the whole datagram
// decoded cleanly.
type Track[T framering.Frame[T]] struct {
	buf     *framering.Buffer[T]
	staging T
}

func NewTrack[T framering.Frame[T]](alloc func() T) *Track[T] {
	return &Track[T]{
		buf:     framering.NewBuffer(alloc),
		staging: alloc(),
	}
}

// Staging is the scratch frame the next payload is decoded into.
func (t *Track[T]) Staging() T { return t.staging }

// Commit copies the staging frame into slot local.
func (t *Track[T]) Commit(local netconfig.FrameID) {
	t.buf.Frame(local).CopyFrom(t.staging)
	t.buf.SetSource(local, framering.SourceReceived)
}

// Stage copies the staging frame into the offtick slot.
func (t *Track[T]) Stage() {
	t.buf.Offtick().CopyFrom(t.staging)
}

// Frame is a read view of a slot, valid until the next Receive or Advance.
func (t *Track[T]) Frame(id netconfig.FrameID) T { return t.buf.Frame(id) }

func (t *Track[T]) Source(id netconfig.FrameID) framering.Source { return t.buf.Source(id) }

// Capture hands the writer's slot to fill and tags it as captured.
func (t *Track[T]) Capture(id netconfig.FrameID, fill func(dst T)) T {
	f := t.buf.Frame(id)
	fill(f)
	t.buf.SetSource(id, framering.SourceCaptured)
	return f
}

func (t *Track[T]) InitFrom(src netconfig.FrameID, p framering.Pointers, valid *framering.ValidityRing) {
	t.buf.CopyInit(t.buf.Frame(src), p, valid)
}

func (t *Track[T]) Settle(p framering.Pointers, valid *framering.ValidityRing, reconstruct bool, maxLookahead int) framering.Source {
	return t.buf.Settle(valid, p, reconstruct, maxLookahead)
}

// Sample writes the state a fraction t of the way from snap to targ into dst.
func (t *Track[T]) Sample(dst T, p framering.Pointers, frac float64) {
	dst.Interpolate(t.buf.Frame(p.Snap), t.buf.Frame(p.Targ), frac)
}
