// Package framering holds the per-entity frame arena: a fixed ring of state
// frames indexed by netconfig.FrameID, the validity bitset beside it, and the
// reconstruction of frames lost in transit.
//
// Frames are allocated once when the ring is built and then overwritten in
// place; nothing here allocates per tick. Callers address frames by slot
// index. A frame returned by Frame is a view that stays valid only until the
// next Receive or Advance on the owning coordinator.
package framering

import (
	"github.com/automoto/framesync/shared/netconfig"
)

// Frame is one tick of an entity component's synchronized state. T is the
// concrete frame type itself, usually a pointer to a struct.
type Frame[T any] interface {
	// CopyFrom overwrites the receiver with src, including the changed flag.
	CopyFrom(src T)
	// HasChanged reports whether the writer saw a change in this frame.
	HasChanged() bool
	SetChanged(changed bool)
	// Interpolate sets the receiver to the state a fraction t of the way from
	// start to end.
	Interpolate(start, end T, t float64)
	// Extrapolate dead-reckons the receiver one tick past snap, using prev as
	// the tick before snap.
	Extrapolate(prev, snap T)
}

// Source records how a ring slot obtained its current value.
type Source uint8

const (
	SourceNone         Source = iota // Never written
	SourceReceived                   // Decoded from the network
	SourceCaptured                   // Captured locally by the writer
	SourceInitial                    // Copied from an initial or full-state snapshot
	SourceCopied                     // Unchanged tick; copied forward from the previous frame
	SourceInterpolated               // Lost; interpolated toward a later received frame
	SourceExtrapolated               // Lost; dead-reckoned from earlier frames
)

var sourceNames = [...]string{
	SourceNone:         "none",
	SourceReceived:     "received",
	SourceCaptured:     "captured",
	SourceInitial:      "initial",
	SourceCopied:       "copied",
	SourceInterpolated: "interpolated",
	SourceExtrapolated: "extrapolated",
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}

// Reconstructed reports whether the slot was synthesized rather than received.
func (s Source) Reconstructed() bool {
	return s == SourceInterpolated || s == SourceExtrapolated
}

// Pointers are the five sliding slot indices used for rendering.
type Pointers struct {
	Pre2, Pre1, Snap, Targ, Next netconfig.FrameID
}

// PointersAt lays the five pointers out around targ.
func PointersAt(targ netconfig.FrameID) Pointers {
	return Pointers{
		Pre2: targ.Add(-3),
		Pre1: targ.Add(-2),
		Snap: targ.Add(-1),
		Targ: targ,
		Next: targ.Add(1),
	}
}

// Rotate shifts every pointer back one place and brings targ in as the new
// target.
func (p *Pointers) Rotate(targ netconfig.FrameID) {
	p.Pre2, p.Pre1, p.Snap = p.Pre1, p.Snap, p.Targ
	p.Targ = targ
	p.Next = targ.Add(1)
}

// OfftickID addresses the staging slot past the end of the ring.
const OfftickID = netconfig.FrameID(netconfig.FrameCount)

// Buffer is a ring of netconfig.FrameCount frames plus one extra "offtick"
// slot at index FrameCount used to stage out-of-band snapshots.
type Buffer[T Frame[T]] struct {
	frames  []T
	sources []Source
}

// NewBuffer allocates every frame up front with alloc.
func NewBuffer[T Frame[T]](alloc func() T) *Buffer[T] {
	b := &Buffer[T]{
		frames:  make([]T, netconfig.FrameCount+1),
		sources: make([]Source, netconfig.FrameCount+1),
	}
	for i := range b.frames {
		b.frames[i] = alloc()
	}
	return b
}

// Frame returns the frame in slot id.
func (b *Buffer[T]) Frame(id netconfig.FrameID) T {
	return b.frames[id]
}

// Offtick returns the extra staging slot.
func (b *Buffer[T]) Offtick() T {
	return b.frames[OfftickID]
}

func (b *Buffer[T]) Source(id netconfig.FrameID) Source {
	return b.sources[id]
}

func (b *Buffer[T]) SetSource(id netconfig.FrameID, s Source) {
	b.sources[id] = s
}

// Reset forgets the provenance of every slot. Frame contents are left as is.
func (b *Buffer[T]) Reset() {
	for i := range b.sources {
		b.sources[i] = SourceNone
	}
}

// CopyInit collapses history onto src: every pointer slot becomes a copy of
// it, except a Next slot that already holds received data.
func (b *Buffer[T]) CopyInit(src T, p Pointers, valid *ValidityRing) {
	for _, id := range [...]netconfig.FrameID{p.Pre2, p.Pre1, p.Snap, p.Targ} {
		b.frames[id].CopyFrom(src)
		b.sources[id] = SourceInitial
	}
	if !valid.IsValid(p.Next) {
		b.frames[p.Next].CopyFrom(src)
		b.sources[p.Next] = SourceInitial
	}
}

// Settle makes the freshly rotated target usable. A valid frame the writer
// marked unchanged is copied forward from Snap. A missing frame is
// reconstructed when reconstruct is set (the local process is a reader);
// otherwise it is left untouched.
func (b *Buffer[T]) Settle(valid *ValidityRing, p Pointers, reconstruct bool, maxLookahead int) Source {
	targ := b.frames[p.Targ]
	switch {
	case valid.IsValid(p.Targ) && targ.HasChanged():
		b.sources[p.Targ] = SourceReceived
	case valid.IsValid(p.Targ):
		targ.CopyFrom(b.frames[p.Snap])
		targ.SetChanged(false)
		b.sources[p.Targ] = SourceCopied
	case reconstruct:
		b.sources[p.Targ] = b.Reconstruct(valid, p, maxLookahead)
	}
	return b.sources[p.Targ]
}

// Reconstruct synthesizes the missing target frame. It scans up to
// maxLookahead slots past Snap for the first valid, changed frame and
// interpolates toward it proportionally to the gap; without one it falls back
// to extrapolation from Pre1 and Snap.
func (b *Buffer[T]) Reconstruct(valid *ValidityRing, p Pointers, maxLookahead int) Source {
	targ := b.frames[p.Targ]
	snap := b.frames[p.Snap]
	for i := 2; i <= maxLookahead; i++ {
		future := p.Snap.Add(i)
		if valid.IsValid(future) && b.frames[future].HasChanged() {
			targ.Interpolate(snap, b.frames[future], 1/float64(i))
			return SourceInterpolated
		}
	}
	targ.Extrapolate(b.frames[p.Pre1], snap)
	return SourceExtrapolated
}
