package netsync

import (
	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/framering"
	"github.com/automoto/framesync/shared/netconfig"
)

// WireFrame is a Frame that knows its own bit layout.
type WireFrame[F any] interface {
	framering.Frame[F]
	Encode(w *bitstream.Writer)
	Decode(r *bitstream.Reader)
	// Quantize rounds the frame to what survives Encode and Decode.
	Quantize()
	Equal(other F) bool
}

// Binding moves state between a frame and the live value it mirrors, usually
// a component on an ECS entry.
type Binding[F any] interface {
	Capture(dst F)
	Apply(src F)
}

// SyncComponent synchronizes one frame type of an entity. Its wire share is a
// changed bit followed by the frame fields when set.
type SyncComponent[F WireFrame[F]] struct {
	name     string
	track    *Track[F]
	binding  Binding[F]
	scratch  F
	captured bool
	enabled  bool
}

func NewSyncComponent[F WireFrame[F]](name string, alloc func() F, binding Binding[F]) *SyncComponent[F] {
	return &SyncComponent[F]{
		name:    name,
		track:   NewTrack(alloc),
		binding: binding,
		scratch: alloc(),
		enabled: true,
	}
}

func (c *SyncComponent[F]) Name() string     { return c.name }
func (c *SyncComponent[F]) Track() *Track[F] { return c.track }
func (c *SyncComponent[F]) Enabled() bool    { return c.enabled }

func (c *SyncComponent[F]) SetEnabled(enabled bool) { c.enabled = enabled }

// Capture records the quantized live value in slot frame and marks whether it
// differs from the previous capture.
func (c *SyncComponent[F]) Capture(frame netconfig.FrameID) {
	c.track.Capture(frame, func(dst F) {
		c.binding.Capture(dst)
		dst.Quantize()
		dst.SetChanged(!c.captured || !dst.Equal(c.track.Frame(frame.Add(-1))))
	})
	c.captured = true
}

// Quantize rounds the live value in place, so the writer shows what readers
// will reconstruct.
func (c *SyncComponent[F]) Quantize() {
	c.binding.Capture(c.scratch)
	c.scratch.Quantize()
	c.binding.Apply(c.scratch)
}

func (c *SyncComponent[F]) Serialize(frame netconfig.FrameID, w *bitstream.Writer, force bool) bool {
	f := c.track.Frame(frame)
	send := force || f.HasChanged()
	w.WriteBool(send)
	if send {
		f.Encode(w)
	}
	return send
}

// Deserialize decodes into the staging frame. An unchanged share leaves the
// previously decoded fields in place.
func (c *SyncComponent[F]) Deserialize(r *bitstream.Reader) {
	s := c.track.Staging()
	changed := r.ReadBool()
	s.SetChanged(changed)
	if changed {
		s.Decode(r)
	}
}

func (c *SyncComponent[F]) Commit(local netconfig.FrameID) {
	c.track.Commit(local)
}

func (c *SyncComponent[F]) InitFrom(src netconfig.FrameID, p framering.Pointers, valid *framering.ValidityRing) {
	c.track.InitFrom(src, p, valid)
}

func (c *SyncComponent[F]) Settle(p framering.Pointers, valid *framering.ValidityRing, reconstruct bool, maxLookahead int) framering.Source {
	return c.track.Settle(p, valid, reconstruct, maxLookahead)
}

func (c *SyncComponent[F]) Interpolate(p framering.Pointers, t float64) {
	c.track.Sample(c.scratch, p, t)
	c.binding.Apply(c.scratch)
}

// AuthorityChanged forgets the last capture so the first frame written after
// taking authority is always sent as changed.
func (c *SyncComponent[F]) AuthorityChanged(bool) {
	c.captured = false
}

func (c *SyncComponent[F]) WriteFullState(w *bitstream.Writer) {
	c.binding.Capture(c.scratch)
	c.scratch.Quantize()
	c.scratch.Encode(w)
}

func (c *SyncComponent[F]) ReadFullState(r *bitstream.Reader) {
	s := c.track.Staging()
	s.Decode(r)
	s.SetChanged(true)
}

func (c *SyncComponent[F]) StageFullState() {
	c.track.Stage()
}
