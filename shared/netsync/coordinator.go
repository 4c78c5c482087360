package netsync

import (
	"fmt"

	"github.com/automoto/framesync/shared/framering"
	"github.com/automoto/framesync/shared/netconfig"
	"go.uber.org/zap"
)

// Coordinator synchronizes a single frame type: one Playback driving one
// Track.
type Coordinator[T framering.Frame[T]] struct {
	*Playback
	track  *Track[T]
	logger *zap.Logger
}

// NewCoordinator allocates the ring up front with alloc.
func NewCoordinator[T framering.Frame[T]](alloc func() T, opts Options) *Coordinator[T] {
	opts = opts.withDefaults()
	c := &Coordinator[T]{
		Playback: NewPlayback(opts),
		track:    NewTrack(alloc),
		logger:   opts.Logger,
	}
	c.Attach(c.track)
	return c
}

// Receive decodes a frame for slot local. A decode error discards the frame,
// leaving the slot to be reconstructed, and is returned wrapped in
// ErrFramingDesync.
func (c *Coordinator[T]) Receive(local, localNow netconfig.FrameID, decode func(dst T) error) error {
	if err := decode(c.track.Staging()); err != nil {
		c.Drop(local)
		c.logger.Warn("dropping undecodable frame", zap.Stringer("frame", local), zap.Error(err))
		return fmt.Errorf("%w: frame %s: %v", ErrFramingDesync, local, err)
	}
	if !c.Stale(local) {
		c.track.Commit(local)
	}
	c.Playback.Receive(local, localNow)
	return nil
}

// Reinitialize decodes a full-state snapshot and collapses history onto it.
func (c *Coordinator[T]) Reinitialize(localNow netconfig.FrameID, decode func(dst T) error) error {
	if err := decode(c.track.Staging()); err != nil {
		c.metrics.FramingDesync()
		return fmt.Errorf("%w: full state: %v", ErrFramingDesync, err)
	}
	c.track.Stage()
	c.Playback.Reinitialize(localNow)
	return nil
}

// Capture fills the writer's frame for frameID.
func (c *Coordinator[T]) Capture(frameID netconfig.FrameID, fill func(dst T)) T {
	return c.track.Capture(frameID, fill)
}

// Sample interpolates between snap and targ into dst.
func (c *Coordinator[T]) Sample(dst T, t float64) {
	c.track.Sample(dst, c.Pointers(), t)
}

// View returns slot id for reading. The frame must not be retained past the
// next Receive or Advance.
func (c *Coordinator[T]) View(id netconfig.FrameID) T {
	return c.track.Frame(id)
}

func (c *Coordinator[T]) Source(id netconfig.FrameID) framering.Source {
	return c.track.Source(id)
}
