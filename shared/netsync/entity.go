package netsync

import (
	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/framering"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"go.uber.org/zap"
)

// EntityConfig identifies an entity and who writes it.
type EntityConfig struct {
	ID               uint32
	Role             netconfig.Role // The local process
	Authority        netconfig.Authority
	Owner            netconfig.PeerID
	KeyframeInterval int
}

// Entity is one synchronized entity: its components, in wire order, and the
// playback that rotates them.
type Entity struct {
	id     uint32
	logger *zap.Logger

	fanout   *Fanout
	playback *Playback

	role      netconfig.Role
	authority netconfig.Authority
	owner     netconfig.PeerID
	writer    bool
	enabled   bool

	// Readers map the writer's frame ids onto the local ring with an offset
	// latched from the first frame received.
	offset  int
	latched bool

	keyframeInterval int
	sinceKeyframe    int
}

func NewEntity(cfg EntityConfig, fanout *Fanout, opts Options) *Entity {
	opts = opts.withDefaults()
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = netconfig.DefaultKeyframeInterval
	}
	e := &Entity{
		id:               cfg.ID,
		logger:           opts.Logger.With(zap.Uint32("entity", cfg.ID)),
		fanout:           fanout,
		playback:         NewPlayback(opts),
		role:             cfg.Role,
		authority:        cfg.Authority,
		owner:            cfg.Owner,
		enabled:          true,
		keyframeInterval: cfg.KeyframeInterval,
		sinceKeyframe:    cfg.KeyframeInterval,
	}
	for _, s := range fanout.Snapshotters() {
		e.playback.Attach(s)
	}
	e.writer = cfg.Role.IsWriter(cfg.Authority, cfg.Owner)
	e.playback.SetWriter(e.writer)
	fanout.ChangeAuthority(e.writer)
	return e
}

func (e *Entity) ID() uint32                     { return e.id }
func (e *Entity) IsWriter() bool                 { return e.writer }
func (e *Entity) Authority() netconfig.Authority { return e.authority }
func (e *Entity) Owner() netconfig.PeerID        { return e.owner }
func (e *Entity) Enabled() bool                  { return e.enabled }
func (e *Entity) Fanout() *Fanout                { return e.fanout }
func (e *Entity) Playback() *Playback            { return e.playback }
func (e *Entity) Stats() Stats                   { return e.playback.Stats() }

// SetAuthority applies an authority change. Gaining write authority forces a
// keyframe on the next send; losing it restarts playback.
func (e *Entity) SetAuthority(a netconfig.Authority, owner netconfig.PeerID) {
	e.authority, e.owner = a, owner
	writer := e.role.IsWriter(a, owner)
	if writer == e.writer {
		return
	}
	e.writer = writer
	e.latched = false
	e.sinceKeyframe = e.keyframeInterval
	e.playback.SetWriter(writer)
	e.fanout.ChangeAuthority(writer)
	e.logger.Debug("authority changed", zap.Stringer("authority", a), zap.Bool("writer", writer))
}

// SetEnabled pauses or resumes sync. Re-enabling restarts the startup phase.
func (e *Entity) SetEnabled(enabled bool) {
	if enabled && !e.enabled {
		e.latched = false
	}
	e.enabled = enabled
	e.playback.SetEnabled(enabled)
}

// Capture quantizes live state and records it for frame. Readers ignore it.
func (e *Entity) Capture(frame netconfig.FrameID) {
	if !e.writer || !e.enabled {
		return
	}
	e.fanout.Quantize()
	e.fanout.Capture(frame)
}

// Serialize appends a complete datagram for frame to w: header, then every
// component's share. It reports whether anything changed; every
// KeyframeInterval frames all fields are written regardless.
func (e *Entity) Serialize(frame netconfig.FrameID, w *bitstream.Writer) bool {
	if !e.writer || !e.enabled {
		return false
	}
	e.sinceKeyframe++
	force := e.sinceKeyframe >= e.keyframeInterval
	if force {
		e.sinceKeyframe = 0
	}
	protocol.WriteHeader(w, protocol.Header{FrameID: frame, EntityID: e.id})
	hasContent, _ := e.fanout.Serialize(frame, w, force)
	return hasContent
}

// Deserialize consumes the payload of a datagram the writer stamped with
// origin. The reader must be positioned after the header.
func (e *Entity) Deserialize(origin, localNow netconfig.FrameID, r *bitstream.Reader) error {
	if e.writer || !e.enabled {
		return nil
	}
	if err := e.fanout.Deserialize(r); err != nil {
		if e.latched {
			e.playback.Drop(e.toLocal(origin))
		}
		e.logger.Warn("dropping frame", zap.Stringer("origin", origin), zap.Error(err))
		return err
	}

	if !e.latched {
		e.latch(origin, localNow)
	}
	local := e.toLocal(origin)
	if e.playback.OutOfWindow(local) {
		e.latch(origin, localNow)
		local = localNow
	}
	// Frames behind the window are counted late but keep the latch.
	if !e.playback.Stale(local) {
		e.fanout.Commit(local)
	}
	e.playback.Receive(local, localNow)
	return nil
}

func (e *Entity) latch(origin, localNow netconfig.FrameID) {
	e.offset = origin.Distance(localNow)
	e.latched = true
}

func (e *Entity) toLocal(origin netconfig.FrameID) netconfig.FrameID {
	return origin.Add(e.offset)
}

// Advance runs the playback control loop once.
func (e *Entity) Advance(localNow netconfig.FrameID) AdvanceResult {
	return e.playback.Advance(localNow)
}

// Interpolate applies the state a fraction t of the way from snap to targ to
// the live components. Writers keep their own live state.
func (e *Entity) Interpolate(t float64) {
	if e.writer || !e.enabled || !e.playback.Initialized() {
		return
	}
	e.fanout.Interpolate(e.playback.Pointers(), t)
}

// WriteFullState appends the full quantized state of every component and
// returns the number of bits written.
func (e *Entity) WriteFullState(w *bitstream.Writer) int {
	start := w.Len()
	e.fanout.WriteFullState(w)
	return w.Len() - start
}

// ApplyFullState applies an out-of-band snapshot. Readers collapse their
// playback history onto it and re-latch the frame mapping; writers adopt it
// as their live state.
func (e *Entity) ApplyFullState(localNow netconfig.FrameID, r *bitstream.Reader) error {
	if err := e.fanout.ReadFullState(r); err != nil {
		e.logger.Warn("dropping full state", zap.Error(err))
		return err
	}
	if e.writer {
		e.fanout.Interpolate(framering.Pointers{Snap: framering.OfftickID, Targ: framering.OfftickID}, 1)
		return nil
	}
	e.latched = false
	e.playback.Reinitialize(localNow)
	e.fanout.Interpolate(e.playback.Pointers(), 1)
	return nil
}
