// Package netsync turns a stream of lossy, reordered frame datagrams into
// steady per-entity playback.
//
// A Playback is the jitter buffer of one entity: it tracks which ring slots
// hold received data, picks the slot played out each tick and decides whether
// to hold, advance or skip ahead. Each synchronized component owns a Track
// (its frame ring) that the Playback rotates in lockstep. Coordinator bundles a
// Playback with a single Track for callers that sync one frame type, and
// Entity drives several components through a Fanout.
//
// None of these types lock. Receive and Advance must be called from the same
// goroutine, or otherwise never concurrently; the host scheduler enforces this.
package netsync

import (
	"time"

	"github.com/automoto/framesync/shared/framering"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Options configures a Playback. Zero fields fall back to defaults.
type Options struct {
	Logger  *zap.Logger
	Clock   clock.Clock
	Metrics Metrics
	Tuning  *netconfig.Tuning
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Metrics == nil {
		o.Metrics = NopMetrics{}
	}
	if o.Tuning == nil {
		t := netconfig.DefaultTuning()
		o.Tuning = &t
	}
	return o
}

// Snapshotter is the per-component side of rotation: a frame ring that can be
// collapsed onto one frame and can settle a freshly rotated target.
type Snapshotter interface {
	InitFrom(src netconfig.FrameID, p framering.Pointers, valid *framering.ValidityRing)
	Settle(p framering.Pointers, valid *framering.ValidityRing, reconstruct bool, maxLookahead int) framering.Source
}

// Action is the decision taken by one Advance.
type Action uint8

const (
	ActionIdle    Action = iota // Not playing: disabled, writer, or nothing received yet
	ActionBacklog               // Collapsing the initial backlog
	ActionHold                  // Starved; repeat the current target
	ActionAdvance               // Normal single step
	ActionCatchUp               // Sustained overfill; skip one buffered frame
)

var actionNames = [...]string{
	ActionIdle:    "idle",
	ActionBacklog: "backlog",
	ActionHold:    "hold",
	ActionAdvance: "advance",
	ActionCatchUp: "catch-up",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// AdvanceResult reports what one Advance did.
type AdvanceResult struct {
	Action     Action
	Steps      int
	ValidCount int
	Target     netconfig.FrameID
}

// Stats are cumulative playback counters.
type Stats struct {
	Received     uint64            `json:"received"`
	Late         uint64            `json:"late"`
	Dropped      uint64            `json:"dropped"`
	Resyncs      uint64            `json:"resyncs"`
	Advances     uint64            `json:"advances"`
	Holds        uint64            `json:"holds"`
	CatchUps     uint64            `json:"catchUps"`
	Copied       uint64            `json:"copied"`
	Interpolated uint64            `json:"interpolated"`
	Extrapolated uint64            `json:"extrapolated"`
	Buffered     int               `json:"buffered"`
	Target       netconfig.FrameID `json:"target"`
}

// Playback is the jitter buffer control loop of one entity.
type Playback struct {
	logger  *zap.Logger
	clock   clock.Clock
	metrics Metrics
	tuning  *netconfig.Tuning

	valid  *framering.ValidityRing
	tracks []Snapshotter

	ptrs     framering.Pointers
	currTarg netconfig.FrameID
	newest   netconfig.FrameID

	enabled bool
	writer  bool

	hadInitialSnapshot      bool
	processedInitialBacklog bool
	firstReceivedAt         time.Time
	initialized             bool // pointers reference real frames
	played                  bool // at least one rotation happened
	needsInit               bool
	initFrom                netconfig.FrameID

	late        bool
	starvedRun  int
	overfullRun int

	stats Stats
}

// NewPlayback returns an enabled reader playback with no tracks.
func NewPlayback(opts Options) *Playback {
	opts = opts.withDefaults()
	return &Playback{
		logger:  opts.Logger,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		tuning:  opts.Tuning,
		valid:   framering.NewValidityRing(),
		enabled: true,
	}
}

// Attach adds a component ring rotated by this playback.
func (p *Playback) Attach(s Snapshotter) {
	p.tracks = append(p.tracks, s)
}

// Valid exposes the validity ring for inspection.
func (p *Playback) Valid() *framering.ValidityRing { return p.valid }

// CurrentTarget is the slot being played out.
func (p *Playback) CurrentTarget() netconfig.FrameID { return p.currTarg }

// Pointers returns the five rendering pointers.
func (p *Playback) Pointers() framering.Pointers { return p.ptrs }

// Initialized reports whether the pointers reference initialized frames.
func (p *Playback) Initialized() bool { return p.initialized }

func (p *Playback) Stats() Stats {
	s := p.stats
	s.Target = p.currTarg
	return s
}

func (p *Playback) Enabled() bool { return p.enabled }
func (p *Playback) Writer() bool  { return p.writer }

// SetEnabled turns playback on or off. Becoming enabled again restarts the
// startup phase.
func (p *Playback) SetEnabled(enabled bool) {
	if enabled && !p.enabled {
		p.resetStartup()
	}
	p.enabled = enabled
}

// SetWriter switches between writing (no playback) and reading. A writer that
// becomes a reader starts over from its next received frame.
func (p *Playback) SetWriter(writer bool) {
	if p.writer && !writer {
		p.resetStartup()
	}
	p.writer = writer
}

func (p *Playback) resetStartup() {
	p.valid.Reset()
	p.hadInitialSnapshot = false
	p.processedInitialBacklog = false
	p.initialized = false
	p.played = false
	p.needsInit = false
	p.late = false
	p.starvedRun, p.overfullRun = 0, 0
}

// OutOfWindow reports whether a frame at local would restart the startup
// phase because it lies too far ahead of the current target.
func (p *Playback) OutOfWindow(local netconfig.FrameID) bool {
	if !p.hadInitialSnapshot {
		return false
	}
	return netconfig.SignedOffset(p.currTarg, local) > p.tuning.WindowSize
}

// Stale reports whether a frame at local is further behind the target than
// the window reaches. Its payload must not be written into the ring.
func (p *Playback) Stale(local netconfig.FrameID) bool {
	if !p.hadInitialSnapshot {
		return false
	}
	return netconfig.SignedOffset(p.currTarg, local) < -p.tuning.WindowSize
}

// Receive records that the frame for slot local has been written into every
// track. localNow is the local clock's current frame.
func (p *Playback) Receive(local, localNow netconfig.FrameID) {
	p.stats.Received++
	if !p.hadInitialSnapshot {
		p.start(local, localNow)
		return
	}
	if p.OutOfWindow(local) {
		p.logger.Debug("frame outside playback window, restarting",
			zap.Stringer("frame", local), zap.Stringer("target", p.currTarg))
		p.stats.Resyncs++
		p.metrics.Resync()
		p.start(local, local)
		return
	}
	if !netconfig.IsFuture(p.currTarg, local, p.tuning.FutureHalfRange) {
		// Kept as data, but the slot is behind playback and must not count as
		// buffered once the window wraps around to it.
		p.late = true
		p.stats.Late++
		p.metrics.LateFrame()
		p.logger.Debug("late frame", zap.Stringer("frame", local), zap.Stringer("target", p.currTarg))
		return
	}
	p.valid.Set(local)
	if netconfig.SignedOffset(p.newest, local) > 0 {
		p.newest = local
	}
}

// Drop discards a frame that failed to decode. The slot is treated as lost.
func (p *Playback) Drop(local netconfig.FrameID) {
	p.valid.Clear(local)
	p.stats.Dropped++
	p.metrics.FramingDesync()
}

// start begins playback TargetBuffer slots behind base.
func (p *Playback) start(local, base netconfig.FrameID) {
	p.valid.Reset()
	p.valid.Set(local)
	p.hadInitialSnapshot = true
	p.processedInitialBacklog = false
	p.firstReceivedAt = p.clock.Now()
	p.currTarg = base.Add(-p.tuning.TargetBuffer)
	p.newest = local
	p.needsInit = true
	p.initFrom = local
	p.late = false
	p.starvedRun, p.overfullRun = 0, 0
}

// Reinitialize collapses every track's history onto the frame staged in the
// offtick slot, typically an out-of-band full-state snapshot.
func (p *Playback) Reinitialize(localNow netconfig.FrameID) {
	if !p.hadInitialSnapshot {
		p.hadInitialSnapshot = true
		p.processedInitialBacklog = false
		p.firstReceivedAt = p.clock.Now()
		p.currTarg = localNow.Add(-p.tuning.TargetBuffer)
		p.newest = p.currTarg
	}
	p.ptrs = framering.PointersAt(p.currTarg)
	for _, t := range p.tracks {
		t.InitFrom(framering.OfftickID, p.ptrs, p.valid)
	}
	p.needsInit = false
	p.initialized = true
}

// Advance runs the jitter control loop once. It is called once per local
// frame, after that frame's datagrams have been received.
func (p *Playback) Advance(localNow netconfig.FrameID) AdvanceResult {
	if !p.enabled || p.writer || !p.hadInitialSnapshot {
		return AdvanceResult{Action: ActionIdle, Target: p.currTarg}
	}
	late := p.late
	p.late = false

	if !p.processedInitialBacklog {
		if p.clock.Since(p.firstReceivedAt) < p.tuning.BacklogWindow {
			p.collapseBacklog(localNow)
			return AdvanceResult{Action: ActionBacklog, Target: p.currTarg}
		}
		p.processedInitialBacklog = true
	}

	count := p.valid.CountAhead(p.currTarg, p.tuning.WindowSize)
	p.stats.Buffered = count
	p.metrics.Buffered(count)

	res := AdvanceResult{Action: ActionAdvance, Steps: 1, ValidCount: count}
	switch {
	case late || count < p.tuning.MinBuffer:
		p.starvedRun++
		p.overfullRun = 0
		if !p.played || p.starvedRun >= p.tuning.TicksBeforeCorrection {
			res.Action, res.Steps = ActionHold, 0
		}
	case count > p.tuning.MaxBuffer:
		p.overfullRun++
		p.starvedRun = 0
		if p.overfullRun > p.tuning.TicksBeforeCorrection {
			res.Action, res.Steps = ActionCatchUp, 2
		}
	default:
		p.starvedRun, p.overfullRun = 0, 0
	}

	switch res.Action {
	case ActionHold:
		p.stats.Holds++
		p.metrics.Hold()
	case ActionCatchUp:
		p.stats.CatchUps++
		p.metrics.CatchUp()
	}
	for i := 0; i < res.Steps; i++ {
		p.step()
	}
	res.Target = p.currTarg
	return res
}

// collapseBacklog pins the target behind the local clock and re-seeds history
// from the newest frame, so a burst queued before playback began is skipped
// rather than replayed.
func (p *Playback) collapseBacklog(localNow netconfig.FrameID) {
	p.currTarg = localNow.Add(-p.tuning.TargetBuffer)
	for i := 0; i < netconfig.FrameCount-p.tuning.WindowSize; i++ {
		p.valid.Clear(p.currTarg.Add(-i))
	}
	p.needsInit = true
	p.initFrom = p.newest
}

func (p *Playback) step() {
	p.valid.Clear(p.currTarg.Add(1 - p.tuning.AgeOutDistance))
	p.currTarg = p.currTarg.Add(1)
	p.stats.Advances++

	if p.needsInit {
		p.ptrs = framering.PointersAt(p.currTarg)
		for _, t := range p.tracks {
			t.InitFrom(p.initFrom, p.ptrs, p.valid)
		}
		p.needsInit = false
		p.initialized = true
		p.played = true
		p.metrics.Rotated(framering.SourceInitial)
		return
	}

	p.ptrs.Rotate(p.currTarg)
	src := framering.SourceNone
	for _, t := range p.tracks {
		if s := t.Settle(p.ptrs, p.valid, !p.writer, p.tuning.MaxLookahead); s > src {
			src = s
		}
	}
	p.played = true
	switch src {
	case framering.SourceCopied:
		p.stats.Copied++
	case framering.SourceInterpolated:
		p.stats.Interpolated++
	case framering.SourceExtrapolated:
		p.stats.Extrapolated++
	}
	p.metrics.Rotated(src)
}
