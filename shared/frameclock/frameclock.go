// Package frameclock produces the cyclic (frame, sub-frame) tick sequence that
// every synchronized entity is driven by.
//
// A Clock runs sendEveryX fixed simulation ticks per frame. Each tick it
// finishes the previous simulation pass (PostTick, and on the last sub-frame
// SendFrame followed by FrameIncremented) and then opens the next one
// (PreTick). Events are delivered synchronously through the donburi world's
// event bus in that order.
package frameclock

import (
	"time"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
	"go.uber.org/zap"
)

// TickEvent identifies one simulation tick.
type TickEvent struct {
	Frame netconfig.FrameID
	Sub   int
}

// IncrementEvent is published when the frame counter moves.
type IncrementEvent struct {
	New  netconfig.FrameID
	Prev netconfig.FrameID
}

var (
	PreTick          = events.NewEventType[TickEvent]()
	PostTick         = events.NewEventType[TickEvent]()
	SendFrame        = events.NewEventType[TickEvent]()
	FrameIncremented = events.NewEventType[IncrementEvent]()
)

// State of the simulation pass.
type State uint8

const (
	StateIdle State = iota
	StateSimulating
)

func (s State) String() string {
	if s == StateSimulating {
		return "simulating"
	}
	return "idle"
}

// Gate holds the clock back until the outbound channel is usable.
type Gate interface {
	Ready() bool
}

// GateFunc adapts a function to Gate.
type GateFunc func() bool

func (f GateFunc) Ready() bool { return f() }

// maxTicksPerPoll bounds catch-up after a stall; older time is dropped.
const maxTicksPerPoll = 5

type Config struct {
	TickRate   int // Simulation ticks per second
	SendEveryX int // Ticks per frame
	Clock      clock.Clock
	Gate       Gate
	Logger     *zap.Logger
}

// Clock is the owned, explicitly constructed frame clock.
type Clock struct {
	world  donburi.World
	clock  clock.Clock
	gate   Gate
	logger *zap.Logger

	interval   time.Duration
	sendEveryX int

	frame netconfig.FrameID
	sub   int
	state State

	acc     time.Duration
	last    time.Time
	started bool
}

func New(world donburi.World, cfg Config) *Clock {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	if cfg.SendEveryX <= 0 {
		cfg.SendEveryX = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Clock{
		world:      world,
		clock:      cfg.Clock,
		gate:       cfg.Gate,
		logger:     cfg.Logger,
		interval:   time.Second / time.Duration(cfg.TickRate),
		sendEveryX: cfg.SendEveryX,
	}
}

func (c *Clock) FrameID() netconfig.FrameID { return c.frame }
func (c *Clock) SubFrameID() int            { return c.sub }
func (c *Clock) State() State               { return c.state }
func (c *Clock) SendEveryX() int            { return c.sendEveryX }
func (c *Clock) Interval() time.Duration    { return c.interval }

// Reset moves the clock to frame, e.g. to line up with a host on join, and
// ends any open simulation pass without publishing its PostTick.
func (c *Clock) Reset(frame netconfig.FrameID) {
	c.frame = frame
	c.sub = 0
	c.state = StateIdle
}

// Tick runs one fixed simulation tick. It reports false, changing nothing,
// while the gate is closed.
func (c *Clock) Tick() bool {
	if c.gate != nil && !c.gate.Ready() {
		return false
	}
	if c.state == StateSimulating {
		publish(c.world, PostTick, TickEvent{Frame: c.frame, Sub: c.sub})
		c.sub++
		if c.sub >= c.sendEveryX {
			c.sub = 0
			publish(c.world, SendFrame, TickEvent{Frame: c.frame})
			prev := c.frame
			c.frame = c.frame.Add(1)
			publish(c.world, FrameIncremented, IncrementEvent{New: c.frame, Prev: prev})
		}
	}
	publish(c.world, PreTick, TickEvent{Frame: c.frame, Sub: c.sub})
	c.state = StateSimulating
	return true
}

// Poll runs as many ticks as the elapsed time allows and returns how many ran.
// Calling it again before another interval has passed does nothing.
func (c *Clock) Poll() int {
	now := c.clock.Now()
	if !c.started {
		c.started = true
		c.last = now
	}
	c.acc += now.Sub(c.last)
	c.last = now

	n := 0
	for c.acc >= c.interval {
		if n == maxTicksPerPoll {
			c.logger.Debug("dropping simulation time", zap.Duration("behind", c.acc))
			c.acc = 0
			break
		}
		if !c.Tick() {
			c.acc = 0
			break
		}
		c.acc -= c.interval
		n++
	}
	return n
}

func publish[T any](w donburi.World, e *events.EventType[T], v T) {
	e.Publish(w, v)
	e.ProcessEvents(w)
}
