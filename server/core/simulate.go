package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/automoto/framesync/archetypes"
	"github.com/automoto/framesync/components"
	"github.com/automoto/framesync/config"
	"github.com/automoto/framesync/network"
	"github.com/automoto/framesync/shared/frameclock"
	"github.com/automoto/framesync/shared/netcomponents"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/netsync"
	"github.com/automoto/framesync/systems"
	"github.com/automoto/framesync/systems/factory"
	"github.com/benbjohnson/clock"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/zap"
)

var (
	simMaster = netconfig.Role{Peer: 1, IsMaster: true}
	simPeer   = netconfig.Role{Peer: 2}
)

type SimulateOptions struct {
	Sim      config.SimConfig
	Sync     config.SyncConfig
	Handover bool // Hand the first drone to the peer halfway through
	Metrics  netsync.Metrics
	Logger   *zap.Logger
}

// Report summarizes a simulated session.
type Report struct {
	Ticks     int                   `json:"ticks"`
	Frames    int                   `json:"frames"`
	Link      network.LinkStats     `json:"link"`
	Handover  uint32                `json:"handover,omitempty"` // Drone handed to the peer
	MeanError float64               `json:"meanError"`          // Mean writer to reader distance per drone and tick
	MaxError  float64               `json:"maxError"`
	Master    []systems.EntityStats `json:"master"`
	Peer      []systems.EntityStats `json:"peer"`
}

type simNode struct {
	host   *systems.Host
	clock  *frameclock.Clock
	frames int // Frame increments; FrameID wraps
}

func newSimNode(link *network.LossyLink, role netconfig.Role, mock *clock.Mock, opts SimulateOptions) *simNode {
	world := donburi.NewWorld()
	var host *systems.Host
	logger := opts.Logger.With(zap.Uint32("node", uint32(role.Peer)))
	tr := link.Attach(role.Peer, func(_ netconfig.PeerID, msg []byte) {
		if err := host.Receive(msg); err != nil && !errors.Is(err, systems.ErrUnknownEntity) {
			logger.Debug("dropping message", zap.Error(err))
		}
	})
	fc := frameclock.New(world, frameclock.Config{
		TickRate:   opts.Sim.TickRate,
		SendEveryX: opts.Sim.SendEveryX,
		Clock:      mock,
		Gate:       tr,
		Logger:     logger,
	})
	metrics := opts.Metrics
	if role.IsMaster {
		metrics = nil
	}
	host = systems.NewHost(ecs.NewECS(world), fc, tr, systems.HostConfig{
		Role:             role,
		Tuning:           opts.Sync.Tuning,
		KeyframeInterval: opts.Sync.KeyframeInterval,
		ElideUnchanged:   opts.Sync.ElideUnchanged,
		Clock:            mock,
		Metrics:          metrics,
		Logger:           logger,
	})
	factory.CreateArena(host.ECS(), opts.Sim.Width, opts.Sim.Height)

	n := &simNode{host: host, clock: fc}
	frameclock.FrameIncremented.Subscribe(world, func(_ donburi.World, _ frameclock.IncrementEvent) {
		n.frames++
	})
	return n
}

// Simulate runs a master and one peer in process over a lossy link for
// opts.Sim.Duration of simulated time. The run is reproducible from
// opts.Sim.Seed.
func Simulate(opts SimulateOptions) (Report, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := opts.Sync.Tuning.Validate(); err != nil {
		return Report{}, fmt.Errorf("tuning: %w", err)
	}

	mock := clock.NewMock()
	link := network.NewLossyLink(network.LinkConfig{
		Master:  simMaster.Peer,
		Loss:    opts.Sim.Loss,
		Latency: opts.Sim.Latency,
		Jitter:  opts.Sim.Jitter,
		Seed:    opts.Sim.Seed,
		Clock:   mock,
		Logger:  opts.Logger,
	})
	master := newSimNode(link, simMaster, mock, opts)
	peer := newSimNode(link, simPeer, mock, opts)

	if err := seedArena(master.host, opts.Sim); err != nil {
		return Report{}, err
	}
	if _, err := master.host.Spawn(archetypes.KindAvatar, 0, simPeer.Peer, netconfig.AuthorityOwner); err != nil {
		return Report{}, err
	}
	for _, fs := range master.host.FullStates() {
		if err := master.host.Broadcast(fs); err != nil {
			return Report{}, err
		}
	}

	interval := master.clock.Interval()
	ticks := int(opts.Sim.Duration / interval)
	report := Report{Ticks: ticks}

	var handover esync.NetworkId
	var samples int
	var total float64
	for i := 0; i < ticks; i++ {
		if opts.Handover && i == ticks/2 {
			handover = firstDrone(master.host)
			if handover != 0 {
				if err := master.host.ChangeAuthority(handover, netconfig.AuthorityOwner, simPeer.Peer); err != nil {
					return Report{}, err
				}
				report.Handover = uint32(handover)
			}
		}

		mock.Add(interval)
		master.clock.Tick()
		peer.clock.Tick()
		link.Deliver()

		if handover != 0 {
			adoptDrone(peer.host, handover, opts.Sim.DroneSize)
		}
		// Errors are sampled once playback has had time to fill.
		if i >= ticks/4 {
			n, sum, worst := positionError(master.host, peer.host)
			samples += n
			total += sum
			report.MaxError = math.Max(report.MaxError, worst)
		}
	}

	report.Frames = master.frames
	report.Link = link.Stats()
	if samples > 0 {
		report.MeanError = total / float64(samples)
	}
	report.Master = master.host.Snapshot()
	report.Peer = peer.host.Snapshot()
	return report, nil
}

func firstDrone(h *systems.Host) esync.NetworkId {
	var first esync.NetworkId
	h.Registry().Each(func(id esync.NetworkId, entry *donburi.Entry, _ *netsync.Entity) {
		if entry.HasComponent(components.Drone) && (first == 0 || id < first) {
			first = id
		}
	})
	return first
}

// adoptDrone gives a drone the peer now writes a collision body at its
// current position, so the peer can keep simulating it.
func adoptDrone(h *systems.Host, id esync.NetworkId, size float64) {
	entry, e, err := h.Registry().Resolve(id)
	if err != nil || !e.IsWriter() || components.Object.Get(entry).Object != nil {
		return
	}
	pos := netcomponents.NetPosition.Get(entry)
	vel := netcomponents.NetVelocity.Get(entry)
	factory.AttachDroneBody(h.ECS(), entry, pos.X, pos.Y, size, vel.SpeedX, vel.SpeedY)
}

// positionError compares every drone's position on its writer with the
// other side's rendering of it.
func positionError(a, b *systems.Host) (n int, sum, worst float64) {
	a.Registry().Each(func(id esync.NetworkId, entry *donburi.Entry, _ *netsync.Entity) {
		if !entry.HasComponent(components.Drone) {
			return
		}
		other, _, err := b.Registry().Resolve(id)
		if err != nil {
			return
		}
		pa := netcomponents.NetPosition.Get(entry)
		pb := netcomponents.NetPosition.Get(other)
		d := math.Hypot(pa.X-pb.X, pa.Y-pb.Y)
		n++
		sum += d
		worst = math.Max(worst, d)
	})
	return n, sum, worst
}
