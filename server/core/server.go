// Package core runs a framesync session: the authoritative host behind a
// websocket endpoint, the peer side that joins it, and an in-process
// simulation of both over a lossy link.
package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/automoto/framesync/archetypes"
	"github.com/automoto/framesync/components"
	"github.com/automoto/framesync/config"
	"github.com/automoto/framesync/metrics"
	"github.com/automoto/framesync/network"
	"github.com/automoto/framesync/shared/frameclock"
	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/automoto/framesync/systems"
	"github.com/automoto/framesync/systems/factory"
	"github.com/benbjohnson/clock"
	"github.com/leap-fish/necs/esync"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// hostPeer is the peer id of the host itself. Joining peers are numbered from 1.
const hostPeer netconfig.PeerID = 0

const (
	inboxSize    = 1024
	shutdownWait = 5 * time.Second
)

type Options struct {
	Net      config.NetConfig
	Sim      config.SimConfig
	Sync     config.SyncConfig
	Clock    clock.Clock
	Logger   *zap.Logger
	Registry *prom.Registry // Served on /metrics; a private one is created when nil
}

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdLeave
	cmdMessage
)

// command is work handed from a connection goroutine to the game loop.
type command struct {
	kind commandKind
	peer *peerConn
	msg  []byte
}

// Server is the authoritative host. It owns the world and every
// master-authority entity, relays peer frames to the other peers and answers
// joins with a snapshot of the session.
type Server struct {
	opts     Options
	logger   *zap.Logger
	registry *prom.Registry
	metrics  *metrics.Collector

	ecs   *ecs.ECS
	clock *frameclock.Clock
	host  *systems.Host
	loop  *GameLoop
	peers *PeerRegistry

	inbox    chan command
	done     chan struct{}
	closed   atomic.Bool
	nextPeer atomic.Uint32
	frame    atomic.Uint32 // Last frame id, for readers off the loop
}

func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Registry == nil {
		opts.Registry = prom.NewRegistry()
	}
	if err := opts.Sync.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	collector, err := metrics.New(opts.Registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger.Named("server"),
		registry: opts.Registry,
		metrics:  collector,
		peers:    NewPeerRegistry(opts.Clock, opts.Net.IdleTimeout),
		inbox:    make(chan command, inboxSize),
		done:     make(chan struct{}),
	}

	world := donburi.NewWorld()
	s.ecs = ecs.NewECS(world)
	s.clock = frameclock.New(world, frameclock.Config{
		TickRate:   opts.Sim.TickRate,
		SendEveryX: opts.Sim.SendEveryX,
		Clock:      opts.Clock,
		Gate:       s,
		Logger:     opts.Logger,
	})
	s.host = systems.NewHost(s.ecs, s.clock, s, systems.HostConfig{
		Role:             netconfig.Role{Peer: hostPeer, IsMaster: true},
		Tuning:           opts.Sync.Tuning,
		KeyframeInterval: opts.Sync.KeyframeInterval,
		ElideUnchanged:   opts.Sync.ElideUnchanged,
		Clock:            opts.Clock,
		Metrics:          collector,
		Logger:           opts.Logger,
	})
	s.loop = NewGameLoop(s, opts.Clock, opts.Logger)
	frameclock.FrameIncremented.Subscribe(world, func(_ donburi.World, ev frameclock.IncrementEvent) {
		s.frame.Store(uint32(ev.New))
	})

	factory.CreateArena(s.ecs, opts.Sim.Width, opts.Sim.Height)
	if err := seedArena(s.host, opts.Sim); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Host() *systems.Host         { return s.host }
func (s *Server) Peers() *PeerRegistry        { return s.peers }
func (s *Server) Loop() *GameLoop             { return s.loop }
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Run serves addr and drives the game loop until ctx ends, then shuts both
// down and closes every peer connection.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.loop.Run(ctx)
		return nil
	})
	if s.opts.Net.IdleTimeout > 0 {
		g.Go(func() error {
			s.peers.cleanupLoop(s.opts.Net.IdleTimeout/2, s.kickIdle)
			return nil
		})
	}
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", addr), zap.String("name", s.opts.Net.ServerName))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		return multierr.Combine(s.Close(), srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// Close stops the game loop and disconnects every peer.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	s.loop.Stop()
	s.peers.Stop()

	var err error
	for _, info := range s.peers.List() {
		if p, ok := s.peers.Remove(info.ID); ok {
			err = multierr.Append(err, p.close("server shutting down"))
		}
	}
	return err
}

// Ready reports whether the host may tick. The host simulates with or
// without peers.
func (s *Server) Ready() bool { return !s.closed.Load() }

// Send queues payload for the targeted peers. TargetMaster addresses the host
// itself and goes nowhere.
func (s *Server) Send(payload []byte, _ int, target network.Target, recipients []netconfig.PeerID) error {
	frame := len(payload) > 0 && protocol.Channel(payload[0]) == protocol.ChannelFrame
	switch target {
	case network.TargetAll:
		s.peers.Each(hostPeer, func(p *peerConn) { s.deliver(p, payload, frame) })
	case network.TargetPeers:
		for _, id := range recipients {
			if p, ok := s.peers.Get(id); ok {
				s.deliver(p, payload, frame)
			}
		}
	}
	return nil
}

func (s *Server) deliver(p *peerConn, payload []byte, frame bool) {
	// payload is reused by the send pass.
	msg := append([]byte(nil), payload...)
	if !p.enqueue(msg, frame) {
		s.metrics.RelayDropped()
	}
}

// submit hands cmd to the game loop. It reports false once the server closed.
func (s *Server) submit(cmd command) bool {
	select {
	case s.inbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

// ProcessCommands applies everything connection goroutines queued since the
// last tick. It runs on the game loop.
func (s *Server) ProcessCommands() {
	for {
		select {
		case cmd := <-s.inbox:
			switch cmd.kind {
			case cmdJoin:
				s.handleJoin(cmd.peer)
			case cmdLeave:
				s.handleLeave(cmd.peer)
			case cmdMessage:
				s.handleMessage(cmd.peer, cmd.msg)
			}
		default:
			return
		}
	}
}

// handleJoin spawns the peer's avatar, sends it the session snapshot and
// announces the avatar to everyone else.
func (s *Server) handleJoin(p *peerConn) {
	entry, err := s.host.Spawn(archetypes.KindAvatar, 0, p.id, netconfig.AuthorityOwner)
	if err != nil {
		s.logger.Error("failed to spawn avatar", zap.Uint32("peer", uint32(p.id)), zap.Error(err))
		_ = p.reject("failed to spawn avatar")
		return
	}
	components.Avatar.SetValue(entry, components.AvatarData{Peer: p.id, Name: p.name})
	p.avatar = *esync.GetNetworkId(entry)
	s.peers.Add(p)
	s.metrics.SetPeers(s.peers.Count())

	p.sendControl(messages.JoinAccepted{
		Peer:       p.id,
		NetworkID:  p.avatar,
		ServerName: s.opts.Net.ServerName,
		TickRate:   s.opts.Sim.TickRate,
		SendEveryX: s.opts.Sim.SendEveryX,
		FrameID:    s.clock.FrameID(),
	})
	for _, fs := range s.host.FullStates() {
		p.sendControl(fs)
	}

	fs, err := s.host.FullState(p.avatar)
	if err == nil {
		payload, err := protocol.EncodeControl(fs)
		if err == nil {
			s.peers.Each(p.id, func(other *peerConn) { s.deliver(other, payload, false) })
		}
	}
	s.logger.Info("peer joined",
		zap.Uint32("peer", uint32(p.id)),
		zap.String("name", p.name),
		zap.Uint("avatar", uint(p.avatar)))
}

func (s *Server) handleLeave(p *peerConn) {
	if _, ok := s.peers.Remove(p.id); !ok {
		return
	}
	s.metrics.SetPeers(s.peers.Count())
	if err := s.host.Despawn(p.avatar); err != nil {
		s.logger.Warn("failed to despawn avatar", zap.Uint("avatar", uint(p.avatar)), zap.Error(err))
	}
	if err := s.host.Broadcast(messages.Despawn{NetworkID: p.avatar}); err != nil {
		s.logger.Warn("failed to broadcast despawn", zap.Error(err))
	}
	s.logger.Info("peer left", zap.Uint32("peer", uint32(p.id)), zap.String("name", p.name))
}

// handleMessage feeds a peer's frame into the host. Peers may only send
// frames; session and authority changes come from the host.
func (s *Server) handleMessage(p *peerConn, msg []byte) {
	ch, _, err := protocol.Split(msg)
	if err != nil {
		return
	}
	if ch != protocol.ChannelFrame {
		s.logger.Debug("ignoring control message from peer", zap.Uint32("peer", uint32(p.id)))
		return
	}
	if err := s.host.Receive(msg); err != nil && !errors.Is(err, systems.ErrUnknownEntity) {
		s.logger.Debug("bad frame from peer", zap.Uint32("peer", uint32(p.id)), zap.Error(err))
	}
}

// mayWrite reports whether p writes the entity named in datagram's header.
func (s *Server) mayWrite(p *peerConn, datagram []byte) bool {
	h, _, err := protocol.TryDecodeHeader(datagram)
	if err != nil {
		s.logger.Debug("bad frame header", zap.Uint32("peer", uint32(p.id)), zap.Error(err))
		return false
	}
	if !s.host.Writers().MayWrite(p.id, esync.NetworkId(h.EntityID)) {
		s.metrics.Rejected()
		s.logger.Debug("dropping frame from non-writer",
			zap.Uint32("peer", uint32(p.id)),
			zap.Uint32("entity", h.EntityID))
		return false
	}
	return true
}

// relay forwards a peer's frame to every other peer straight from its read
// goroutine, ahead of the host's own processing.
func (s *Server) relay(from *peerConn, msg []byte) {
	s.peers.Each(from.id, func(p *peerConn) {
		if p.enqueue(msg, true) {
			s.metrics.Relayed()
		} else {
			s.metrics.RelayDropped()
		}
	})
}

func (s *Server) kickIdle(p *peerConn, idle time.Duration) {
	s.logger.Info("dropping idle peer", zap.Uint32("peer", uint32(p.id)), zap.Duration("idle", idle))
	_ = p.close("idle")
}

// seedArena spawns the host-written drones inside the arena. Placement is
// reproducible from sim.Seed.
func seedArena(h *systems.Host, sim config.SimConfig) error {
	ox, oy := factory.ArenaOrigin()

	rng := rand.New(rand.NewSource(sim.Seed))
	for i := 0; i < sim.Drones; i++ {
		entry, err := h.Spawn(archetypes.KindDrone, 0, hostPeer, netconfig.AuthorityMaster)
		if err != nil {
			return fmt.Errorf("seed drone %d: %w", i, err)
		}
		x := ox + rng.Float64()*(sim.Width-sim.DroneSize)
		y := oy + rng.Float64()*(sim.Height-sim.DroneSize)
		angle := rng.Float64() * 2 * math.Pi
		factory.AttachDroneBody(h.ECS(), entry, x, y, sim.DroneSize,
			sim.DroneSpeed*math.Cos(angle), sim.DroneSpeed*math.Sin(angle))
	}
	return nil
}
