package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/automoto/framesync/config"
	"github.com/automoto/framesync/network"
	"github.com/automoto/framesync/shared/frameclock"
	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/systems"
	"github.com/benbjohnson/clock"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/zap"
)

type PeerOptions struct {
	Net    config.NetConfig
	Sync   config.SyncConfig
	Name   string
	Clock  clock.Clock
	Logger *zap.Logger
}

// Peer is the joining side of a session: a websocket client feeding a local
// host whose frame clock runs at the rate the server announced.
type Peer struct {
	opts   PeerOptions
	logger *zap.Logger
	client *network.Client

	accepted messages.JoinAccepted
	clock    *frameclock.Clock
	host     *systems.Host
}

func NewPeer(opts PeerOptions) *Peer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Peer{
		opts:   opts,
		logger: opts.Logger.Named("peer"),
		client: network.NewClient(network.ClientConfig{
			Version:      opts.Net.Version,
			PlayerName:   opts.Name,
			ReadLimit:    opts.Net.ReadLimit,
			WriteTimeout: opts.Net.WriteTimeout,
			Logger:       opts.Logger,
		}),
	}
}

func (p *Peer) Client() *network.Client { return p.client }
func (p *Peer) Host() *systems.Host     { return p.host }

// Join connects to address and builds the local world once the server
// accepts. The local frame clock starts at the server's frame.
func (p *Peer) Join(ctx context.Context, address string) (messages.JoinAccepted, error) {
	accepted, err := p.client.Connect(ctx, address)
	if err != nil {
		return messages.JoinAccepted{}, err
	}
	p.accepted = accepted

	world := donburi.NewWorld()
	p.clock = frameclock.New(world, frameclock.Config{
		TickRate:   accepted.TickRate,
		SendEveryX: accepted.SendEveryX,
		Clock:      p.opts.Clock,
		Gate:       p.client,
		Logger:     p.opts.Logger,
	})
	p.clock.Reset(accepted.FrameID)
	p.host = systems.NewHost(ecs.NewECS(world), p.clock, p.client, systems.HostConfig{
		Role:             netconfig.Role{Peer: accepted.Peer},
		Tuning:           p.opts.Sync.Tuning,
		KeyframeInterval: p.opts.Sync.KeyframeInterval,
		ElideUnchanged:   p.opts.Sync.ElideUnchanged,
		Clock:            p.opts.Clock,
		Logger:           p.opts.Logger,
	})
	return accepted, nil
}

// Step applies everything the server sent since the last call and runs the
// ticks that are due.
func (p *Peer) Step() int {
	for _, msg := range p.client.Drain() {
		if err := p.host.Receive(msg); err != nil && !errors.Is(err, systems.ErrUnknownEntity) {
			p.logger.Debug("dropping message", zap.Error(err))
		}
	}
	return p.clock.Poll()
}

// Run steps the peer every tick interval until ctx ends or the connection
// drops, then disconnects.
func (p *Peer) Run(ctx context.Context) error {
	if p.host == nil {
		return errors.New("peer: not joined")
	}
	ticker := p.opts.Clock.Ticker(p.clock.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.client.Disconnect()
		case <-ticker.C:
			if !p.client.Ready() {
				if err := p.client.LastError(); err != nil {
					return fmt.Errorf("peer: connection lost: %w", err)
				}
				return nil
			}
			p.Step()
		}
	}
}
