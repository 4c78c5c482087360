package systems

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/automoto/framesync/archetypes"
	"github.com/automoto/framesync/components"
	"github.com/automoto/framesync/network"
	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/frameclock"
	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/netsync"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/benbjohnson/clock"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/zap"
)

// HostConfig configures a Host.
type HostConfig struct {
	Role             netconfig.Role
	Tuning           netconfig.Tuning
	KeyframeInterval int
	ElideUnchanged   bool        // Skip datagrams with no changed component
	Clock            clock.Clock // Wall clock for playback backlog windows
	Metrics          netsync.Metrics
	Logger           *zap.Logger
}

// EntityStats is one synchronized entity as reported by Snapshot.
type EntityStats struct {
	ID        uint32           `json:"id"`
	Kind      string           `json:"kind"`
	Owner     netconfig.PeerID `json:"owner"`
	Authority string           `json:"authority"`
	Writer    bool             `json:"writer"`
	netsync.Stats
}

// UnknownEntityCounter is implemented by metrics that count datagrams for
// entities this host does not know.
type UnknownEntityCounter interface {
	UnknownEntity()
}

// Host drives every synchronized entity of one process from the frame clock:
// it simulates and renders on PreTick, captures and sends writers on
// SendFrame and advances readers on FrameIncremented.
//
// Host is not safe for concurrent use except for Snapshot and Writers.
// Receive, the control methods and the clock must run on the same goroutine.
type Host struct {
	ecs       *ecs.ECS
	clock     *frameclock.Clock
	transport network.Transport
	registry  *Registry
	writers   *WriterTable
	cfg       HostConfig
	logger    *zap.Logger

	w      *bitstream.Writer // Reused for every datagram of a send pass
	out    []byte
	nextID esync.NetworkId

	mu    sync.RWMutex
	stats []EntityStats
}

func NewHost(e *ecs.ECS, fc *frameclock.Clock, transport network.Transport, cfg HostConfig) *Host {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = netsync.NopMetrics{}
	}
	if cfg.Tuning == (netconfig.Tuning{}) {
		cfg.Tuning = netconfig.DefaultTuning()
	}
	h := &Host{
		ecs:       e,
		clock:     fc,
		transport: transport,
		registry:  NewRegistry(e.World),
		writers:   NewWriterTable(),
		cfg:       cfg,
		logger:    cfg.Logger.Named("host"),
		w:         bitstream.NewWriter(64),
	}

	e.AddSystem(UpdateAvatars)
	e.AddSystem(UpdateDrones)
	e.AddSystem(UpdateObjects)

	frameclock.PreTick.Subscribe(e.World, h.onPreTick)
	frameclock.SendFrame.Subscribe(e.World, h.onSendFrame)
	frameclock.FrameIncremented.Subscribe(e.World, h.onFrameIncremented)
	return h
}

func (h *Host) ECS() *ecs.ECS                { return h.ecs }
func (h *Host) Clock() *frameclock.Clock     { return h.clock }
func (h *Host) Registry() *Registry          { return h.registry }
func (h *Host) Writers() *WriterTable        { return h.writers }
func (h *Host) Role() netconfig.Role         { return h.cfg.Role }
func (h *Host) Transport() network.Transport { return h.transport }

// onPreTick steps the simulation of written entities and renders readers a
// fraction (sub+1)/sendEveryX of the way from snap to targ.
func (h *Host) onPreTick(_ donburi.World, ev frameclock.TickEvent) {
	h.ecs.Update()

	t := float64(ev.Sub+1) / float64(h.clock.SendEveryX())
	h.registry.Each(func(_ esync.NetworkId, _ *donburi.Entry, e *netsync.Entity) {
		e.Interpolate(t)
	})
}

func (h *Host) onSendFrame(_ donburi.World, ev frameclock.TickEvent) {
	h.sendPass(ev.Frame)
}

func (h *Host) onFrameIncremented(_ donburi.World, ev frameclock.IncrementEvent) {
	h.registry.Each(func(_ esync.NetworkId, _ *donburi.Entry, e *netsync.Entity) {
		e.Advance(ev.New)
	})
	h.refreshStats()
}

// sendPass captures every writer and sends one datagram per entity, built in
// the shared writer and handed off immediately.
func (h *Host) sendPass(frame netconfig.FrameID) {
	if !h.transport.Ready() {
		return
	}
	h.registry.Each(func(id esync.NetworkId, _ *donburi.Entry, e *netsync.Entity) {
		if !e.IsWriter() || !e.Enabled() {
			return
		}
		e.Capture(frame)
		h.w.Reset()
		if !e.Serialize(frame, h.w) && h.cfg.ElideUnchanged {
			return
		}
		h.out = protocol.EncodeFrame(h.out, h.w.Bytes())
		if err := h.transport.Send(h.out, h.w.Len(), network.TargetAll, nil); err != nil {
			h.logger.Debug("send failed", zap.Uint("entity", uint(id)), zap.Error(err))
		}
	})
}

// Receive handles one transport message: a frame datagram or a control
// envelope.
func (h *Host) Receive(msg []byte) error {
	ch, body, err := protocol.Split(msg)
	if err != nil {
		return err
	}
	if ch == protocol.ChannelFrame {
		return h.receiveFrame(body)
	}
	env, err := protocol.DecodeControl(body)
	if err != nil {
		return err
	}
	return h.ApplyControl(env)
}

func (h *Host) receiveFrame(datagram []byte) error {
	hdr, r, err := protocol.TryDecodeHeader(datagram)
	if err != nil {
		h.logger.Warn("bad frame header", zap.Error(err))
		return err
	}
	_, e, err := h.registry.Resolve(esync.NetworkId(hdr.EntityID))
	if err != nil {
		h.logger.Debug("dropping frame for unknown entity", zap.Uint32("entity", hdr.EntityID))
		if c, ok := h.cfg.Metrics.(UnknownEntityCounter); ok {
			c.UnknownEntity()
		}
		return err
	}
	return e.Deserialize(hdr.FrameID, h.clock.FrameID(), r)
}

// ApplyControl applies a control envelope from the host or a peer. Join
// messages belong to the session layer and are ignored.
func (h *Host) ApplyControl(env protocol.Envelope) error {
	switch {
	case env.FullState != nil:
		return h.applyFullState(*env.FullState)
	case env.AuthorityChange != nil:
		msg := env.AuthorityChange
		_, e, err := h.registry.Resolve(msg.NetworkID)
		if err != nil {
			return err
		}
		e.SetAuthority(msg.Authority, msg.Owner)
		h.writers.Set(msg.NetworkID, msg.Authority, msg.Owner)
		return nil
	case env.Despawn != nil:
		return h.Despawn(env.Despawn.NetworkID)
	}
	return nil
}

// applyFullState spawns unknown entities and collapses known ones onto the
// snapshot.
func (h *Host) applyFullState(msg messages.FullState) error {
	_, e, err := h.registry.Resolve(msg.NetworkID)
	if errors.Is(err, ErrUnknownEntity) {
		if _, err := h.Spawn(msg.Kind, msg.NetworkID, msg.Owner, msg.Authority); err != nil {
			return err
		}
		_, e, err = h.registry.Resolve(msg.NetworkID)
	}
	if err != nil {
		return err
	}
	if e.Authority() != msg.Authority || e.Owner() != msg.Owner {
		e.SetAuthority(msg.Authority, msg.Owner)
		h.writers.Set(msg.NetworkID, msg.Authority, msg.Owner)
	}
	return e.ApplyFullState(h.clock.FrameID(), bitstream.NewReaderBits(msg.Payload, msg.Bits))
}

// Spawn creates an entity of kind. A zero id allocates the next free one.
func (h *Host) Spawn(kind string, id esync.NetworkId, owner netconfig.PeerID, authority netconfig.Authority) (*donburi.Entry, error) {
	arch, ok := archetypes.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("spawn: unknown kind %q", kind)
	}
	if id == 0 {
		id = h.nextID + 1
	}
	if _, _, err := h.registry.Resolve(id); err == nil {
		return nil, fmt.Errorf("spawn: %w: %d", ErrDuplicateEntity, id)
	}

	entry := arch.Spawn(h.ecs)
	setDefaultVitals(entry)
	fanout, err := newFanout(entry, h.clock.SendEveryX())
	if err != nil {
		entry.Remove()
		return nil, fmt.Errorf("spawn %s: %w", kind, err)
	}
	e := netsync.NewEntity(netsync.EntityConfig{
		ID:               uint32(id),
		Role:             h.cfg.Role,
		Authority:        authority,
		Owner:            owner,
		KeyframeInterval: h.cfg.KeyframeInterval,
	}, fanout, netsync.Options{
		Logger:  h.logger,
		Clock:   h.cfg.Clock,
		Metrics: h.cfg.Metrics,
		Tuning:  &h.cfg.Tuning,
	})
	if err := h.registry.Register(entry, id, kind, e); err != nil {
		entry.Remove()
		return nil, err
	}
	h.nextID = max(h.nextID, id)
	h.writers.Set(id, authority, owner)

	h.logger.Info("spawned",
		zap.String("kind", kind),
		zap.Uint("entity", uint(id)),
		zap.Stringer("authority", authority),
		zap.Uint32("owner", uint32(owner)),
		zap.Bool("writer", e.IsWriter()))
	return entry, nil
}

// Despawn removes an entity and its collision body.
func (h *Host) Despawn(id esync.NetworkId) error {
	entry, _, err := h.registry.Resolve(id)
	if err != nil {
		return err
	}
	if entry.HasComponent(components.Object) {
		if obj := components.Object.Get(entry); obj.Object != nil {
			if space, ok := components.Space.First(h.ecs.World); ok {
				components.Space.Get(space).Remove(obj.Object)
			}
		}
	}
	if err := h.registry.Remove(id); err != nil {
		return err
	}
	h.writers.Delete(id)
	h.logger.Info("despawned", zap.Uint("entity", uint(id)))
	return nil
}

// ChangeAuthority moves write authority locally and tells every peer.
func (h *Host) ChangeAuthority(id esync.NetworkId, a netconfig.Authority, owner netconfig.PeerID) error {
	_, e, err := h.registry.Resolve(id)
	if err != nil {
		return err
	}
	e.SetAuthority(a, owner)
	h.writers.Set(id, a, owner)
	return h.Broadcast(messages.AuthorityChange{NetworkID: id, Owner: owner, Authority: a})
}

// FullState captures the complete state of one entity.
func (h *Host) FullState(id esync.NetworkId) (messages.FullState, error) {
	entry, e, err := h.registry.Resolve(id)
	if err != nil {
		return messages.FullState{}, err
	}
	h.w.Reset()
	bits := e.WriteFullState(h.w)
	return messages.FullState{
		NetworkID: id,
		Kind:      components.Sync.Get(entry).Kind,
		Owner:     e.Owner(),
		Authority: e.Authority(),
		FrameID:   h.clock.FrameID(),
		Bits:      bits,
		Payload:   slices.Clone(h.w.Bytes()),
	}, nil
}

// FullStates captures every entity, in id order.
func (h *Host) FullStates() []messages.FullState {
	var ids []esync.NetworkId
	h.registry.Each(func(id esync.NetworkId, _ *donburi.Entry, _ *netsync.Entity) {
		ids = append(ids, id)
	})
	slices.Sort(ids)
	out := make([]messages.FullState, 0, len(ids))
	for _, id := range ids {
		if fs, err := h.FullState(id); err == nil {
			out = append(out, fs)
		}
	}
	return out
}

// Broadcast sends a control message to every peer.
func (h *Host) Broadcast(msg any) error {
	return h.SendControl(msg, network.TargetAll, nil)
}

func (h *Host) SendControl(msg any, target network.Target, recipients []netconfig.PeerID) error {
	payload, err := protocol.EncodeControl(msg)
	if err != nil {
		return err
	}
	return h.transport.Send(payload, len(payload)*8, target, recipients)
}

// Snapshot returns the per-entity stats as of the last frame increment. It is
// safe to call from any goroutine.
func (h *Host) Snapshot() []EntityStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.stats)
}

func (h *Host) refreshStats() {
	stats := make([]EntityStats, 0, h.registry.Len())
	h.registry.Each(func(id esync.NetworkId, entry *donburi.Entry, e *netsync.Entity) {
		stats = append(stats, EntityStats{
			ID:        uint32(id),
			Kind:      components.Sync.Get(entry).Kind,
			Owner:     e.Owner(),
			Authority: e.Authority().String(),
			Writer:    e.IsWriter(),
			Stats:     e.Stats(),
		})
	})
	slices.SortFunc(stats, func(a, b EntityStats) int { return cmp.Compare(a.ID, b.ID) })

	h.mu.Lock()
	h.stats = stats
	h.mu.Unlock()
}
