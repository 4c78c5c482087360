package systems

import (
	"testing"

	"github.com/automoto/framesync/archetypes"
	"github.com/automoto/framesync/components"
	"github.com/automoto/framesync/network"
	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/frameclock"
	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netcomponents"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/automoto/framesync/systems/factory"
	"github.com/benbjohnson/clock"
	"github.com/leap-fish/necs/esync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

var (
	master = netconfig.Role{Peer: 1, IsMaster: true}
	peer   = netconfig.Role{Peer: 2}
)

type node struct {
	host *Host
	fc   *frameclock.Clock
}

func newNode(t *testing.T, link *network.LossyLink, role netconfig.Role, mock *clock.Mock) *node {
	t.Helper()
	world := donburi.NewWorld()
	e := ecs.NewECS(world)
	var h *Host
	tr := link.Attach(role.Peer, func(_ netconfig.PeerID, msg []byte) {
		_ = h.Receive(msg)
	})
	fc := frameclock.New(world, frameclock.Config{TickRate: 60, SendEveryX: 2, Clock: mock, Gate: tr})
	tuning := netconfig.DefaultTuning()
	tuning.BacklogWindow = 0
	h = NewHost(e, fc, tr, HostConfig{Role: role, Tuning: tuning, Clock: mock})
	return &node{host: h, fc: fc}
}

func newPair(t *testing.T) (*node, *node, *network.LossyLink) {
	mock := clock.NewMock()
	link := network.NewLossyLink(network.LinkConfig{Master: master.Peer, Clock: mock})
	return newNode(t, link, master, mock), newNode(t, link, peer, mock), link
}

func spawnDrone(t *testing.T, n *node, x, y, vx, vy float64) esync.NetworkId {
	t.Helper()
	entry, err := n.host.Spawn(archetypes.KindDrone, 0, 0, netconfig.AuthorityMaster)
	require.NoError(t, err)
	factory.AttachDroneBody(n.host.ECS(), entry, x, y, 8, vx, vy)
	return *esync.GetNetworkId(entry)
}

func announce(t *testing.T, n *node, id esync.NetworkId) {
	t.Helper()
	fs, err := n.host.FullState(id)
	require.NoError(t, err)
	require.NoError(t, n.host.Broadcast(fs))
}

func run(a, b *node, link *network.LossyLink, ticks int) {
	for i := 0; i < ticks; i++ {
		a.fc.Tick()
		b.fc.Tick()
		link.Deliver()
	}
}

func position(t *testing.T, n *node, id esync.NetworkId) netcomponents.NetPositionData {
	t.Helper()
	entry, _, err := n.host.Registry().Resolve(id)
	require.NoError(t, err)
	return *netcomponents.NetPosition.Get(entry)
}

func TestHostReplicatesDroneToPeer(t *testing.T) {
	a, b, link := newPair(t)
	factory.CreateArena(a.host.ECS(), 400, 200)
	id := spawnDrone(t, a, 100, 100, 1.5, 0)
	announce(t, a, id)
	link.Deliver()

	_, reader, err := b.host.Registry().Resolve(id)
	require.NoError(t, err)
	assert.False(t, reader.IsWriter())
	assert.Equal(t, position(t, a, id), position(t, b, id), "full state applied on spawn")

	run(a, b, link, 60)

	got, want := position(t, b, id), position(t, a, id)
	assert.Greater(t, got.X, 100.0)
	assert.InDelta(t, want.X, got.X, 20, "reader trails the writer by a few frames")
	assert.InDelta(t, want.Y, got.Y, 0.01)

	stats := reader.Stats()
	assert.Greater(t, stats.Received, uint64(20))
	assert.Zero(t, stats.Extrapolated)
}

func TestHostDropsFramesForUnknownEntities(t *testing.T) {
	_, b, _ := newPair(t)

	w := bitstream.NewWriter(8)
	protocol.WriteHeader(w, protocol.Header{FrameID: 3, EntityID: 99})
	err := b.host.Receive(protocol.EncodeFrame(nil, w.Bytes()))
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestHostDespawnPropagates(t *testing.T) {
	a, b, link := newPair(t)
	factory.CreateArena(a.host.ECS(), 400, 200)
	id := spawnDrone(t, a, 50, 50, 1, 1)
	announce(t, a, id)
	link.Deliver()
	require.Equal(t, 1, b.host.Registry().Len())

	require.NoError(t, a.host.Despawn(id))
	require.NoError(t, a.host.Broadcast(messages.Despawn{NetworkID: id}))
	link.Deliver()

	assert.Zero(t, a.host.Registry().Len())
	assert.Zero(t, b.host.Registry().Len())
	assert.ErrorIs(t, a.host.Despawn(id), ErrUnknownEntity)
}

func TestHostAuthorityHandOver(t *testing.T) {
	a, b, link := newPair(t)
	entry, err := a.host.Spawn(archetypes.KindAvatar, 0, 0, netconfig.AuthorityMaster)
	require.NoError(t, err)
	id := *esync.GetNetworkId(entry)
	announce(t, a, id)
	link.Deliver()

	run(a, b, link, 10)
	require.NoError(t, a.host.ChangeAuthority(id, netconfig.AuthorityOwner, peer.Peer))
	link.Deliver()

	_, onA, err := a.host.Registry().Resolve(id)
	require.NoError(t, err)
	_, onB, err := b.host.Registry().Resolve(id)
	require.NoError(t, err)
	assert.False(t, onA.IsWriter())
	assert.True(t, onB.IsWriter())

	// The peer now steers the avatar and the master plays it back.
	run(a, b, link, 30)
	assert.Greater(t, onA.Stats().Received, uint64(0))
	assert.Equal(t, peer.Peer, onA.Owner())
}

func TestHostSpawnValidation(t *testing.T) {
	a, _, _ := newPair(t)

	_, err := a.host.Spawn("tank", 0, 0, netconfig.AuthorityMaster)
	assert.Error(t, err)

	_, err = a.host.Spawn(archetypes.KindDrone, 7, 0, netconfig.AuthorityMaster)
	require.NoError(t, err)
	_, err = a.host.Spawn(archetypes.KindDrone, 7, 0, netconfig.AuthorityMaster)
	assert.ErrorIs(t, err, ErrDuplicateEntity)

	entry, err := a.host.Spawn(archetypes.KindAvatar, 0, 0, netconfig.AuthorityMaster)
	require.NoError(t, err)
	assert.Equal(t, esync.NetworkId(8), *esync.GetNetworkId(entry), "allocation continues after the highest id")
}

func TestHostSnapshot(t *testing.T) {
	a, b, link := newPair(t)
	factory.CreateArena(a.host.ECS(), 400, 200)
	id := spawnDrone(t, a, 60, 60, 1, 0)
	announce(t, a, id)
	link.Deliver()
	run(a, b, link, 20)

	snap := b.host.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint32(id), snap[0].ID)
	assert.Equal(t, archetypes.KindDrone, snap[0].Kind)
	assert.Equal(t, "master", snap[0].Authority)
	assert.False(t, snap[0].Writer)
	assert.Positive(t, snap[0].Received)

	snap = a.host.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Writer)
}

func TestDroneBouncesOffWalls(t *testing.T) {
	a, b, link := newPair(t)
	factory.CreateArena(a.host.ECS(), 100, 100)
	ox, oy := factory.ArenaOrigin()
	id := spawnDrone(t, a, ox+80, oy+40, 4, 0)

	run(a, b, link, 20)

	entry, _, err := a.host.Registry().Resolve(id)
	require.NoError(t, err)
	vel := netcomponents.NetVelocity.Get(entry)
	pos := netcomponents.NetPosition.Get(entry)
	assert.Less(t, vel.SpeedX, 0.0, "reflected by the right wall")
	assert.LessOrEqual(t, pos.X+8, ox+100)
	assert.Equal(t, 1, components.Drone.Get(entry).Bounces)
	assert.Less(t, netcomponents.NetVitals.Get(entry).Health, 100)
}
