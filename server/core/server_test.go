package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/automoto/framesync/archetypes"
	"github.com/automoto/framesync/config"
	"github.com/automoto/framesync/shared/bitstream"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/automoto/framesync/systems"
	"github.com/leap-fish/necs/esync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDrones = 3

func testOptions() Options {
	net := config.Net
	net.Version = "test"
	net.ServerName = "test-server"
	sim := config.Sim
	sim.Drones = testDrones
	return Options{Net: net, Sim: sim, Sync: config.Sync}
}

func startServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Loop().Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = s.Close()
		ts.Close()
	})
	return s, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func joinPeer(t *testing.T, ts *httptest.Server, name, version string) (*Peer, context.CancelFunc) {
	t.Helper()
	net := config.Net
	net.Version = version
	p := NewPeer(PeerOptions{Net: net, Sync: config.Sync, Name: name})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.Join(ctx, wsURL(ts))
	require.NoError(t, err)
	go func() { _ = p.Run(ctx) }()
	t.Cleanup(cancel)
	return p, cancel
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func byKind(stats []systems.EntityStats, kind string) []systems.EntityStats {
	var out []systems.EntityStats
	for _, s := range stats {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func TestServerJoinReplicatesBothWays(t *testing.T) {
	_, ts := startServer(t, testOptions())

	net := config.Net
	net.Version = "test"
	p := NewPeer(PeerOptions{Net: net, Sync: config.Sync, Name: "alice"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accepted, err := p.Join(ctx, wsURL(ts))
	require.NoError(t, err)
	assert.EqualValues(t, 1, accepted.Peer)
	assert.EqualValues(t, testDrones+1, accepted.NetworkID)
	assert.Equal(t, "test-server", accepted.ServerName)
	assert.Equal(t, config.Sim.TickRate, accepted.TickRate)
	assert.Equal(t, config.Sim.SendEveryX, accepted.SendEveryX)
	go func() { _ = p.Run(ctx) }()

	// Drones flow from the server to the peer.
	require.Eventually(t, func() bool {
		drones := byKind(p.Host().Snapshot(), archetypes.KindDrone)
		if len(drones) != testDrones {
			return false
		}
		for _, d := range drones {
			if d.Writer || d.Received == 0 {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	avatars := byKind(p.Host().Snapshot(), archetypes.KindAvatar)
	require.Len(t, avatars, 1)
	assert.True(t, avatars[0].Writer, "the peer writes its own avatar")

	// The avatar flows from the peer to the server.
	require.Eventually(t, func() bool {
		var stats []systems.EntityStats
		getJSON(t, ts.URL+"/entities", &stats)
		avatars := byKind(stats, archetypes.KindAvatar)
		return len(avatars) == 1 && !avatars[0].Writer && avatars[0].Received > 0
	}, 5*time.Second, 20*time.Millisecond)

	var peers []PeerInfo
	getJSON(t, ts.URL+"/peers", &peers)
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers[0].Name)
	assert.Equal(t, accepted.NetworkID, peers[0].Avatar)
}

func TestServerRejectsVersionMismatch(t *testing.T) {
	_, ts := startServer(t, testOptions())

	net := config.Net
	net.Version = "old"
	p := NewPeer(PeerOptions{Net: net, Name: "bob"})
	_, err := p.Join(context.Background(), wsURL(ts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version mismatch")
}

func TestServerRejectsWhenFull(t *testing.T) {
	opts := testOptions()
	opts.Net.MaxPeers = 1
	s, ts := startServer(t, opts)

	joinPeer(t, ts, "alice", "test")
	require.Eventually(t, func() bool { return s.Peers().Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	net := config.Net
	net.Version = "test"
	p := NewPeer(PeerOptions{Net: net, Name: "bob"})
	_, err := p.Join(context.Background(), wsURL(ts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server full")
}

func TestServerDespawnsAvatarOnLeave(t *testing.T) {
	s, ts := startServer(t, testOptions())

	_, leaveAlice := joinPeer(t, ts, "alice", "test")
	require.Eventually(t, func() bool { return s.Peers().Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	bob, _ := joinPeer(t, ts, "bob", "test")

	require.Eventually(t, func() bool {
		return len(byKind(bob.Host().Snapshot(), archetypes.KindAvatar)) == 2
	}, 5*time.Second, 20*time.Millisecond)

	leaveAlice()
	require.Eventually(t, func() bool {
		return s.Peers().Count() == 1 &&
			len(byKind(bob.Host().Snapshot(), archetypes.KindAvatar)) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func frameFor(id esync.NetworkId) []byte {
	w := bitstream.NewWriter(8)
	protocol.WriteHeader(w, protocol.Header{FrameID: 7, EntityID: uint32(id)})
	w.WriteBits(1, 8)
	return w.Bytes()
}

func TestFramesOnlyAcceptedFromWriter(t *testing.T) {
	s, err := NewServer(testOptions())
	require.NoError(t, err)

	alice := newPeerConn(1, "alice", nil, 64, zap.NewNop())
	bob := newPeerConn(2, "bob", nil, 64, zap.NewNop())
	s.handleJoin(alice)
	s.handleJoin(bob)
	require.EqualValues(t, testDrones+1, alice.avatar)
	require.EqualValues(t, testDrones+2, bob.avatar)

	drone := esync.NetworkId(1)
	tests := []struct {
		name string
		from *peerConn
		id   esync.NetworkId
		want bool
	}{
		{"own avatar", alice, alice.avatar, true},
		{"other avatar", alice, bob.avatar, false},
		{"master drone", alice, drone, false},
		{"unknown entity", bob, 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.mayWrite(tt.from, frameFor(tt.id)))
		})
	}
	assert.False(t, s.mayWrite(alice, []byte{0x01}), "short header")

	require.NoError(t, s.host.ChangeAuthority(drone, netconfig.AuthorityOwner, bob.id))
	assert.True(t, s.mayWrite(bob, frameFor(drone)))
	assert.False(t, s.mayWrite(alice, frameFor(drone)))

	s.handleLeave(alice)
	assert.False(t, s.mayWrite(alice, frameFor(alice.avatar)))
}

func TestHTTPStatus(t *testing.T) {
	s, err := NewServer(testOptions())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var status statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "test-server", status.Name)
	assert.Zero(t, status.Peers)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "framesync_peers_connected")
}
