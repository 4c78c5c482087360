package core

import (
	"testing"
	"time"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPeer(id netconfig.PeerID, name string) *peerConn {
	return newPeerConn(id, name, nil, 4, zap.NewNop())
}

func TestPeerRegistry(t *testing.T) {
	mock := clock.NewMock()
	reg := NewPeerRegistry(mock, 10*time.Second)

	reg.Add(testPeer(1, "alice"))
	mock.Add(6 * time.Second)
	reg.Add(testPeer(2, "bob"))
	assert.Equal(t, 2, reg.Count())

	var seen []netconfig.PeerID
	reg.Each(1, func(p *peerConn) { seen = append(seen, p.id) })
	assert.Equal(t, []netconfig.PeerID{2}, seen)

	mock.Add(5 * time.Second)
	expired := reg.expired()
	require.Len(t, expired, 1)
	assert.Equal(t, "alice", expired[0].name)

	reg.Touch(1)
	assert.Empty(t, reg.expired())

	p, ok := reg.Remove(2)
	require.True(t, ok)
	assert.Equal(t, "bob", p.name)
	_, ok = reg.Remove(2)
	assert.False(t, ok)
	_, ok = reg.Get(2)
	assert.False(t, ok)

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, mock.Now(), list[0].LastSeen)
}

func TestPeerConnDropsFramesWhenFull(t *testing.T) {
	p := testPeer(1, "alice")
	for i := 0; i < 4; i++ {
		assert.True(t, p.enqueue([]byte{1}, true))
	}
	assert.False(t, p.enqueue([]byte{1}, true))

	select {
	case <-p.stop:
		t.Fatal("a dropped frame must not close the peer")
	default:
	}

	// A control message that does not fit closes the connection.
	assert.False(t, p.enqueue([]byte{2}, false))
	<-p.stop
	assert.False(t, p.enqueue([]byte{1}, true))
}
