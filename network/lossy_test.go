package network

import (
	"testing"
	"time"

	"github.com/automoto/framesync/shared/messages"
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	from []netconfig.PeerID
	msgs [][]byte
}

func (in *inbox) handle(from netconfig.PeerID, msg []byte) {
	in.from = append(in.from, from)
	in.msgs = append(in.msgs, msg)
}

func frame(b byte) []byte {
	return protocol.EncodeFrame(nil, []byte{b})
}

func TestLossyLinkDeliversAfterLatency(t *testing.T) {
	mock := clock.NewMock()
	link := NewLossyLink(LinkConfig{Master: 1, Latency: 50 * time.Millisecond, Clock: mock})
	var a, b inbox
	ta := link.Attach(1, a.handle)
	link.Attach(2, b.handle)

	payload := frame(7)
	require.NoError(t, ta.Send(payload, 8, TargetAll, nil))
	payload[1] = 0xFF // the link must have copied it

	assert.Zero(t, link.Deliver())
	mock.Add(49 * time.Millisecond)
	assert.Zero(t, link.Deliver())
	mock.Add(time.Millisecond)
	assert.Equal(t, 1, link.Deliver())

	require.Len(t, b.msgs, 1)
	assert.Equal(t, frame(7), b.msgs[0])
	assert.Equal(t, netconfig.PeerID(1), b.from[0])
	assert.Empty(t, a.msgs, "no loopback")
}

func TestLossyLinkTargets(t *testing.T) {
	mock := clock.NewMock()
	link := NewLossyLink(LinkConfig{Master: 1, Clock: mock})
	var a, b, c inbox
	ta := link.Attach(1, a.handle)
	tb := link.Attach(2, b.handle)
	link.Attach(3, c.handle)

	require.NoError(t, tb.Send(frame(1), 8, TargetMaster, nil))
	require.NoError(t, ta.Send(frame(2), 8, TargetPeers, []netconfig.PeerID{3}))
	require.NoError(t, ta.Send(frame(3), 8, TargetMaster, nil))
	link.Deliver()

	assert.Len(t, a.msgs, 1)
	assert.Empty(t, b.msgs)
	assert.Len(t, c.msgs, 1)
}

func TestLossyLinkDropsFramesButNotControl(t *testing.T) {
	mock := clock.NewMock()
	link := NewLossyLink(LinkConfig{Master: 1, Loss: 1, Clock: mock})
	var b inbox
	ta := link.Attach(1, func(netconfig.PeerID, []byte) {})
	link.Attach(2, b.handle)

	ctrl, err := protocol.EncodeControl(messages.Despawn{NetworkID: 4})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, ta.Send(frame(byte(i)), 8, TargetAll, nil))
	}
	require.NoError(t, ta.Send(ctrl, 0, TargetAll, nil))
	link.Deliver()

	require.Len(t, b.msgs, 1)
	assert.Equal(t, ctrl, b.msgs[0])
	st := link.Stats()
	assert.Equal(t, 11, st.Sent)
	assert.Equal(t, 10, st.Dropped)
	assert.Equal(t, 1, st.Delivered)
}

func TestLossyLinkIsReproducible(t *testing.T) {
	run := func() []byte {
		mock := clock.NewMock()
		link := NewLossyLink(LinkConfig{
			Master:  1,
			Loss:    0.3,
			Latency: 20 * time.Millisecond,
			Jitter:  40 * time.Millisecond,
			Seed:    42,
			Clock:   mock,
		})
		var got []byte
		ta := link.Attach(1, func(netconfig.PeerID, []byte) {})
		link.Attach(2, func(_ netconfig.PeerID, msg []byte) { got = append(got, msg[1]) })
		for i := 0; i < 100; i++ {
			require.NoError(t, ta.Send(frame(byte(i)), 8, TargetAll, nil))
			mock.Add(10 * time.Millisecond)
			link.Deliver()
		}
		mock.Add(time.Second)
		link.Deliver()
		return got
	}
	first := run()
	assert.Equal(t, first, run())
	assert.Less(t, len(first), 100)
	assert.Greater(t, len(first), 50)
}

func TestLossyLinkDetach(t *testing.T) {
	mock := clock.NewMock()
	link := NewLossyLink(LinkConfig{Master: 1, Latency: time.Millisecond, Clock: mock})
	var b inbox
	ta := link.Attach(1, func(netconfig.PeerID, []byte) {})
	link.Attach(2, b.handle)

	require.NoError(t, ta.Send(frame(1), 8, TargetAll, nil))
	link.Detach(2)
	mock.Add(time.Millisecond)
	link.Deliver()
	assert.Empty(t, b.msgs)
	assert.Zero(t, link.Pending())
}
