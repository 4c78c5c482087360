// Package network moves frame datagrams and control envelopes between peers.
//
// Transport is the send primitive the sync host writes through. Two
// implementations live here: Client, a websocket connection to a host, and
// LossyLink, an in-process link with seeded loss, latency and jitter used by
// the simulate command and tests.
package network

import (
	"errors"

	"github.com/automoto/framesync/shared/netconfig"
)

// Target selects who receives a message.
type Target uint8

const (
	TargetAll    Target = iota // Every other peer
	TargetMaster               // The host only
	TargetPeers                // The explicit recipient list
)

func (t Target) String() string {
	switch t {
	case TargetAll:
		return "all"
	case TargetMaster:
		return "master"
	case TargetPeers:
		return "peers"
	}
	return "unknown"
}

var ErrNotConnected = errors.New("network: not connected")

// Transport sends channel-tagged messages (see protocol.EncodeFrame and
// protocol.EncodeControl). bitLength is the meaningful length of a frame
// datagram; byte-oriented transports may ignore it.
//
// Send must not retain payload after it returns.
type Transport interface {
	Ready() bool
	Send(payload []byte, bitLength int, target Target, recipients []netconfig.PeerID) error
}

// Handler receives a message from peer.
type Handler func(from netconfig.PeerID, msg []byte)
