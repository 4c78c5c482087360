package messages

import (
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

// JoinRequest is sent by a peer after connecting to request joining the session.
type JoinRequest struct {
	Version    string `codec:"version"`
	PlayerName string `codec:"playerName"`
}

// JoinAccepted is sent by the host when a peer's join request is accepted. It
// carries everything the peer needs to run a compatible frame clock.
type JoinAccepted struct {
	Peer       netconfig.PeerID  `codec:"peer"`
	NetworkID  esync.NetworkId   `codec:"networkId"` // The peer's own avatar
	ServerName string            `codec:"serverName"`
	TickRate   int               `codec:"tickRate"`
	SendEveryX int               `codec:"sendEveryX"`
	FrameID    netconfig.FrameID `codec:"frameId"` // Host frame at the time of acceptance
}

// JoinRejected is sent by the host when a peer's join request is rejected.
type JoinRejected struct {
	Reason string `codec:"reason"`
}
