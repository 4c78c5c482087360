package messages

import (
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

// FullState is an out-of-band snapshot of every synchronized component of an
// entity. Readers spawn unknown entities from it and collapse the playback
// history of known ones onto it.
type FullState struct {
	NetworkID esync.NetworkId     `codec:"networkId"`
	Kind      string              `codec:"kind"`
	Owner     netconfig.PeerID    `codec:"owner"`
	Authority netconfig.Authority `codec:"authority"`
	FrameID   netconfig.FrameID   `codec:"frameId"` // Writer frame the state was captured at
	Bits      int                 `codec:"bits"`
	Payload   []byte              `codec:"payload"`
}

// AuthorityChange moves write authority for an entity.
type AuthorityChange struct {
	NetworkID esync.NetworkId     `codec:"networkId"`
	Owner     netconfig.PeerID    `codec:"owner"`
	Authority netconfig.Authority `codec:"authority"`
}

// Despawn is broadcast when an entity is removed.
type Despawn struct {
	NetworkID esync.NetworkId `codec:"networkId"`
}
