package components

import (
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// AvatarData marks a peer's avatar. The owning peer steers it.
type AvatarData struct {
	Peer  netconfig.PeerID
	Name  string
	Phase float64 // Progress along the scripted path, in radians
}

var Avatar = donburi.NewComponentType[AvatarData]()

// DroneData is host-simulated motion state.
type DroneData struct {
	StunTicks int // Ticks left in ModeStunned after a wall hit
	Bounces   int
}

var Drone = donburi.NewComponentType[DroneData]()
