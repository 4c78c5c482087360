package tags

import "github.com/yohamta/donburi"

var (
	Avatar = donburi.NewTag().SetName("Avatar")
	Drone  = donburi.NewTag().SetName("Drone")
	Wall   = donburi.NewTag().SetName("Wall")
)

// Resolv tags for collision
const (
	ResolvSolid = "solid"
	ResolvDrone = "drone"
)
