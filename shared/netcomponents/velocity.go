package netcomponents

import "github.com/yohamta/donburi"

// NetVelocityData is the live velocity in world units per frame.
type NetVelocityData struct {
	SpeedX, SpeedY float64
}

var NetVelocity = donburi.NewComponentType[NetVelocityData]()
