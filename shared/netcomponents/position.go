package netcomponents

import "github.com/yohamta/donburi"

// NetPositionData is the live position of a synchronized entity.
type NetPositionData struct {
	X, Y float64
}

var NetPosition = donburi.NewComponentType[NetPositionData]()
