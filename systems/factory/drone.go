package factory

import (
	"github.com/automoto/framesync/components"
	"github.com/automoto/framesync/shared/netcomponents"
	"github.com/automoto/framesync/tags"
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// AttachDroneBody gives a spawned drone its collision body, position and
// velocity. Only the writer of a drone needs a body.
func AttachDroneBody(ecs *ecs.ECS, drone *donburi.Entry, x, y, size, speedX, speedY float64) {
	obj := resolv.NewObject(x, y, size, size, tags.ResolvDrone)
	obj.SetShape(resolv.NewRectangle(0, 0, size, size))
	obj.Data = drone

	components.Object.SetValue(drone, components.ObjectData{Object: obj})
	if spaceEntry, ok := components.Space.First(ecs.World); ok {
		components.Space.Get(spaceEntry).Add(obj)
	}

	netcomponents.NetPosition.SetValue(drone, netcomponents.NetPositionData{X: x, Y: y})
	netcomponents.NetVelocity.SetValue(drone, netcomponents.NetVelocityData{SpeedX: speedX, SpeedY: speedY})
}
