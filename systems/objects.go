package systems

import (
	"github.com/automoto/framesync/components"
	"github.com/automoto/framesync/shared/netcomponents"
	"github.com/yohamta/donburi/ecs"
)

// UpdateObjects keeps the collision bodies of entities this process only
// reads on their rendered position, so a body is in place if write authority
// moves here.
func UpdateObjects(ecs *ecs.ECS) {
	for e := range components.Object.Iter(ecs.World) {
		obj := components.Object.Get(e)
		if obj.Object == nil || !e.HasComponent(components.Sync) || writes(e) {
			continue
		}
		pos := netcomponents.NetPosition.Get(e)
		obj.X, obj.Y = pos.X, pos.Y
		obj.Update()
	}
}
