package factory

import (
	"github.com/automoto/framesync/archetypes"
	"github.com/automoto/framesync/components"
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

func CreateSpace(ecs *ecs.ECS, width, height, cellWidth, cellHeight int) *donburi.Entry {
	space := archetypes.Space.Spawn(ecs)
	spaceData := resolv.NewSpace(width, height, cellWidth, cellHeight)
	components.Space.Set(space, spaceData)
	return space
}

const (
	arenaCell = 16
	wallDepth = 32
)

// CreateArena creates the collision space with solid walls just outside every
// edge of a width x height area.
func CreateArena(ecs *ecs.ECS, width, height float64) *donburi.Entry {
	space := CreateSpace(ecs,
		int(width)+2*wallDepth+arenaCell,
		int(height)+2*wallDepth+arenaCell,
		arenaCell, arenaCell)

	// The space starts at the origin, so the arena is offset by the wall depth.
	CreateWall(ecs, 0, 0, width+2*wallDepth, wallDepth)
	CreateWall(ecs, 0, height+wallDepth, width+2*wallDepth, wallDepth)
	CreateWall(ecs, 0, wallDepth, wallDepth, height)
	CreateWall(ecs, width+wallDepth, wallDepth, wallDepth, height)
	return space
}

// ArenaOrigin is the top-left corner of the playable area inside the walls.
func ArenaOrigin() (float64, float64) {
	return wallDepth, wallDepth
}
