package archetypes

import (
	"github.com/automoto/framesync/components"
	cfg "github.com/automoto/framesync/config"
	"github.com/automoto/framesync/shared/netcomponents"
	"github.com/automoto/framesync/tags"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// Kinds name the synchronized recipes on the wire (messages.FullState.Kind).
const (
	KindAvatar = "avatar"
	KindDrone  = "drone"
)

var (
	Avatar = newArchetype(
		tags.Avatar,
		esync.NetworkIdComponent,
		components.Sync,
		components.Avatar,
		netcomponents.NetPosition,
		netcomponents.NetVelocity,
		netcomponents.NetVitals,
	)
	Drone = newArchetype(
		tags.Drone,
		esync.NetworkIdComponent,
		components.Sync,
		components.Drone,
		components.Object,
		netcomponents.NetPosition,
		netcomponents.NetVelocity,
		netcomponents.NetVitals,
	)
	Space = newArchetype(
		components.Space,
	)
	Wall = newArchetype(
		tags.Wall,
		components.Object,
	)
)

var byKind = map[string]*archetype{
	KindAvatar: Avatar,
	KindDrone:  Drone,
}

// Lookup returns the synchronized archetype for kind.
func Lookup(kind string) (*archetype, bool) {
	a, ok := byKind[kind]
	return a, ok
}

type archetype struct {
	components []donburi.IComponentType
}

func newArchetype(cs ...donburi.IComponentType) *archetype {
	return &archetype{
		components: cs,
	}
}

func (a *archetype) Spawn(ecs *ecs.ECS, cs ...donburi.IComponentType) *donburi.Entry {
	e := ecs.World.Entry(ecs.Create(
		cfg.Default,
		append(a.components, cs...)...,
	))
	return e
}
