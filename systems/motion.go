package systems

import (
	"math"

	"github.com/automoto/framesync/components"
	cfg "github.com/automoto/framesync/config"
	"github.com/automoto/framesync/shared/netcomponents"
	"github.com/automoto/framesync/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

const (
	stunTicks      = 20
	bounceDamage   = 7
	avatarRadius   = 0.35 // Fraction of the smaller arena side
	avatarRotation = 0.02 // Radians per tick
)

// writes reports whether this process simulates entry.
func writes(e *donburi.Entry) bool {
	sync := components.Sync.Get(e)
	return sync.Entity != nil && sync.Entity.IsWriter() && sync.Entity.Enabled()
}

// UpdateDrones moves host-written drones in straight lines and bounces them
// off solid walls. Every bounce stuns the drone briefly and costs health.
func UpdateDrones(ecs *ecs.ECS) {
	tags.Drone.Each(ecs.World, func(e *donburi.Entry) {
		if !writes(e) {
			return
		}
		obj := components.Object.Get(e)
		if obj.Object == nil {
			return
		}
		vel := netcomponents.NetVelocity.Get(e)
		drone := components.Drone.Get(e)

		hit := false
		dx := vel.SpeedX
		if dx != 0 {
			if check := obj.Check(dx, 0, tags.ResolvSolid); check != nil {
				if solids := check.ObjectsByTags(tags.ResolvSolid); len(solids) > 0 {
					dx = check.ContactWithObject(solids[0]).X()
					vel.SpeedX = -vel.SpeedX
					hit = true
				}
			}
			obj.X += dx
		}

		dy := vel.SpeedY
		if dy != 0 {
			if check := obj.Check(0, dy, tags.ResolvSolid); check != nil {
				if solids := check.ObjectsByTags(tags.ResolvSolid); len(solids) > 0 {
					dy = check.ContactWithObject(solids[0]).Y()
					vel.SpeedY = -vel.SpeedY
					hit = true
				}
			}
			obj.Y += dy
		}
		obj.Update()

		pos := netcomponents.NetPosition.Get(e)
		pos.X, pos.Y = obj.X, obj.Y

		vitals := netcomponents.NetVitals.Get(e)
		if hit {
			drone.Bounces++
			drone.StunTicks = stunTicks
			vitals.Health -= bounceDamage
			if vitals.Health <= 0 {
				vitals.Health = defaultHealth
			}
		}
		switch {
		case drone.StunTicks > 0:
			drone.StunTicks--
			vitals.Mode = netcomponents.ModeStunned
		default:
			vitals.Mode = netcomponents.ModeMoving
		}
		vitals.Direction = direction(vel.SpeedX, vitals.Direction)
	})
}

// UpdateAvatars steers avatars this process owns around a circle centered in
// the arena, standing in for player input.
func UpdateAvatars(ecs *ecs.ECS) {
	cx, cy := cfg.Sim.Width/2, cfg.Sim.Height/2
	r := math.Min(cfg.Sim.Width, cfg.Sim.Height) * avatarRadius

	tags.Avatar.Each(ecs.World, func(e *donburi.Entry) {
		if !writes(e) {
			return
		}
		avatar := components.Avatar.Get(e)
		pos := netcomponents.NetPosition.Get(e)
		vel := netcomponents.NetVelocity.Get(e)
		vitals := netcomponents.NetVitals.Get(e)

		avatar.Phase = math.Mod(avatar.Phase+avatarRotation, 2*math.Pi)
		x := cx + r*math.Cos(avatar.Phase)
		y := cy + r*math.Sin(avatar.Phase)
		vel.SpeedX, vel.SpeedY = x-pos.X, y-pos.Y
		pos.X, pos.Y = x, y

		vitals.Mode = netcomponents.ModeMoving
		vitals.Direction = direction(vel.SpeedX, vitals.Direction)
	})
}

func direction(speedX float64, current int) int {
	switch {
	case speedX > 0:
		return 1
	case speedX < 0:
		return -1
	}
	return current
}
