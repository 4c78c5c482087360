package systems

import (
	"github.com/automoto/framesync/shared/netcomponents"
	"github.com/automoto/framesync/shared/netsync"
	"github.com/yohamta/donburi"
)

// transformBinding mirrors NetPosition and NetVelocity of an entry.
type transformBinding struct {
	entry *donburi.Entry
}

func (b transformBinding) Capture(dst *netcomponents.TransformFrame) {
	pos := netcomponents.NetPosition.Get(b.entry)
	vel := netcomponents.NetVelocity.Get(b.entry)
	dst.X, dst.Y = pos.X, pos.Y
	dst.VelX, dst.VelY = vel.SpeedX, vel.SpeedY
}

func (b transformBinding) Apply(src *netcomponents.TransformFrame) {
	pos := netcomponents.NetPosition.Get(b.entry)
	vel := netcomponents.NetVelocity.Get(b.entry)
	pos.X, pos.Y = src.X, src.Y
	vel.SpeedX, vel.SpeedY = src.VelX, src.VelY
}

type vitalsBinding struct {
	entry *donburi.Entry
}

func (b vitalsBinding) Capture(dst *netcomponents.VitalsFrame) {
	dst.NetVitalsData = *netcomponents.NetVitals.Get(b.entry)
}

func (b vitalsBinding) Apply(src *netcomponents.VitalsFrame) {
	*netcomponents.NetVitals.Get(b.entry) = src.NetVitalsData
}

// newFanout builds the wire layout shared by every synchronized archetype:
// transform first, then vitals.
func newFanout(entry *donburi.Entry, ticksPerFrame int) (*netsync.Fanout, error) {
	transform := netsync.NewSyncComponent("transform",
		netcomponents.TransformFrameSpanning(ticksPerFrame),
		netsync.Binding[*netcomponents.TransformFrame](transformBinding{entry}))
	vitals := netsync.NewSyncComponent("vitals",
		netcomponents.NewVitalsFrame,
		netsync.Binding[*netcomponents.VitalsFrame](vitalsBinding{entry}))

	return netsync.NewFanoutBuilder().
		AddWithPriority(0, transform).
		Add(vitals).
		Build()
}

const defaultHealth = 100

func setDefaultVitals(entry *donburi.Entry) {
	*netcomponents.NetVitals.Get(entry) = netcomponents.NetVitalsData{
		Mode:      netcomponents.ModeIdle,
		Direction: 1,
		Health:    defaultHealth,
	}
}
