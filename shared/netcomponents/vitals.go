package netcomponents

import (
	"github.com/automoto/framesync/shared/bitstream"
	"github.com/yohamta/donburi"
)

// Mode is a coarse behaviour state shown by remote peers.
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeMoving
	ModeStunned
	ModeDown
)

var modeNames = [...]string{"idle", "moving", "stunned", "down"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// NetVitalsData is discrete per-entity state.
type NetVitalsData struct {
	Mode      Mode
	Direction int // -1 left, 1 right
	Health    int
}

var NetVitals = donburi.NewComponentType[NetVitalsData]()

const (
	healthBits = 10
	modeBits   = 3
	MaxHealth  = 1<<healthBits - 1
)

// VitalsFrame is one frame of NetVitalsData. Its fields are discrete, so
// interpolation snaps to the end value and extrapolation holds.
type VitalsFrame struct {
	NetVitalsData
	changed bool
}

func NewVitalsFrame() *VitalsFrame { return &VitalsFrame{} }

func (f *VitalsFrame) CopyFrom(src *VitalsFrame) { *f = *src }
func (f *VitalsFrame) HasChanged() bool          { return f.changed }
func (f *VitalsFrame) SetChanged(c bool)         { f.changed = c }

func (f *VitalsFrame) Equal(o *VitalsFrame) bool {
	return f.NetVitalsData == o.NetVitalsData
}

func (f *VitalsFrame) Interpolate(_, end *VitalsFrame, _ float64) {
	f.NetVitalsData = end.NetVitalsData
	f.changed = true
}

func (f *VitalsFrame) Extrapolate(_, snap *VitalsFrame) {
	f.NetVitalsData = snap.NetVitalsData
	f.changed = true
}

func (f *VitalsFrame) Quantize() {
	f.Health = min(max(f.Health, 0), MaxHealth)
	if f.Direction < 0 {
		f.Direction = -1
	} else {
		f.Direction = 1
	}
	if int(f.Mode) >= 1<<modeBits {
		f.Mode = ModeIdle
	}
}

func (f *VitalsFrame) Encode(w *bitstream.Writer) {
	w.WriteBits(uint64(f.Mode), modeBits)
	w.WriteBool(f.Direction < 0)
	w.WriteBits(uint64(min(max(f.Health, 0), MaxHealth)), healthBits)
}

func (f *VitalsFrame) Decode(r *bitstream.Reader) {
	f.Mode = Mode(r.ReadBits(modeBits))
	f.Direction = 1
	if r.ReadBool() {
		f.Direction = -1
	}
	f.Health = int(r.ReadBits(healthBits))
}
