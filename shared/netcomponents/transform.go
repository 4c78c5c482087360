package netcomponents

import (
	"math"

	"github.com/automoto/framesync/shared/bitstream"
	"github.com/tanema/gween/ease"
)

// Fixed-point wire precision of TransformFrame fields.
const (
	PositionScale = 100
	PositionBits  = 26
	VelocityScale = 100
	VelocityBits  = 18
)

// TransformEasing shapes the interpolation parameter of TransformFrame.
// ease.Linear reproduces plain linear interpolation.
var TransformEasing ease.TweenFunc = ease.Linear

// TransformFrame is one frame of position and velocity. Velocity is per
// simulation tick; ticks is how many ticks one frame spans and stays off the
// wire.
type TransformFrame struct {
	X, Y       float64
	VelX, VelY float64
	ticks      int
	changed    bool
}

func NewTransformFrame() *TransformFrame { return &TransformFrame{ticks: 1} }

// TransformFrameSpanning returns a constructor for frames sent every
// ticksPerFrame simulation ticks.
func TransformFrameSpanning(ticksPerFrame int) func() *TransformFrame {
	return func() *TransformFrame { return &TransformFrame{ticks: max(ticksPerFrame, 1)} }
}

func (f *TransformFrame) CopyFrom(src *TransformFrame) { *f = *src }
func (f *TransformFrame) HasChanged() bool             { return f.changed }
func (f *TransformFrame) SetChanged(c bool)            { f.changed = c }

func (f *TransformFrame) Equal(o *TransformFrame) bool {
	return f.X == o.X && f.Y == o.Y && f.VelX == o.VelX && f.VelY == o.VelY
}

// Interpolate blends position along the eased parameter. Velocity is taken
// from end, like other derivative state.
func (f *TransformFrame) Interpolate(start, end *TransformFrame, t float64) {
	e := eased(t)
	f.X = start.X + (end.X-start.X)*e
	f.Y = start.Y + (end.Y-start.Y)*e
	f.VelX = end.VelX
	f.VelY = end.VelY
	f.changed = true
}

// Extrapolate dead-reckons one frame past snap from its velocity. prev is
// used only when snap carries no velocity; its delta already spans a frame.
func (f *TransformFrame) Extrapolate(prev, snap *TransformFrame) {
	ticks := float64(max(snap.ticks, 1))
	dx, dy := snap.VelX*ticks, snap.VelY*ticks
	if snap.VelX == 0 && snap.VelY == 0 {
		dx, dy = snap.X-prev.X, snap.Y-prev.Y
	}
	f.X = snap.X + dx
	f.Y = snap.Y + dy
	f.VelX = snap.VelX
	f.VelY = snap.VelY
	f.changed = true
}

func (f *TransformFrame) Quantize() {
	f.X = quantize(f.X, PositionScale, PositionBits)
	f.Y = quantize(f.Y, PositionScale, PositionBits)
	f.VelX = quantize(f.VelX, VelocityScale, VelocityBits)
	f.VelY = quantize(f.VelY, VelocityScale, VelocityBits)
}

func (f *TransformFrame) Encode(w *bitstream.Writer) {
	w.WriteInt(fixed(f.X, PositionScale, PositionBits), PositionBits)
	w.WriteInt(fixed(f.Y, PositionScale, PositionBits), PositionBits)
	w.WriteInt(fixed(f.VelX, VelocityScale, VelocityBits), VelocityBits)
	w.WriteInt(fixed(f.VelY, VelocityScale, VelocityBits), VelocityBits)
}

func (f *TransformFrame) Decode(r *bitstream.Reader) {
	f.X = float64(r.ReadInt(PositionBits)) / PositionScale
	f.Y = float64(r.ReadInt(PositionBits)) / PositionScale
	f.VelX = float64(r.ReadInt(VelocityBits)) / VelocityScale
	f.VelY = float64(r.ReadInt(VelocityBits)) / VelocityScale
}

func eased(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return float64(TransformEasing(float32(t), 0, 1, 1))
}

// fixed converts v to a scaled integer clamped to a signed field of bits.
func fixed(v, scale float64, bits int) int64 {
	limit := int64(1)<<(bits-1) - 1
	n := int64(math.Round(v * scale))
	if n > limit {
		return limit
	}
	if n < -limit {
		return -limit
	}
	return n
}

func quantize(v, scale float64, bits int) float64 {
	return float64(fixed(v, scale, bits)) / scale
}
