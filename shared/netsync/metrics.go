package netsync

import "github.com/automoto/framesync/shared/framering"

// Metrics receives playback events. Implementations must be cheap; calls happen
// on the simulation thread once per tick per entity.
type Metrics interface {
	Hold()
	CatchUp()
	LateFrame()
	Resync()
	FramingDesync()
	Rotated(src framering.Source)
	Buffered(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) Hold()                    {}
func (NopMetrics) CatchUp()                 {}
func (NopMetrics) LateFrame()               {}
func (NopMetrics) Resync()                  {}
func (NopMetrics) FramingDesync()           {}
func (NopMetrics) Rotated(framering.Source) {}
func (NopMetrics) Buffered(int)             {}
