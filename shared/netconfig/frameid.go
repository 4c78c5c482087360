package netconfig

import "fmt"

// FrameID is a cyclic ring index in [0, FrameCount). It is not a timestamp:
// every peer reinterprets it against its own ring.
type FrameID int

// Wrap folds any integer onto the ring.
func Wrap(i int) FrameID {
	i %= FrameCount
	if i < 0 {
		i += FrameCount
	}
	return FrameID(i)
}

// Valid reports whether the id is a ring index.
func (f FrameID) Valid() bool {
	return f >= 0 && f < FrameCount
}

// Add moves n slots forward (or backward for negative n), wrapping.
func (f FrameID) Add(n int) FrameID {
	return Wrap(int(f) + n)
}

// Distance is the forward distance from f to other in [0, FrameCount).
func (f FrameID) Distance(other FrameID) int {
	return int(Wrap(int(other) - int(f)))
}

func (f FrameID) String() string {
	return fmt.Sprintf("f%02d", int(f))
}

// SignedOffset returns how far to is ahead of from, folded into
// (-FrameCount/2, FrameCount/2]. A distance of exactly half the ring is
// ambiguous; it is reported as positive.
func SignedOffset(from, to FrameID) int {
	d := from.Distance(to)
	if d > FrameCount/2 {
		d -= FrameCount
	}
	return d
}

// IsFuture reports whether to lies ahead of from. Raw offsets below -halfRange
// are wrapped-around futures; raw positive offsets beyond FrameCount-halfRange
// are wrapped-around pasts. With halfRange == FrameCount/2 this agrees with
// SignedOffset(from, to) > 0.
func IsFuture(from, to FrameID, halfRange int) bool {
	raw := int(to) - int(from)
	if raw > 0 {
		return raw <= FrameCount-halfRange
	}
	return raw < -halfRange
}
