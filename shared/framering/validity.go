package framering

import (
	"github.com/automoto/framesync/shared/netconfig"
	"github.com/bits-and-blooms/bitset"
)

// ValidityRing tracks which ring slots hold data received from the network
// and not yet aged out.
type ValidityRing struct {
	bits *bitset.BitSet
}

// NewValidityRing returns an empty ring of netconfig.FrameCount bits.
func NewValidityRing() *ValidityRing {
	return &ValidityRing{bits: bitset.New(netconfig.FrameCount)}
}

func (v *ValidityRing) Set(id netconfig.FrameID) {
	v.bits.Set(uint(id))
}

func (v *ValidityRing) Clear(id netconfig.FrameID) {
	v.bits.Clear(uint(id))
}

func (v *ValidityRing) IsValid(id netconfig.FrameID) bool {
	return v.bits.Test(uint(id))
}

// Reset clears every slot.
func (v *ValidityRing) Reset() {
	v.bits.ClearAll()
}

// Count returns the number of valid slots in the whole ring.
func (v *ValidityRing) Count() int {
	return int(v.bits.Count())
}

// CountAhead counts valid slots among the window slots strictly ahead of from:
// from+1 through from+window. The scan is O(window).
func (v *ValidityRing) CountAhead(from netconfig.FrameID, window int) int {
	n := 0
	for i := 1; i <= window; i++ {
		if v.bits.Test(uint(from.Add(i))) {
			n++
		}
	}
	return n
}
