package components

import (
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"
)

// ObjectData links an entry to its collision body. Readers leave it nil.
type ObjectData struct {
	*resolv.Object
}

var Object = donburi.NewComponentType[ObjectData]()

// Space is the collision space bodies move in. A world has at most one.
var Space = donburi.NewComponentType[resolv.Space]()
