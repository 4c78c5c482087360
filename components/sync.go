package components

import (
	"github.com/automoto/framesync/shared/netsync"
	"github.com/yohamta/donburi"
)

// SyncData links an entry to the netsync entity replicating it.
type SyncData struct {
	Entity *netsync.Entity
	Kind   string
}

var Sync = donburi.NewComponentType[SyncData]()
