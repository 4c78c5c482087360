package systems

import (
	"sync"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

type writerEntry struct {
	authority netconfig.Authority
	owner     netconfig.PeerID
}

// WriterTable mirrors the authority and owner of every registered entity so
// connection goroutines can check who may write an entity without touching
// the world. The host updates it on the loop.
type WriterTable struct {
	mu      sync.RWMutex
	entries map[esync.NetworkId]writerEntry
}

func NewWriterTable() *WriterTable {
	return &WriterTable{entries: make(map[esync.NetworkId]writerEntry)}
}

func (t *WriterTable) Set(id esync.NetworkId, a netconfig.Authority, owner netconfig.PeerID) {
	t.mu.Lock()
	t.entries[id] = writerEntry{authority: a, owner: owner}
	t.mu.Unlock()
}

func (t *WriterTable) Delete(id esync.NetworkId) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// MayWrite reports whether peer holds write authority over id. Unknown ids
// are never writable.
func (t *WriterTable) MayWrite(peer netconfig.PeerID, id esync.NetworkId) bool {
	t.mu.RLock()
	w, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	return netconfig.Role{Peer: peer}.IsWriter(w.authority, w.owner)
}
