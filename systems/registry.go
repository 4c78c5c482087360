package systems

import (
	"errors"
	"fmt"

	"github.com/automoto/framesync/components"
	"github.com/automoto/framesync/shared/netsync"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
	"github.com/yohamta/donburi/query"
)

var (
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrDuplicateEntity = errors.New("entity already registered")
)

var syncedQuery = query.NewQuery(filter.Contains(esync.NetworkIdComponent, components.Sync))

// Registry resolves network ids to synchronized entries of a donburi world.
// Network id 0 is reserved; it is the value of a freshly spawned entry.
type Registry struct {
	world donburi.World
	ids   map[esync.NetworkId]donburi.Entity
}

func NewRegistry(world donburi.World) *Registry {
	return &Registry{
		world: world,
		ids:   make(map[esync.NetworkId]donburi.Entity),
	}
}

// Register binds entry to id and to the sync entity replicating it. The entry
// must carry esync.NetworkIdComponent and components.Sync.
func (r *Registry) Register(entry *donburi.Entry, id esync.NetworkId, kind string, e *netsync.Entity) error {
	if id == 0 {
		return fmt.Errorf("register: network id 0 is reserved")
	}
	if _, ok := r.ids[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateEntity, id)
	}
	if other := esync.FindByNetworkId(r.world, id); r.world.Valid(other) && other != entry.Entity() {
		return fmt.Errorf("%w: %d", ErrDuplicateEntity, id)
	}
	esync.NetworkIdComponent.SetValue(entry, id)
	components.Sync.SetValue(entry, components.SyncData{Entity: e, Kind: kind})
	r.ids[id] = entry.Entity()
	return nil
}

// Resolve returns the entry and sync entity registered under id.
func (r *Registry) Resolve(id esync.NetworkId) (*donburi.Entry, *netsync.Entity, error) {
	ent, ok := r.ids[id]
	if !ok || !r.world.Valid(ent) {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	entry := r.world.Entry(ent)
	return entry, components.Sync.Get(entry).Entity, nil
}

// Remove unregisters id and removes its entry from the world.
func (r *Registry) Remove(id esync.NetworkId) error {
	ent, ok := r.ids[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	delete(r.ids, id)
	if r.world.Valid(ent) {
		r.world.Remove(ent)
	}
	return nil
}

func (r *Registry) Len() int { return len(r.ids) }

// Each visits every registered entry.
func (r *Registry) Each(fn func(id esync.NetworkId, entry *donburi.Entry, e *netsync.Entity)) {
	syncedQuery.Each(r.world, func(entry *donburi.Entry) {
		id := esync.GetNetworkId(entry)
		if id == nil {
			return
		}
		if _, ok := r.ids[*id]; !ok {
			return
		}
		fn(*id, entry, components.Sync.Get(entry).Entity)
	})
}
