package core

import (
	"sync"
	"time"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/leap-fish/necs/esync"
)

// PeerInfo describes a joined peer.
type PeerInfo struct {
	ID       netconfig.PeerID `json:"id"`
	Name     string           `json:"name"`
	Avatar   esync.NetworkId  `json:"avatar"`
	JoinedAt time.Time        `json:"joinedAt"`
	LastSeen time.Time        `json:"lastSeen"`
}

type peerRecord struct {
	PeerInfo
	conn *peerConn
}

// PeerRegistry is an in-memory store of joined peers with idle expiry.
type PeerRegistry struct {
	mu     sync.RWMutex
	peers  map[netconfig.PeerID]*peerRecord
	clock  clock.Clock
	ttl    time.Duration
	stopCh chan struct{}
	once   sync.Once
}

func NewPeerRegistry(clk clock.Clock, ttl time.Duration) *PeerRegistry {
	return &PeerRegistry{
		peers:  make(map[netconfig.PeerID]*peerRecord),
		clock:  clk,
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
}

func (r *PeerRegistry) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

func (r *PeerRegistry) Add(p *peerConn) {
	now := r.clock.Now()
	r.mu.Lock()
	r.peers[p.id] = &peerRecord{
		PeerInfo: PeerInfo{
			ID:       p.id,
			Name:     p.name,
			Avatar:   p.avatar,
			JoinedAt: now,
			LastSeen: now,
		},
		conn: p,
	}
	r.mu.Unlock()
}

func (r *PeerRegistry) Remove(id netconfig.PeerID) (*peerConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	delete(r.peers, id)
	return rec.conn, true
}

// Touch records activity from id.
func (r *PeerRegistry) Touch(id netconfig.PeerID) {
	r.mu.Lock()
	if rec, ok := r.peers[id]; ok {
		rec.LastSeen = r.clock.Now()
	}
	r.mu.Unlock()
}

func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *PeerRegistry) List() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]PeerInfo, 0, len(r.peers))
	for _, rec := range r.peers {
		result = append(result, rec.PeerInfo)
	}
	return result
}

// Each visits every peer except skip. fn must not call back into the registry.
func (r *PeerRegistry) Each(skip netconfig.PeerID, fn func(p *peerConn)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, rec := range r.peers {
		if id != skip {
			fn(rec.conn)
		}
	}
}

func (r *PeerRegistry) Get(id netconfig.PeerID) (*peerConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return rec.conn, true
}

// expired returns peers that have been silent for longer than the ttl.
func (r *PeerRegistry) expired() []*peerConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.clock.Now()
	var out []*peerConn
	for _, rec := range r.peers {
		if now.Sub(rec.LastSeen) >= r.ttl {
			out = append(out, rec.conn)
		}
	}
	return out
}

// cleanupLoop closes idle peers every interval until Stop.
func (r *PeerRegistry) cleanupLoop(interval time.Duration, kick func(p *peerConn, idle time.Duration)) {
	ticker := r.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			for _, p := range r.expired() {
				kick(p, r.ttl)
			}
		}
	}
}
