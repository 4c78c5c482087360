package network

import (
	"cmp"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/automoto/framesync/shared/protocol"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// LinkConfig shapes a LossyLink. Loss and jitter only apply to frame
// datagrams; control messages are delivered reliably and in order after
// Latency.
type LinkConfig struct {
	Master  netconfig.PeerID
	Loss    float64 // Probability in [0, 1] that a datagram is dropped
	Latency time.Duration
	Jitter  time.Duration // Extra delay drawn uniformly from [0, Jitter)
	Seed    int64
	Clock   clock.Clock
	Logger  *zap.Logger
}

// LinkStats counts datagrams and control messages crossing the link.
type LinkStats struct {
	Sent      int `json:"sent"`
	Dropped   int `json:"dropped"`
	Delivered int `json:"delivered"`
	Reordered int `json:"reordered"`
}

type pending struct {
	due  time.Time
	seq  uint64
	from netconfig.PeerID
	to   netconfig.PeerID
	msg  []byte
}

// LossyLink connects in-process peers through a simulated unreliable network.
// Messages are queued on Send and handed to receivers by Deliver.
type LossyLink struct {
	mu     sync.Mutex
	cfg    LinkConfig
	clock  clock.Clock
	rng    *rand.Rand
	logger *zap.Logger

	peers   map[netconfig.PeerID]Handler
	order   []netconfig.PeerID
	queue   []pending
	seq     uint64
	lastSeq map[netconfig.PeerID]uint64
	stats   LinkStats
}

func NewLossyLink(cfg LinkConfig) *LossyLink {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &LossyLink{
		cfg:     cfg,
		clock:   cfg.Clock,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		logger:  cfg.Logger,
		peers:   make(map[netconfig.PeerID]Handler),
		lastSeq: make(map[netconfig.PeerID]uint64),
	}
}

// Attach registers peer and returns its end of the link.
func (l *LossyLink) Attach(peer netconfig.PeerID, h Handler) Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.peers[peer]; !ok {
		l.order = append(l.order, peer)
	}
	l.peers[peer] = h
	return &endpoint{link: l, peer: peer}
}

// Detach removes peer. Messages already queued for it are discarded.
func (l *LossyLink) Detach(peer netconfig.PeerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peers, peer)
	l.order = slices.DeleteFunc(l.order, func(p netconfig.PeerID) bool { return p == peer })
}

func (l *LossyLink) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Pending returns the number of queued messages.
func (l *LossyLink) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *LossyLink) recipients(from netconfig.PeerID, target Target, explicit []netconfig.PeerID) []netconfig.PeerID {
	switch target {
	case TargetMaster:
		if from == l.cfg.Master {
			return nil
		}
		return []netconfig.PeerID{l.cfg.Master}
	case TargetPeers:
		return explicit
	}
	out := make([]netconfig.PeerID, 0, len(l.order))
	for _, p := range l.order {
		if p != from {
			out = append(out, p)
		}
	}
	return out
}

func (l *LossyLink) send(from netconfig.PeerID, payload []byte, target Target, explicit []netconfig.PeerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reliable := len(payload) > 0 && protocol.Channel(payload[0]) == protocol.ChannelControl
	now := l.clock.Now()
	for _, to := range l.recipients(from, target, explicit) {
		if _, ok := l.peers[to]; !ok {
			continue
		}
		l.stats.Sent++
		delay := l.cfg.Latency
		if !reliable {
			if l.rng.Float64() < l.cfg.Loss {
				l.stats.Dropped++
				continue
			}
			if l.cfg.Jitter > 0 {
				delay += time.Duration(l.rng.Int63n(int64(l.cfg.Jitter)))
			}
		}
		l.seq++
		l.queue = append(l.queue, pending{
			due:  now.Add(delay),
			seq:  l.seq,
			from: from,
			to:   to,
			msg:  slices.Clone(payload),
		})
	}
}

// Deliver hands every message that is due to its receiver, earliest first, and
// returns how many were delivered. Handlers run on the caller's goroutine
// without the link locked, so they may Send.
func (l *LossyLink) Deliver() int {
	l.mu.Lock()
	now := l.clock.Now()
	slices.SortStableFunc(l.queue, func(a, b pending) int {
		if c := a.due.Compare(b.due); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	n := 0
	for n < len(l.queue) && !l.queue[n].due.After(now) {
		n++
	}
	due := slices.Clone(l.queue[:n])
	l.queue = slices.Delete(l.queue, 0, n)

	handlers := make([]Handler, len(due))
	for i, p := range due {
		handlers[i] = l.peers[p.to]
		if p.seq < l.lastSeq[p.to] {
			l.stats.Reordered++
		}
		l.lastSeq[p.to] = max(l.lastSeq[p.to], p.seq)
	}
	l.stats.Delivered += n
	l.mu.Unlock()

	for i, p := range due {
		if handlers[i] != nil {
			handlers[i](p.from, p.msg)
		}
	}
	return n
}

type endpoint struct {
	link *LossyLink
	peer netconfig.PeerID
}

func (e *endpoint) Ready() bool { return true }

func (e *endpoint) Send(payload []byte, _ int, target Target, recipients []netconfig.PeerID) error {
	e.link.send(e.peer, payload, target, recipients)
	return nil
}
