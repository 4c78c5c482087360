// Package metrics exports playback and transport counters to Prometheus.
package metrics

import (
	"github.com/automoto/framesync/shared/framering"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "framesync"

// Collector implements netsync.Metrics. Counters are shared by every entity of
// a process; the buffered gauge holds the last value any entity reported.
type Collector struct {
	holds        prom.Counter
	catchUps     prom.Counter
	lateFrames   prom.Counter
	resyncs      prom.Counter
	desyncs      prom.Counter
	unknown      prom.Counter
	rotated      *prom.CounterVec
	buffered     prom.Gauge
	peers        prom.Gauge
	relayed      prom.Counter
	relayDropped prom.Counter
	rejected     prom.Counter
}

// New registers the collector's metrics with reg.
func New(reg prom.Registerer) (*Collector, error) {
	c := &Collector{
		holds: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "playback_holds_total",
			Help:      "Ticks on which playback repeated the current frame.",
		}),
		catchUps: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "playback_catchups_total",
			Help:      "Ticks on which playback skipped ahead two frames.",
		}),
		lateFrames: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "frames_late_total",
			Help:      "Frames that arrived at or behind the playback target.",
		}),
		resyncs: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "playback_resyncs_total",
			Help:      "Playback restarts caused by frames beyond the window ahead of the target.",
		}),
		desyncs: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "framing_desyncs_total",
			Help:      "Datagrams dropped because their payload did not match the component layout.",
		}),
		unknown: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "frames_unknown_entity_total",
			Help:      "Datagrams dropped because their entity id is not registered.",
		}),
		rotated: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rotated_total",
			Help:      "Frames rotated into the playback target, by where their data came from.",
		}, []string{"source"}),
		buffered: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_buffered_frames",
			Help:      "Valid frames ahead of the playback target.",
		}),
		peers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_connected",
			Help:      "Peers that completed the join handshake.",
		}),
		relayed: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_relayed_total",
			Help:      "Frame datagrams forwarded from one peer to another.",
		}),
		relayDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_relay_dropped_total",
			Help:      "Frame datagrams not forwarded because a peer's send queue was full.",
		}),
		rejected: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_rejected_total",
			Help:      "Frame datagrams dropped because the sending peer does not write the entity.",
		}),
	}

	for _, m := range []prom.Collector{
		c.holds, c.catchUps, c.lateFrames, c.resyncs, c.desyncs, c.unknown,
		c.rotated, c.buffered, c.peers, c.relayed, c.relayDropped, c.rejected,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) Hold()          { c.holds.Inc() }
func (c *Collector) CatchUp()       { c.catchUps.Inc() }
func (c *Collector) LateFrame()     { c.lateFrames.Inc() }
func (c *Collector) Resync()        { c.resyncs.Inc() }
func (c *Collector) FramingDesync() { c.desyncs.Inc() }
func (c *Collector) UnknownEntity() { c.unknown.Inc() }
func (c *Collector) Buffered(n int) { c.buffered.Set(float64(n)) }

func (c *Collector) Rotated(src framering.Source) {
	c.rotated.WithLabelValues(src.String()).Inc()
}

func (c *Collector) SetPeers(n int) { c.peers.Set(float64(n)) }
func (c *Collector) Relayed()       { c.relayed.Inc() }
func (c *Collector) RelayDropped()  { c.relayDropped.Inc() }
func (c *Collector) Rejected()      { c.rejected.Inc() }
