package metrics

import (
	"testing"

	"github.com/automoto/framesync/shared/framering"
	"github.com/automoto/framesync/shared/netsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ netsync.Metrics = (*Collector)(nil)

func TestCollectorCounts(t *testing.T) {
	reg := prom.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.Hold()
	c.Hold()
	c.CatchUp()
	c.FramingDesync()
	c.UnknownEntity()
	c.Rotated(framering.SourceInterpolated)
	c.Rotated(framering.SourceInterpolated)
	c.Rotated(framering.SourceReceived)
	c.Buffered(3)
	c.SetPeers(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.holds))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.catchUps))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.desyncs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unknown))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rotated.WithLabelValues("interpolated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rotated.WithLabelValues("received")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.buffered))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.peers))
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prom.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
