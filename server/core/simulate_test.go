package core

import (
	"testing"
	"time"

	"github.com/automoto/framesync/archetypes"
	"github.com/automoto/framesync/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulateOptions() SimulateOptions {
	sim := config.Sim
	sim.Drones = 4
	sim.Duration = 4 * time.Second
	return SimulateOptions{Sim: sim, Sync: config.Sync, Handover: true}
}

func TestSimulate(t *testing.T) {
	opts := simulateOptions()
	report, err := Simulate(opts)
	require.NoError(t, err)

	assert.Equal(t, 240, report.Ticks)
	assert.Equal(t, 119, report.Frames)
	assert.Positive(t, report.Link.Dropped)
	assert.Positive(t, report.Link.Delivered)
	assert.NotZero(t, report.Handover)
	assert.Less(t, report.MeanError, 150.0)

	require.Len(t, report.Peer, opts.Sim.Drones+1)
	for _, s := range report.Peer {
		switch {
		case s.ID == report.Handover, s.Kind == archetypes.KindAvatar:
			assert.True(t, s.Writer, "entity %d", s.ID)
		default:
			assert.False(t, s.Writer, "entity %d", s.ID)
			assert.Positive(t, s.Received, "entity %d", s.ID)
		}
	}
	for _, s := range report.Master {
		if s.ID == report.Handover {
			assert.False(t, s.Writer)
			assert.Positive(t, s.Received, "the master reads the handed-over drone")
		}
	}
}

func TestSimulateIsReproducible(t *testing.T) {
	a, err := Simulate(simulateOptions())
	require.NoError(t, err)
	b, err := Simulate(simulateOptions())
	require.NoError(t, err)

	assert.Equal(t, a.Link, b.Link)
	assert.Equal(t, a.MeanError, b.MeanError)
}

func TestSimulateRejectsBadTuning(t *testing.T) {
	opts := simulateOptions()
	opts.Sync.Tuning.WindowSize = 0
	_, err := Simulate(opts)
	assert.Error(t, err)
}
