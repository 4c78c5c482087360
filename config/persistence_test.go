package config

import (
	"testing"
	"time"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTuningRoundTrip(t *testing.T) {
	in := netconfig.DefaultTuning()
	in.MaxBuffer = 5
	in.BacklogWindow = time.Second

	data, err := encodeTuning(in)
	require.NoError(t, err)
	out, err := decodeTuning(data)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}

func TestDecodeTuningKeepsDefaultsForMissingFields(t *testing.T) {
	out, err := decodeTuning([]byte(`{"maxLookahead": 2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, out.MaxLookahead)
	assert.Equal(t, netconfig.DefaultWindowSize, out.WindowSize)
}

func TestInvalidTuningIsRejected(t *testing.T) {
	bad := netconfig.DefaultTuning()
	bad.MinBuffer = 9
	_, err := encodeTuning(bad)
	assert.ErrorIs(t, err, netconfig.ErrBufferThresholds)

	_, err = decodeTuning([]byte(`{"windowSize": 0}`))
	assert.ErrorIs(t, err, netconfig.ErrWindow)

	_, err = decodeTuning([]byte(`not json`))
	assert.Error(t, err)
}

func TestDefaultsAreUsable(t *testing.T) {
	require.NoError(t, Sync.Tuning.Validate())
	assert.Equal(t, 30.0, Sim.FrameRate())
}
