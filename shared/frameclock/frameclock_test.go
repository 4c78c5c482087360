package frameclock

import (
	"fmt"
	"testing"
	"time"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
)

func record(w donburi.World) *[]string {
	var log []string
	PreTick.Subscribe(w, func(_ donburi.World, e TickEvent) {
		log = append(log, fmt.Sprintf("pre %d/%d", e.Frame, e.Sub))
	})
	PostTick.Subscribe(w, func(_ donburi.World, e TickEvent) {
		log = append(log, fmt.Sprintf("post %d/%d", e.Frame, e.Sub))
	})
	SendFrame.Subscribe(w, func(_ donburi.World, e TickEvent) {
		log = append(log, fmt.Sprintf("send %d", e.Frame))
	})
	FrameIncremented.Subscribe(w, func(_ donburi.World, e IncrementEvent) {
		log = append(log, fmt.Sprintf("inc %d<-%d", e.New, e.Prev))
	})
	return &log
}

func TestTickPublishesInOrder(t *testing.T) {
	w := donburi.NewWorld()
	log := record(w)
	c := New(w, Config{SendEveryX: 2})

	for i := 0; i < 3; i++ {
		require.True(t, c.Tick())
	}

	assert.Equal(t, []string{
		"pre 0/0",
		"post 0/0", "pre 0/1",
		"post 0/1", "send 0", "inc 1<-0", "pre 1/0",
	}, *log)
	assert.Equal(t, StateSimulating, c.State())
	assert.Equal(t, netconfig.FrameID(1), c.FrameID())
}

func TestOneSendPerFrame(t *testing.T) {
	w := donburi.NewWorld()
	sends := 0
	SendFrame.Subscribe(w, func(donburi.World, TickEvent) { sends++ })
	c := New(w, Config{SendEveryX: 3})

	for i := 0; i < 3*netconfig.FrameCount+1; i++ {
		c.Tick()
	}
	assert.Equal(t, netconfig.FrameCount, sends)
	assert.Equal(t, netconfig.FrameID(0), c.FrameID(), "frame id wraps")
}

func TestClosedGateSkipsTick(t *testing.T) {
	w := donburi.NewWorld()
	log := record(w)
	ready := false
	c := New(w, Config{Gate: GateFunc(func() bool { return ready })})

	assert.False(t, c.Tick())
	assert.Empty(t, *log)
	assert.Equal(t, StateIdle, c.State())

	ready = true
	assert.True(t, c.Tick())
	assert.Equal(t, []string{"pre 0/0"}, *log)
}

func TestPollIsIdempotentWithinATick(t *testing.T) {
	w := donburi.NewWorld()
	mock := clock.NewMock()
	c := New(w, Config{TickRate: 50, Clock: mock})
	require.Equal(t, 20*time.Millisecond, c.Interval())

	assert.Zero(t, c.Poll())
	mock.Add(65 * time.Millisecond)
	assert.Equal(t, 3, c.Poll())
	assert.Zero(t, c.Poll())
	mock.Add(15 * time.Millisecond)
	assert.Equal(t, 1, c.Poll())
}

func TestPollDropsTimeAfterStall(t *testing.T) {
	w := donburi.NewWorld()
	mock := clock.NewMock()
	c := New(w, Config{TickRate: 10, Clock: mock})
	c.Poll()

	mock.Add(10 * time.Second)
	assert.Equal(t, maxTicksPerPoll, c.Poll())
	assert.Zero(t, c.Poll())
}

func TestResetAlignsFrame(t *testing.T) {
	w := donburi.NewWorld()
	log := record(w)
	c := New(w, Config{})
	c.Tick()
	c.Reset(42)

	c.Tick()
	assert.Equal(t, []string{"pre 0/0", "pre 42/0"}, *log)
}
