package config

import (
	"time"

	"github.com/automoto/framesync/shared/netconfig"
)

// SyncConfig holds the jitter buffer tuning and writer behaviour.
type SyncConfig struct {
	Tuning           netconfig.Tuning
	KeyframeInterval int  // Frames between forced full-content sends
	ElideUnchanged   bool // Skip datagrams whose components all report no change
}

// NetConfig contains host and transport settings.
type NetConfig struct {
	Address      string // Client dial address, ws://host:port/ws
	Port         uint
	ServerName   string
	Version      string
	MaxPeers     int
	ReadLimit    int64
	WriteTimeout time.Duration
	JoinTimeout  time.Duration
	IdleTimeout  time.Duration // Peers silent this long are dropped
	OutboxSize   int           // Queued messages per peer before frames are dropped
}

// SimConfig contains the fixed-tick simulation and the demo world.
type SimConfig struct {
	TickRate   int // Simulation ticks per second
	SendEveryX int // Ticks per synchronized frame

	Width, Height float64 // Arena the drones bounce around in
	Drones        int
	DroneSpeed    float64
	DroneSize     float64

	// Simulated link for the simulate command.
	Loss     float64
	Latency  time.Duration
	Jitter   time.Duration
	Seed     int64
	Duration time.Duration
}

// Global configuration instances
var Sync SyncConfig
var Net NetConfig
var Sim SimConfig

func init() {
	Sync = SyncConfig{
		Tuning:           netconfig.DefaultTuning(),
		KeyframeInterval: netconfig.DefaultKeyframeInterval,
		ElideUnchanged:   false,
	}

	Net = NetConfig{
		Address:      "ws://localhost:7373/ws",
		Port:         7373,
		ServerName:   "framesync",
		Version:      "0.1.0",
		MaxPeers:     32,
		ReadLimit:    64 << 10,
		WriteTimeout: 2 * time.Second,
		JoinTimeout:  5 * time.Second,
		IdleTimeout:  30 * time.Second,
		OutboxSize:   256,
	}

	Sim = SimConfig{
		TickRate:   60,
		SendEveryX: 2,

		Width:      640,
		Height:     360,
		Drones:     8,
		DroneSpeed: 2.5,
		DroneSize:  12,

		Loss:     0.05,
		Latency:  60 * time.Millisecond,
		Jitter:   25 * time.Millisecond,
		Seed:     1,
		Duration: 10 * time.Second,
	}
}

// FrameRate is the number of synchronized frames per second.
func (s SimConfig) FrameRate() float64 {
	return float64(s.TickRate) / float64(s.SendEveryX)
}
