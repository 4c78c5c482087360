package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// GameLoop drives the server: each wakeup applies queued connection commands
// and then runs however many frame clock ticks are due.
type GameLoop struct {
	server   *Server
	clock    clock.Clock
	logger   *zap.Logger
	running  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
}

func NewGameLoop(server *Server, clk clock.Clock, logger *zap.Logger) *GameLoop {
	return &GameLoop{
		server:   server,
		clock:    clk,
		logger:   logger.Named("loop"),
		stopChan: make(chan struct{}),
	}
}

// Run blocks until ctx ends or Stop is called.
func (g *GameLoop) Run(ctx context.Context) {
	g.running.Store(true)
	defer g.running.Store(false)

	interval := g.server.clock.Interval()
	ticker := g.clock.Ticker(interval)
	defer ticker.Stop()

	g.logger.Info("game loop started",
		zap.Duration("interval", interval),
		zap.Int("sendEveryX", g.server.clock.SendEveryX()))

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("game loop stopped")
			return
		case <-g.stopChan:
			g.logger.Info("game loop stopped")
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *GameLoop) Running() bool { return g.running.Load() }

func (g *GameLoop) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
}

func (g *GameLoop) tick() {
	g.server.ProcessCommands()
	g.server.clock.Poll()
}
