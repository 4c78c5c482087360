package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/framesync/config"
	"github.com/automoto/framesync/server/core"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func serve(cCtx *cli.Context) error {
	logger, err := getLogger(cCtx.Bool(DebugFlag))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sc, err := syncConfig(cCtx, logger)
	if err != nil {
		return err
	}
	net := config.Net
	net.Port = cCtx.Uint(PortFlag)
	net.ServerName = cCtx.String(NameFlag)
	net.Version = cCtx.String(VersionFlag)
	sim := simConfig(cCtx)

	server, err := core.NewServer(core.Options{
		Net:    net,
		Sim:    sim,
		Sync:   sc,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server",
		zap.String("name", net.ServerName),
		zap.Uint("port", net.Port),
		zap.Int("tickRate", sim.TickRate),
		zap.Int("sendEveryX", sim.SendEveryX),
		zap.String("version", net.Version))
	return server.Run(ctx, fmt.Sprintf(":%d", net.Port))
}

// withTimeout bounds ctx when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
