package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/framesync/config"
	"github.com/automoto/framesync/server/core"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func join(cCtx *cli.Context) error {
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
	net.Version = cCtx.String(VersionFlag)

	ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := withTimeout(ctx, cCtx.Duration(DurationFlag))
	defer cancel()

	peer := core.NewPeer(core.PeerOptions{
		Net:    net,
		Sync:   sc,
		Name:   cCtx.String(NameFlag),
		Logger: logger,
	})
	accepted, err := peer.Join(ctx, cCtx.String(AddressFlag))
	if err != nil {
		return err
	}
	logger.Info("joined",
		zap.String("server", accepted.ServerName),
		zap.Uint32("peer", uint32(accepted.Peer)),
		zap.Uint("avatar", uint(accepted.NetworkID)))

	runErr := peer.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(peer.Host().Snapshot()); err != nil {
		return err
	}
	return runErr
}
