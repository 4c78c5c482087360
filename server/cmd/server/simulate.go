package main

import (
	"encoding/json"
	"os"

	"github.com/automoto/framesync/metrics"
	"github.com/automoto/framesync/server/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func simulate(cCtx *cli.Context) error {
	logger, err := getLogger(cCtx.Bool(DebugFlag))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sc, err := syncConfig(cCtx, logger)
	if err != nil {
		return err
	}
	sim := simConfig(cCtx)
	sim.Loss = cCtx.Float64(LossFlag)
	sim.Latency = cCtx.Duration(LatencyFlag)
	sim.Jitter = cCtx.Duration(JitterFlag)
	sim.Duration = cCtx.Duration(DurationFlag)

	collector, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	logger.Info("simulating",
		zap.Duration("duration", sim.Duration),
		zap.Float64("loss", sim.Loss),
		zap.Duration("latency", sim.Latency),
		zap.Duration("jitter", sim.Jitter),
		zap.Int64("seed", sim.Seed))

	report, err := core.Simulate(core.SimulateOptions{
		Sim:      sim,
		Sync:     sc,
		Handover: cCtx.Bool(HandoverFlag),
		Metrics:  collector,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
