package main

import (
	"fmt"

	"github.com/automoto/framesync/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func getLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, nil
}

// syncConfig starts from the persisted tuning, if any, and applies the flags
// that were set. With --save-tuning the result becomes the persisted tuning.
func syncConfig(cCtx *cli.Context, logger *zap.Logger) (config.SyncConfig, error) {
	sc := config.Sync

	store, err := config.OpenStore(appName)
	if err != nil {
		logger.Warn("tuning store unavailable, using defaults", zap.Error(err))
	} else if saved, err := store.LoadTuning(); err != nil {
		logger.Warn("ignoring saved tuning", zap.Error(err))
	} else if saved != nil {
		sc.Tuning = *saved
		logger.Debug("loaded saved tuning", zap.Any("tuning", sc.Tuning))
	}

	if cCtx.IsSet(MinBufferFlag) {
		sc.Tuning.MinBuffer = cCtx.Int(MinBufferFlag)
	}
	if cCtx.IsSet(TargetBufferFlag) {
		sc.Tuning.TargetBuffer = cCtx.Int(TargetBufferFlag)
	}
	if cCtx.IsSet(MaxBufferFlag) {
		sc.Tuning.MaxBuffer = cCtx.Int(MaxBufferFlag)
	}
	sc.KeyframeInterval = cCtx.Int(KeyframeFlag)
	sc.ElideUnchanged = cCtx.Bool(ElideFlag)

	if err := sc.Tuning.Validate(); err != nil {
		return sc, fmt.Errorf("tuning: %w", err)
	}
	if cCtx.Bool(SaveTuningFlag) {
		if store == nil {
			return sc, fmt.Errorf("cannot save tuning: %w", err)
		}
		if err := store.SaveTuning(sc.Tuning); err != nil {
			return sc, fmt.Errorf("saving tuning: %w", err)
		}
		logger.Info("saved tuning", zap.Any("tuning", sc.Tuning))
	}
	return sc, nil
}

func simConfig(cCtx *cli.Context) config.SimConfig {
	sim := config.Sim
	sim.TickRate = cCtx.Int(TickRateFlag)
	sim.SendEveryX = cCtx.Int(SendEveryXFlag)
	if cCtx.IsSet(DronesFlag) {
		sim.Drones = cCtx.Int(DronesFlag)
	}
	if cCtx.IsSet(SeedFlag) {
		sim.Seed = cCtx.Int64(SeedFlag)
	}
	return sim
}
