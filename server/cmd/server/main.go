package main

import (
	"log"
	"os"

	"github.com/automoto/framesync/config"
	"github.com/urfave/cli/v2"
)

const (
	DebugFlag    = "debug"
	PortFlag     = "port"
	NameFlag     = "name"
	VersionFlag  = "version"
	AddressFlag  = "address"
	DurationFlag = "duration"

	TickRateFlag   = "tickrate"
	SendEveryXFlag = "send-every"
	DronesFlag     = "drones"
	SeedFlag       = "seed"
	LossFlag       = "loss"
	LatencyFlag    = "latency"
	JitterFlag     = "jitter"
	HandoverFlag   = "handover"

	MinBufferFlag    = "min-buffer"
	TargetBufferFlag = "target-buffer"
	MaxBufferFlag    = "max-buffer"
	KeyframeFlag     = "keyframe-interval"
	ElideFlag        = "elide-unchanged"
	SaveTuningFlag   = "save-tuning"
)

// appName names the gdata directory the tuning is persisted in.
const appName = "framesync"

func main() {
	syncFlags := []cli.Flag{
		&cli.BoolFlag{Name: DebugFlag, Usage: "Enable debug logging"},
		&cli.IntFlag{Name: TickRateFlag, Value: config.Sim.TickRate, Usage: "Simulation ticks per second"},
		&cli.IntFlag{Name: SendEveryXFlag, Value: config.Sim.SendEveryX, Usage: "Ticks per synchronized frame"},
		&cli.IntFlag{Name: MinBufferFlag, Usage: "Frames buffered before playback slows down"},
		&cli.IntFlag{Name: TargetBufferFlag, Usage: "Frames playback aims to keep buffered"},
		&cli.IntFlag{Name: MaxBufferFlag, Usage: "Frames buffered before playback catches up"},
		&cli.IntFlag{Name: KeyframeFlag, Value: config.Sync.KeyframeInterval, Usage: "Frames between full-content sends"},
		&cli.BoolFlag{Name: ElideFlag, Usage: "Skip datagrams in which nothing changed"},
		&cli.BoolFlag{Name: SaveTuningFlag, Usage: "Persist the resulting tuning as the new default"},
	}

	app := &cli.App{
		Name:  "framesync",
		Usage: "Frame-synchronized entity replication over a jitter buffer",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Host a session over websockets",
				Flags: append([]cli.Flag{
					&cli.UintFlag{Name: PortFlag, Aliases: []string{"p"}, Value: config.Net.Port, Usage: "Listen port"},
					&cli.StringFlag{Name: NameFlag, Value: config.Net.ServerName, Usage: "Server display name"},
					&cli.StringFlag{Name: VersionFlag, Value: config.Net.Version, Usage: "Required client version (empty accepts any)"},
					&cli.IntFlag{Name: DronesFlag, Value: config.Sim.Drones, Usage: "Host-simulated drones"},
					&cli.Int64Flag{Name: SeedFlag, Value: config.Sim.Seed, Usage: "Drone placement seed"},
				}, syncFlags...),
				Action: serve,
			},
			{
				Name:  "join",
				Usage: "Join a session and steer an avatar",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: AddressFlag, Aliases: []string{"a"}, Value: config.Net.Address, Usage: "Server websocket address"},
					&cli.StringFlag{Name: NameFlag, Value: "peer", Usage: "Player name"},
					&cli.StringFlag{Name: VersionFlag, Value: config.Net.Version, Usage: "Client version sent on join"},
					&cli.DurationFlag{Name: DurationFlag, Usage: "Leave after this long (0 runs until interrupted)"},
				}, syncFlags...),
				Action: join,
			},
			{
				Name:  "simulate",
				Usage: "Run a master and a peer in process over a lossy link and print stats",
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: DronesFlag, Value: config.Sim.Drones, Usage: "Host-simulated drones"},
					&cli.Int64Flag{Name: SeedFlag, Value: config.Sim.Seed, Usage: "Seed for placement and the link"},
					&cli.Float64Flag{Name: LossFlag, Value: config.Sim.Loss, Usage: "Datagram loss probability"},
					&cli.DurationFlag{Name: LatencyFlag, Value: config.Sim.Latency, Usage: "One-way latency"},
					&cli.DurationFlag{Name: JitterFlag, Value: config.Sim.Jitter, Usage: "Maximum extra delay per datagram"},
					&cli.DurationFlag{Name: DurationFlag, Value: config.Sim.Duration, Usage: "Simulated time"},
					&cli.BoolFlag{Name: HandoverFlag, Value: true, Usage: "Hand a drone to the peer halfway through"},
				}, syncFlags...),
				Action: simulate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
