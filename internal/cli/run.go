package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twinsync/twinsync/internal/bridge"
	"github.com/twinsync/twinsync/internal/catalog"
	"github.com/twinsync/twinsync/internal/driving"
	"github.com/twinsync/twinsync/internal/frame"
	"github.com/twinsync/twinsync/internal/journal"
	"github.com/twinsync/twinsync/internal/sim"
	"github.com/twinsync/twinsync/internal/traffic"
	"github.com/twinsync/twinsync/internal/translate"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config-file>",
		Short: "Run the bridge between the two simulators",
		Long: `Run the reconciliation bridge described by a YAML configuration file.

The bridge connects to both engines, mirrors vehicles in both directions
every tick, and keeps running until the traffic scenario finishes or a
signal arrives. SIGINT and SIGTERM trigger a graceful shutdown: the
in-flight tick completes and every bridge-spawned mirror is destroyed.

Example:
  twinsync run ./twinsync.yaml
  twinsync run ./twinsync.yaml --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runBridge(rootOpts *RootOptions, configPath string, cmd *cobra.Command) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	bcfg, err := cfg.BridgeConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sync config", err)
	}

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return WrapExitError(ExitCommandError, "load catalog", err)
	}
	tr := translate.New(cat, sim.Vec3{X: cfg.Sync.OffsetX, Y: cfg.Sync.OffsetY})

	// Cancellation flows from signals to the run context; the runner only
	// observes it at tick boundaries.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder bridge.Recorder
	if cfg.Journal != "" {
		store, err := journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer store.Close()

		run, err := store.BeginRun(ctx, journal.RunInfo{
			Authority:  cfg.Sync.Authority,
			SyncColor:  cfg.Sync.SyncColor,
			SyncLights: cfg.Sync.SyncLights,
			StepLength: bcfg.StepLength,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "begin journal run", err)
		}
		defer func() {
			if err := run.Finish(context.Background()); err != nil {
				slog.Warn("journal finish failed", "error", err)
			}
		}()
		recorder = run
		slog.Info("journaling run", "id", run.ID(), "path", cfg.Journal)
	}

	slog.Info("connecting traffic engine", "addr", cfg.Traffic.Addr, "scenario", cfg.Traffic.Scenario)
	trafficClient, err := traffic.Connect(ctx, traffic.Options{
		Addr:       cfg.Traffic.Addr,
		Scenario:   cfg.Traffic.Scenario,
		StepLength: bcfg.StepLength,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "traffic engine", err)
	}

	var frames frame.Buffer
	slog.Info("connecting driving engine", "url", cfg.Driving.URL)
	drivingClient, err := driving.Connect(ctx, driving.Options{
		URL:    cfg.Driving.URL,
		Frames: &frames,
	})
	if err != nil {
		trafficClient.Close()
		return WrapExitError(ExitFailure, "driving engine", err)
	}

	var recOpts []bridge.Option
	if recorder != nil {
		recOpts = append(recOpts, bridge.WithRecorder(recorder))
	}
	rec := bridge.New(bcfg, trafficClient, drivingClient, tr, recOpts...)

	runnerOpts := []bridge.RunnerOption{
		bridge.WithPending(func(ctx context.Context) (bool, error) {
			return trafficClient.Pending() > 0, nil
		}),
	}
	if cfg.Driving.Follow != "" {
		follower := newEgoFollower(sim.ActorID(cfg.Driving.Follow), rec, drivingClient, &frames)
		runnerOpts = append(runnerOpts, bridge.WithOnTick(follower.tick))
	}

	runner := bridge.NewRunner(rec, trafficClient, bcfg.StepLength, runnerOpts...)

	if err := runner.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "bridge aborted", err)
	}

	return rootOpts.formatter(cmd).Success(runSummary{
		Ticks:    rec.Clock().Current(),
		Mirrored: rec.MirroredCount(),
	})
}

type runSummary struct {
	Ticks    int64 `json:"ticks"`
	Mirrored int   `json:"mirrored"`
}

func (s runSummary) String() string {
	return fmt.Sprintf("run complete: %d ticks", s.Ticks)
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(dir)
}
