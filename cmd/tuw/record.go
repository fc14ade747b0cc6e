package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tuw-telemetry/internal/admin"
	"tuw-telemetry/internal/catalog"
	"tuw-telemetry/internal/durable"
	"tuw-telemetry/internal/live"
	"tuw-telemetry/internal/logging"
	"tuw-telemetry/internal/metrics"
	"tuw-telemetry/internal/session"
	"tuw-telemetry/internal/sim"
)

var (
	recordScenario string
	recordEcho     string
	recordLogFile  string
	recordAdmin    bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a scripted session",
	Long: "record plays a scenario through the session controller, publishing live frames to the shared " +
		"region and writing session logs to the output directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		ctx := cmd.Context()
		log := logging.FromContext(ctx)

		script, err := loadScript(recordScenario)
		if err != nil {
			return err
		}

		if recordEcho == echoTUI {
			// keep log lines off the alternate screen
			f, err := os.OpenFile(filepath.Join(os.TempDir(), "tuw.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			if log, err = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Out: f}); err != nil {
				return err
			}
			ctx = logging.NewContext(ctx, log)
		}

		ov := sim.Overview{
			Source:      "scenario " + recordScenario,
			AreaID:      script.AreaID,
			DisplayName: script.DisplayName,
			Markers:     cfg.Markers,
		}
		echo, closeEcho, err := newEchoWriter(recordEcho, recordLogFile, ov)
		if err != nil {
			return err
		}
		defer closeEcho()

		m := metrics.New()
		var ch live.Channel
		if cfg.Live.Enabled {
			ch = live.Open(live.Options{
				Name:         cfg.Live.Name,
				FallbackPath: cfg.Live.FallbackPath,
				Size:         cfg.Live.Size,
			}, log)
		}
		var queue *durable.Queue
		if cfg.Log.Enabled {
			queue = durable.NewQueue(durable.Options{
				Persistent: cfg.Log.Persistent,
				StallAfter: cfg.Log.StallAfter(),
				Logger:     log,
				Metrics:    m,
			})
		}
		var observer session.Observer
		if cfg.Catalog.Enabled {
			store, err := catalog.Open(cfg.Catalog.Path, log)
			if err != nil {
				return err
			}
			defer store.Close()
			observer = store
		}

		simulator := sim.NewSimulator(script, sim.Options{
			Markers:      cfg.Markers,
			TickInterval: cfg.TickInterval(),
			Writer:       echo,
		})
		ctrl := session.NewController(simulator, session.Options{
			Live:         ch,
			Queue:        queue,
			OutputDir:    cfg.Log.OutputDir,
			FlagBudget:   cfg.Events.FlagBudgetBytes,
			LiveCapacity: cfg.Live.Size,
			Logger:       log,
			Metrics:      m,
			Observer:     observer,
		})

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		adminDone := make(chan error, 1)
		if recordAdmin || cfg.Admin.Enabled {
			srv := admin.NewServer(ctrl, admin.Options{Metrics: m, Logger: log})
			go func() { adminDone <- srv.Start(runCtx, cfg.Admin.Addr) }()
			if aw, ok := echo.(sim.AdminStatusWriter); ok {
				aw.SetAdminStatus(true)
			}
		} else {
			adminDone <- nil
		}

		log.Info("recording", "scenario", recordScenario, "area", script.AreaID, "tick_hz", cfg.TickHz)
		runErr := simulator.Run(ctx, ctrl)
		cancel()
		err = errors.Join(runErr, ctrl.Shutdown(), <-adminDone)
		st := ctrl.Status()
		log.Info("recording stopped", "ticks", simulator.Ticks(), "frames", st.Emitted, "skipped", st.Skipped)
		return err
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordScenario, "scenario", "first-steps", "Built-in scenario name or path to a YAML scenario")
	recordCmd.Flags().StringVar(&recordEcho, "echo", echoNone, "Echo emitted frames: none, stdout or tui")
	recordCmd.Flags().StringVar(&recordLogFile, "log-file", "", "Also write emitted rows to this JSON lines file")
	recordCmd.Flags().BoolVar(&recordAdmin, "admin", false, "Serve the admin API even when disabled in config")
}
