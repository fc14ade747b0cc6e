package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tuw-telemetry/internal/durable"
	"tuw-telemetry/internal/logging"
	"tuw-telemetry/internal/sim"
)

var (
	replaySpeed     float64
	replayPrintOnly bool
	replayLogFile   string
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Replay a session log",
	Long:  "replay decodes a session log and feeds its frames into GreptimeDB or STDOUT, optionally at recorded speed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())
		path := args[0]
		ov := sim.Overview{
			Source:    "replay " + path,
			SessionID: strings.TrimSuffix(filepath.Base(path), durable.SessionExt),
			Markers:   appConfig.Markers,
		}
		writer, cleanup, err := newWriter(appConfig, replayPrintOnly, replayLogFile, ov, log)
		if err != nil {
			return err
		}
		defer cleanup()
		n, err := sim.ReplayLogFile(path, writer, replaySpeed)
		log.Info("replay finished", "file", path, "frames", n)
		return err
	},
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed multiplier; 0 replays as fast as possible")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print rows to STDOUT instead of writing to GreptimeDB")
	replayCmd.Flags().StringVar(&replayLogFile, "log-file", "", "Also write rows to this JSON lines file")
}
