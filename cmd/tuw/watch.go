package main

import (
	"time"

	"github.com/spf13/cobra"

	"tuw-telemetry/internal/live"
	"tuw-telemetry/internal/logging"
	"tuw-telemetry/internal/sim"
	"tuw-telemetry/internal/telemetry"
)

var watchTUI bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live region",
	Long:  "watch maps the live region read-only and prints each new frame as it is published.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.FromContext(ctx)
		cfg := appConfig
		r, err := live.OpenReader(live.Options{
			Name:         cfg.Live.Name,
			FallbackPath: cfg.Live.FallbackPath,
			Size:         cfg.Live.Size,
		})
		if err != nil {
			return err
		}
		defer r.Close()

		ov := sim.Overview{Source: "live " + cfg.Live.Name, Markers: cfg.Markers}
		mode := echoStdout
		if watchTUI {
			mode = echoTUI
		}
		writer, cleanup, err := newEchoWriter(mode, "", ov)
		if err != nil {
			return err
		}
		defer cleanup()

		ticker := time.NewTicker(cfg.TickInterval())
		defer ticker.Stop()
		torn := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			f, ok, err := r.Read()
			if err != nil {
				// the writer replaced the frame mid-read
				torn++
				log.Debug("torn live frame", "count", torn, "err", err)
				continue
			}
			if !ok {
				continue
			}
			var area string
			if f.Metadata != nil {
				area = f.Metadata.AreaID
			}
			if err := writer.Write(telemetry.FromFrame(f, "", area)); err != nil {
				return err
			}
		}
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "Show frames in the terminal UI")
}
