package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tuw-telemetry/internal/durable"
	"tuw-telemetry/internal/logging"
	"tuw-telemetry/internal/plot"
	"tuw-telemetry/internal/sim"
)

var (
	plotRoom    string
	plotOut     string
	plotScale   float64
	plotHitboxN int
	plotBest    int
	plotEps     float64
)

var plotCmd = &cobra.Command{
	Use:   "plot FILE",
	Short: "Draw the runs of one room as a PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := sim.ReadRows(args[0])
		if err != nil {
			return err
		}
		out := plotOut
		if out == "" {
			out = strings.TrimSuffix(filepath.Base(args[0]), durable.SessionExt) + ".png"
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		sum, err := plot.Render(rows, f, plot.Options{
			Room:        plotRoom,
			Scale:       plotScale,
			HitboxEvery: plotHitboxN,
			Best:        plotBest,
			ClusterEps:  plotEps,
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return err
		}
		logging.FromContext(cmd.Context()).Info("plot written", "file", out,
			"room", sum.Room, "runs", sum.Runs, "clusters", sum.Clusters, "drawn", sum.Drawn, "deaths", sum.Deaths)
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotRoom, "room", "", "Room to draw; defaults to the first room in the log")
	plotCmd.Flags().StringVarP(&plotOut, "output", "o", "", "PNG path; defaults to the log name with .png")
	plotCmd.Flags().Float64Var(&plotScale, "scale", 2, "Pixels per world unit")
	plotCmd.Flags().IntVar(&plotHitboxN, "hitbox-every", 0, "Draw the hitbox every n frames (0 disables)")
	plotCmd.Flags().IntVar(&plotBest, "best", 0, "Draw only the most central run of the n largest clusters")
	plotCmd.Flags().Float64Var(&plotEps, "cluster-eps", 0, "Clustering distance; 0 derives it from the runs")
}
