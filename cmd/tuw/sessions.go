package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tuw-telemetry/internal/catalog"
	"tuw-telemetry/internal/logging"
)

var (
	sessionsArea  string
	sessionsLimit int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions from the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := catalog.Open(appConfig.Catalog.Path, logging.FromContext(ctx))
		if err != nil {
			return err
		}
		defer store.Close()
		list, err := store.List(ctx, sessionsArea, sessionsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tAREA\tFRAMES\tDURATION\tID\tFILE")
		for _, s := range list {
			dur := "open"
			if !s.EndedAt.IsZero() {
				dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
				s.StartedAt.Local().Format(time.DateTime), s.Metadata.AreaID, s.Frames, dur, s.ID, s.Path)
		}
		return tw.Flush()
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsArea, "area", "", "Only list sessions of this area")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions")
}
