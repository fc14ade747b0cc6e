package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tuw-telemetry/internal/dashboard"
)

var (
	dashboardOut   string
	dashboardTitle string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards",
	Long: "dashboard renders the frame and controller dashboards. Datasource UIDs come from " +
		"GREPTIMEDB_DATASOURCE_UID and PROMETHEUS_DATASOURCE_UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := dashboard.Render(dashboardOut, dashboard.Options{
			Title: dashboardTitle,
			Table: appConfig.Greptime.Table,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashboardOut, "output", "o", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardTitle, "title", "tuw", "Dashboard title prefix")
}
