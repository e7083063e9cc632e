package main

import (
	"github.com/spf13/cobra"

	"github.com/billie-coop/ollamagate/internal/tui"
)

func (c *cli) monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch and steer a running gateway",
		Long: `Open a terminal view of a running gateway: queue depth per lane,
limits, allow-list and installed models.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return tui.Run(cmd.Context(), tui.NewClient(c.v.GetString("gateway"), nil))
		},
	}
	cmd.Flags().String("gateway", "", "gateway base URL (default http://127.0.0.1:11435)")
	c.mustBindPFlag("gateway", cmd.Flags().Lookup("gateway"))
	return cmd
}
