package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/billie-coop/ollamagate/internal/llm/queue"
)

func (c *cli) limitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show or change the per-lane concurrency limits",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the heavy and light limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			limits, err := store.Limits(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "heavy: %d\nlight: %d\n", limits.Heavy, limits.Light)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <heavy> <light>",
		Short: "Set both limits; values below 1 become 1",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			heavy, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("heavy limit: %w", err)
			}
			light, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("light limit: %w", err)
			}

			store, err := c.openStore()
			if err != nil {
				return err
			}
			limits := queue.Limits{Heavy: heavy, Light: light}.Clamp()
			if err := store.SetLimits(cmd.Context(), limits); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "heavy: %d\nlight: %d\n", limits.Heavy, limits.Light)
			return nil
		},
	})

	return cmd
}
