package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/billie-coop/ollamagate/internal/config"
)

func (c *cli) configCmd() *cobra.Command {
	keys := fmt.Sprintf("%s, %s, %s, %s",
		config.KeyEndpoint, config.KeyAllowedOrigins, config.KeyHeavyLimit, config.KeyLightLimit)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or write a single key of the state file",
		Long:  "Keys: " + keys,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			value, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			return store.Set(cmd.Context(), args[0], args[1])
		},
	})

	return cmd
}
