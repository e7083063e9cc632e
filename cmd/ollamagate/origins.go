package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/billie-coop/ollamagate/internal/origin"
)

func (c *cli) originsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "origins",
		Short: "Manage the origin allow-list",
		Long: `Edit the allow-list in the state file. A running gateway picks up
changes immediately.

Patterns look like "https://notes.example.com/*". Use "allow-all" to let
every page through.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the allow-list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.origins()
			if err != nil {
				return err
			}
			list, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No origins allowed.")
				return nil
			}
			for _, p := range list {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <pattern|url>...",
		Short: "Allow patterns, or the origins of page URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.origins()
			if err != nil {
				return err
			}
			for _, arg := range args {
				pattern := arg
				if strings.Contains(arg, "*") {
					err = m.Add(cmd.Context(), arg)
				} else {
					pattern, err = m.AddOrigin(cmd.Context(), arg)
				}
				if err != nil {
					return fmt.Errorf("add %s: %w", arg, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Allowed %s\n", pattern)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <pattern>...",
		Short: "Remove patterns from the allow-list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.origins()
			if err != nil {
				return err
			}
			for _, p := range args {
				if err := m.Remove(cmd.Context(), p); err != nil {
					return fmt.Errorf("remove %s: %w", p, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", p)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "allow-all",
		Short: "Replace the allow-list with " + origin.AllowAll,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.origins()
			if err != nil {
				return err
			}
			if err := m.AllowAllOrigins(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All origins allowed")
			return nil
		},
	})

	return cmd
}

func (c *cli) origins() (*origin.Manager, error) {
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	return origin.NewManager(store, nil), nil
}
