package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/billie-coop/ollamagate/internal/app"
	"github.com/billie-coop/ollamagate/internal/config"
	"github.com/billie-coop/ollamagate/internal/gateway"
)

const shutdownTimeout = 30 * time.Second

// addServeFlags is shared by serve and the root command, which serves by default.
// Binding happens when one of them runs.
func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("listen", gateway.DefaultAddr, "address the gateway listens on")
	cmd.Flags().Bool("remote-admin", false, "serve /admin to non-loopback peers")
	cmd.Flags().Bool("metrics", true, "expose prometheus metrics on /metrics")
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long:  `Start the gateway in front of Ollama and keep it in sync with the state file.`,
		RunE:  c.runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	c.mustBindPFlag("listen", cmd.Flags().Lookup("listen"))
	c.mustBindPFlag("remote_admin", cmd.Flags().Lookup("remote-admin"))
	c.mustBindPFlag("metrics", cmd.Flags().Lookup("metrics"))

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := c.logger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := config.Open(c.v.GetString("store"), logger.Named("config"))
	if err != nil {
		return err
	}
	logger.Info("Running ollamagate",
		zap.String("version", Version),
		zap.String("store", store.Path()),
		zap.String("ollama", store.BaseURL(ctx)))

	a := app.New(ctx, store, logger)
	srv := gateway.New(a, gateway.Config{
		Addr:        c.v.GetString("listen"),
		RemoteAdmin: c.v.GetBool("remote_admin"),
		Metrics:     c.v.GetBool("metrics"),
	}, logger.Named("gateway"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return store.Watch(gctx, func(cfg config.Config) {
			a.Reload(gctx, cfg)
		})
	})
	err = g.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if serr := a.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("Shutdown did not finish cleanly", zap.Error(serr))
	}
	logger.Info("Gateway stopped")
	return err
}
