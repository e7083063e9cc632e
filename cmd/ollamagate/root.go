package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/billie-coop/ollamagate/internal/config"
	"github.com/billie-coop/ollamagate/internal/gateway"
)

// cli carries the per-invocation settings shared by every subcommand.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "ollamagate",
		Short: "Gate web pages' access to a local Ollama",
		Long: `Run a local proxy between web pages and Ollama. Only origins on the
allow-list get through, and requests are scheduled in two lanes so a long
generation never blocks a quick model listing.

Examples:
  # Run the gateway
  ollamagate serve

  # Watch the queue
  ollamagate monitor

  # Allow a site
  ollamagate origins add "https://notes.example.com/*"

  # Let two generations run at once
  ollamagate limits set 2 4`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initConfig()
		},
		// Default behavior when no subcommand is provided: run the gateway
		RunE: c.runServe,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "process config file (e.g. ollamagate.yaml)")
	flags.String("store", config.DefaultPath(), "gateway state file (endpoint, allow-list, limits)")
	flags.String("log-level", "info", "set the logging level (e.g. debug, info, warn, error)")
	flags.String("log-style", "terminal", "set the logging output style (terminal, json, noop)")

	c.mustBindPFlag("store", flags.Lookup("store"))
	c.mustBindPFlag("log.level", flags.Lookup("log-level"))
	c.mustBindPFlag("log.style", flags.Lookup("log-style"))

	c.v.SetDefault("listen", gateway.DefaultAddr)
	c.v.SetDefault("gateway", "http://"+gateway.DefaultAddr)
	c.v.SetDefault("metrics", true)
	c.v.SetDefault("log.level", "info")
	c.v.SetDefault("log.style", "terminal")

	addServeFlags(root)
	root.AddCommand(
		c.serveCmd(),
		c.monitorCmd(),
		c.originsCmd(),
		c.limitsCmd(),
		c.configCmd(),
	)
	return root
}

// initConfig reads in the config file and ENV variables if set.
func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		if _, err := os.Stat(c.cfgFile); err != nil {
			return fmt.Errorf("config file not found: %s", c.cfgFile)
		}
		c.v.SetConfigFile(c.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
		c.v.AddConfigPath(".")
		c.v.SetConfigName("ollamagate")
	}

	c.v.SetConfigType("yaml")
	c.v.SetEnvPrefix("OLLAMAGATE")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", c.v.ConfigFileUsed())
	} else if c.cfgFile != "" {
		return fmt.Errorf("error reading config file [%s]: %w", c.v.ConfigFileUsed(), err)
	}
	return nil
}

func (c *cli) mustBindPFlag(key string, flag *pflag.Flag) {
	if err := c.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func (c *cli) logger() (*zap.Logger, error) {
	return newLogger(c.v.GetString("log.level"), c.v.GetString("log.style"))
}

// openStore opens the gateway state file. CLI edits log nowhere; the running
// gateway notices them through its watcher.
func (c *cli) openStore() (*config.Store, error) {
	return config.Open(c.v.GetString("store"), zap.NewNop())
}
