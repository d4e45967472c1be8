package cmd

import (
	"context"
	"fmt"
	"os"

	"Tunehub/config"
	"Tunehub/logger"
	"Tunehub/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tunehub",
	Short: "Tunehub is a social music streaming backend.",
	Long: `Tunehub serves the music catalogue REST API and the realtime socket relay
that carries presence, activity and direct messages between listeners.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(loadConfig())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		return server.Start(loadConfig())
	},
	SilenceUsage: true,
}

var cfg *config.Config

// loadConfig reads the environment once per process.
func loadConfig() *config.Config {
	if cfg == nil {
		cfg = config.Load()
	}
	return cfg
}

func initLogger(c *config.Config) error {
	return logger.InitLogger(logger.Config{
		Level:      c.LogLevel,
		OutputPath: c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge,
		Compress:   true,
	})
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
