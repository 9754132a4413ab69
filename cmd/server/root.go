package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/host-calendar-sync/backend/internal/logger"
)

var configDir string

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "calsync",
	Short: "Host calendar sync service",
	Long: `calsync pulls OTA booking feeds into reservations, publishes each property's
availability as an iCal feed and assigns cleaning turnovers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
		if logErr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		l.Error("command failed", zap.Error(err))
		_ = l.Sync()
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "Directory holding .env and calsync.yaml")
	RootCmd.Version = version
}
