package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jimdaga/mediecho/internal/config"
	"github.com/jimdaga/mediecho/internal/worker"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "mediecho",
		Short:         "MediEcho - health journal API and weekly brief worker",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			slog.SetDefault(worker.NewLogger(cfg.LogLevel, cfg.LogFormat))
		},
	}

	loadConfig := func() *config.Config { return cfg }

	rootCmd.AddCommand(serveCmd(loadConfig))
	rootCmd.AddCommand(workerCmd(loadConfig))
	rootCmd.AddCommand(migrateCmd(loadConfig))
	rootCmd.AddCommand(seedCmd(loadConfig))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
