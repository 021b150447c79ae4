// Command oooz runs the OOOZ community bot.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/oooz/oooz-bot/src/logging"
)

const programName = "oooz"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var globalFlags = struct {
	config string
	debug  bool
}{}

func commonRun() *slog.Logger {
	logger := logging.Setup(globalFlags.debug)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Debug(fmt.Sprintf(format, v...), "component", programName)
	})); err != nil {
		logger.Error("setting GOMAXPROCS failed", "error", err)
	}
	logger.Info("starting "+programName, "version", version)
	return logger
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "OOOZ community Discord bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), commonRun())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&globalFlags.config, "config", "c", "config.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(
		runCommand(),
		snapshotCommand(),
		tokenCommand(),
		versionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), programName, version)
		},
	}
}
