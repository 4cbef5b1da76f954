package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8787"

type options struct {
	verbose bool
	server  string
	home    string
	// serverSet means --server or LINKCTL_SERVER was given explicitly.
	serverSet bool
}

// newRootCmd builds the command tree. Tests build their own so flag state
// never leaks between runs.
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "linkctl",
		Short: "Edit a Linkpage profile from the command line",
		Long: `linkctl keeps a Linkpage profile in sync with a YAML page file.
It loads the page into a local working copy, applies the file to it and saves
the difference to the server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			opts.serverSet = cmd.Flags().Changed("server") || os.Getenv("LINKCTL_SERVER") != ""
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("LINKCTL_SERVER", defaultServer), "Linkpage API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.home, "home", os.Getenv("LINKCTL_HOME"), "Directory holding credentials.yaml (default ~/.linkctl)")

	rootCmd.AddCommand(
		newLoginCmd(opts),
		newShowCmd(opts),
		newCheckSlugCmd(opts),
		newApplyCmd(opts),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
