// Package main implements a CLI that sorts the Azure DevOps pull requests waiting on you
// into review-status sections.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/config"
)

type options struct {
	configPath string
	orgURL     string
	verbose    bool
	logJSON    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "review-dashboard",
		Short: "Sort Azure DevOps pull requests by what they need from you",
		Long: `review-dashboard lists the pull requests assigned to you and created by you,
sorts them into sections (blocking, incomplete, approved with notable activity, ...)
and annotates each with its size, build state and linked bug severity.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(opts)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file (environment variables override it)")
	f.StringVar(&opts.orgURL, "org", "", "Organization URL, e.g. https://dev.azure.com/contoso (overrides AZDO_ORG_URL)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output with detailed diagnostics")
	f.BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")

	root.AddCommand(
		newSortCmd(opts),
		newWatchCmd(opts),
		newFilesCmd(opts),
		newCheckCmd(opts),
		newIterationsCmd(opts),
		newWhoamiCmd(opts),
		newEnvCmd(),
	)
	return root
}

func setupLogging(opts *options) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if opts.logJSON {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	}
	slog.SetDefault(slog.New(h))
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables the dashboard reads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
			return err
		},
	}
}
