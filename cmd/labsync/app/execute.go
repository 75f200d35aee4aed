package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/labsync/internal/cmd/output"
)

// Execute runs the labsync CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "labsync",
		Short:   "Real-time lab state and notifications",
		Version: a.version,
		Long: `labsync subscribes to a network lab's live state channel, keeps the
latest node, link and lab state, and turns lab activity into notifications
filtered by your notification preferences.

It can print changes as they happen, show a one-shot status, manage your
preferences, or relay everything to browsers as a local HTTP server.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	if a.out != nil {
		rootCmd.SetOut(a.out)
		rootCmd.SetErr(a.out)
	}

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "management", Title: "Management Commands:"})

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./.labsync.yaml or $HOME/.labsync.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.Bool("no-color", false, "disable colored output")
	flags.StringP("format", "o", "", "output format: table, json, yaml, wide")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	flags.String("base-url", "", "lab API base URL")
	flags.String("token", "", "session token for the lab API")
	flags.String("store", "", "preference store path")
	flags.String("store-backend", "", "preference store backend: file, sqlite, memory")

	rootCmd.SetVersionTemplate("labsync {{.Version}}\n")
	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		config, err := LoadConfig(path)
		if err != nil {
			return err
		}
		a.config = config
	}
	a.config.UpdateFromFlags(cmd.Flags())

	if _, err := output.ParseFormat(a.config.Format); err != nil {
		return err
	}

	logger := NewLogger(a.config)
	a.logger = &logger
	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(a.NewWatchCommand())
	rootCmd.AddCommand(a.NewStatusCommand())
	rootCmd.AddCommand(a.NewServeCommand())
	rootCmd.AddCommand(a.NewPrefsCommand())
	rootCmd.AddCommand(a.NewVersionCommand())
}

// format returns the output format for cmd's stdout.
func (a *App) format(cmd *cobra.Command) output.Format {
	if a.config.Format != "" {
		return output.Format(a.config.Format)
	}
	if output.IsTerminal(cmd.OutOrStdout()) {
		return output.FormatTable
	}
	return output.FormatJSON
}

// ExitOnError prints err and exits with status 1. A nil err is ignored.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
