package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/battdash/internal/app"
)

var version = "dev" // set by the linker

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "battdash: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	prefsPath  string
	host       string
	logLevel   string
	poll       time.Duration
}

func (g *globalFlags) options() app.Options {
	return app.Options{
		ConfigPath: g.configPath,
		PrefsPath:  g.prefsPath,
		Host:       g.host,
		LogLevel:   g.logLevel,
		PollEvery:  g.poll,
	}
}

// newRootCmd builds the command tree. Running without a subcommand starts the TUI.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	var theme, view string

	cmd := &cobra.Command{
		Use:   "battdash",
		Short: "Dashboard for a battery parallelator controller",
		Long: `battdash connects to a battery parallelator controller over its
WebSocket gateway, shows per-battery telemetry and lets you switch batteries
and edit the controller's thresholds.

Running without a subcommand launches the interactive TUI.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := g.options()
			opts.Theme = theme
			opts.View = view
			return app.Run(cmd.Context(), opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "config file (default ~/.config/battdash/config.toml)")
	flags.StringVar(&g.prefsPath, "prefs", "", "preferences file (default ~/.config/battdash/prefs.toml)")
	flags.StringVar(&g.host, "host", "", "controller host, overrides the config file")
	flags.StringVar(&g.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.DurationVar(&g.poll, "poll", 0, "how often to request fresh values (default 2s)")

	cmd.Flags().StringVar(&theme, "theme", "", "theme name, overrides saved preference")
	cmd.Flags().StringVar(&view, "view", "", "initial view (batteries, config, device-log, client-log)")

	cmd.AddCommand(
		newWatchCmd(g),
		newSnapshotCmd(g),
		newSwitchCmd(g),
		newLogCmd(g),
		newSetCmd(g),
		newSimCmd(g),
	)
	return cmd
}
