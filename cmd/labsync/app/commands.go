package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/labsync"
	"github.com/agentstation/labsync/internal/cmd/output"
	"github.com/agentstation/labsync/internal/server"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/projection"
)

// NewWatchCommand creates the watch command.
func (a *App) NewWatchCommand() *cobra.Command {
	var noJobs bool
	cmd := &cobra.Command{
		Use:     "watch <lab-id>",
		GroupID: "core",
		Short:   "Print lab changes and notifications until interrupted",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []labsync.Option
			if noJobs {
				extra = append(extra, labsync.WithJobNotifications(false))
			}
			client, err := a.NewClient(extra...)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			w := output.NewEventWriter(cmd.OutOrStdout(), a.format(cmd), a.config.NoColor)
			client.OnConnectionState(w.Connection)
			client.OnResync(w.Resync)
			client.OnNodeState(w.Node)
			client.OnLinkState(w.Link)
			client.OnLabState(w.Lab)
			client.OnNotification(w.Notification)

			client.LoadPreferences(ctx)
			if err := client.Connect(ctx, args[0]); err != nil {
				return err
			}
			<-ctx.Done()
			client.Disconnect()
			return nil
		},
	}
	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "do not raise notifications for job progress")
	return cmd
}

// NewStatusCommand creates the status command.
func (a *App) NewStatusCommand() *cobra.Command {
	var timeout, settle time.Duration
	cmd := &cobra.Command{
		Use:     "status <lab-id>",
		GroupID: "core",
		Short:   "Print the current lab state and exit",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.NewClient(labsync.WithJobNotifications(false))
			if err != nil {
				return err
			}
			snap, err := awaitInitialState(cmd.Context(), client, args[0], timeout, settle)
			if err != nil {
				return err
			}

			format := a.format(cmd)
			out := cmd.OutOrStdout()
			switch format {
			case output.FormatJSON, output.FormatYAML:
				return output.NewFormatter(format).Format(out, snap)
			}
			if _, err := fmt.Fprint(out, output.Summary(snap)); err != nil {
				return err
			}
			return output.NewFormatter(format).Format(out, []output.Data{
				output.NodesTable(snap.Nodes),
				output.LinksTable(snap.Links),
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the initial state")
	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "how long to collect messages after the initial state")
	return cmd
}

// awaitInitialState connects, waits for the first full state plus a settle
// period, then disconnects and returns the snapshot.
func awaitInitialState(ctx context.Context, client labsync.Client, labID string, timeout, settle time.Duration) (projection.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	initial := make(chan struct{}, 1)
	client.OnResync(func(projection.Snapshot) {
		select {
		case initial <- struct{}{}:
		default:
		}
	})
	if err := client.Connect(ctx, labID); err != nil {
		return projection.Snapshot{}, err
	}
	defer client.Disconnect()

	select {
	case <-initial:
	case <-ctx.Done():
		st := client.Status()
		if st.LastError != nil {
			return projection.Snapshot{}, errors.WrapResource("receive", "lab state", labID, st.LastError)
		}
		return projection.Snapshot{}, errors.WrapResource("receive", "lab state", labID, ctx.Err())
	}

	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	return client.Snapshot(), nil
}

// NewServeCommand creates the serve command.
func (a *App) NewServeCommand() *cobra.Command {
	cfg := server.DefaultConfig()
	var listen string
	cmd := &cobra.Command{
		Use:     "serve <lab-id>",
		GroupID: "core",
		Short:   "Relay lab state and notifications over HTTP, SSE and WebSocket",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.config.Listen
			}
			if err := applyListen(&cfg, listen); err != nil {
				return err
			}
			if cfg.APIKey == "" {
				cfg.APIKey = a.config.APIKey
			}
			cfg.AuthEnabled = cfg.APIKey != ""
			cfg.CORSEnabled = cfg.CORSEnabled || a.config.CORS || len(cfg.CORSOrigins) > 0
			if cfg.RateLimit == 0 {
				cfg.RateLimit = a.config.RateLimit
			}

			client, err := a.NewClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			srv := server.New(client, cfg, a.logger)

			client.LoadPreferences(ctx)
			if err := client.Connect(ctx, args[0]); err != nil {
				return err
			}
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, localhost:8080)")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", "", "require this API key on relay requests")
	cmd.Flags().BoolVar(&cfg.CORSEnabled, "cors", false, "enable CORS for all origins")
	cmd.Flags().StringSliceVar(&cfg.CORSOrigins, "cors-origins", nil, "allowed CORS origins (implies --cors)")
	cmd.Flags().IntVar(&cfg.RateLimit, "rate-limit", 0, "requests per minute per client, 0 disables")
	cmd.Flags().StringVar(&cfg.PathPrefix, "prefix", cfg.PathPrefix, "API path prefix")
	return cmd
}

// NewPrefsCommand creates the prefs command group.
func (a *App) NewPrefsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		GroupID: "management",
		Short:   "Show or change notification and canvas preferences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.NewClient()
			if err != nil {
				return err
			}
			prefs, src := client.LoadPreferences(cmd.Context())
			a.logger.Debug().Str("source", string(src)).Msg("Preferences loaded")
			return a.printPreferences(cmd, prefs)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <path>=<value>...",
		Short: "Change preferences, for example toasts.position=top-left bell.max_history=20",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			np, cp, err := preferences.ParseAssignments(args)
			if err != nil {
				return err
			}
			client, err := a.NewClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			current, _ := client.LoadPreferences(ctx)

			if !np.Empty() {
				if err := np.Apply(current.NotificationSettings).Validate(); err != nil {
					return err
				}
				if err := client.UpdateNotificationSettings(ctx, np); err != nil {
					return errors.WrapResource("save", "notification settings", "", err)
				}
			}
			if !cp.Empty() {
				if err := client.UpdateCanvasSettings(ctx, cp); err != nil {
					return errors.WrapResource("save", "canvas settings", "", err)
				}
			}
			return a.printPreferences(cmd, client.Preferences())
		},
	})
	return cmd
}

func (a *App) printPreferences(cmd *cobra.Command, prefs preferences.UserPreferences) error {
	format := a.format(cmd)
	switch format {
	case output.FormatJSON, output.FormatYAML:
		return output.NewFormatter(format).Format(cmd.OutOrStdout(), prefs)
	}
	data, err := output.PreferencesTable(prefs)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(cmd.OutOrStdout(), data)
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("labsync %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}
