package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/carlosprados/agentmgr/internal/api"
	"github.com/carlosprados/agentmgr/internal/config"
	"github.com/carlosprados/agentmgr/internal/dispatch"
	"github.com/carlosprados/agentmgr/internal/publish"
	"github.com/carlosprados/agentmgr/internal/version"
	"github.com/carlosprados/agentmgr/internal/watch"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentmgr %s (%s)\n", version.Version, version.Commit)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the agent status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openManager(cmd.Context(), g)
			if err != nil {
				return err
			}
			st, err := m.Status()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Println(st.Message)
			fmt.Printf("  Layout:         %s\n", m.Layout())
			fmt.Printf("  Enabled:        %t\n", st.Enabled)
			fmt.Printf("  Applying:       %t\n", st.Applying)
			fmt.Printf("  Daemon present: %t\n", st.DaemonPresent)
			if st.LastRun > 0 {
				fmt.Printf("  Last run:       %s\n", time.Unix(st.LastRun, 0).Format(time.RFC3339))
			}
			if st.DisableMessage != "" {
				fmt.Printf("  Disabled:       %s\n", st.DisableMessage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func newEnableCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Remove the agent disable lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openManager(cmd.Context(), g)
			if err != nil {
				return err
			}
			if err := m.Enable(); err != nil {
				return err
			}
			fmt.Println("Agent enabled")
			return nil
		},
	}
}

func newDisableCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disable [message...]",
		Short: "Disable the agent with an optional reason",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openManager(cmd.Context(), g)
			if err != nil {
				return err
			}
			msg, err := m.Disable(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if msg != "" {
				fmt.Printf("Agent disabled: %s\n", msg)
			} else {
				fmt.Println("Agent disabled")
			}
			return nil
		},
	}
}

func newRunOnceCmd(g *globalFlags) *cobra.Command {
	var (
		noop         bool
		tags         []string
		environment  string
		server       string
		foreground   bool
		signalDaemon bool
		rawOptions   string
	)
	cmd := &cobra.Command{
		Use:   "runonce",
		Short: "Request a single agent run",
		Long: `Request a single agent run.

With --foreground the run happens in this process and its exit code is
returned. Otherwise an idle daemon is woken with SIGUSR1, or a detached
one-off run is spawned when no daemon is running.

--options takes a JSON object with the keys noop, signal_daemon,
foreground_run, tags, environment and server. Flags given explicitly
override the same keys.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := map[string]any{}
			if rawOptions != "" {
				if err := json.Unmarshal([]byte(rawOptions), &opts); err != nil {
					return fmt.Errorf("parse --options: %w", err)
				}
			}
			f := cmd.Flags()
			if f.Changed("noop") {
				opts["noop"] = noop
			}
			if f.Changed("tags") {
				opts["tags"] = tags
			}
			if f.Changed("environment") {
				opts["environment"] = environment
			}
			if f.Changed("server") {
				opts["server"] = server
			}
			if f.Changed("foreground") {
				opts["foreground_run"] = foreground
			}
			if f.Changed("signal-daemon") {
				opts["signal_daemon"] = signalDaemon
			}

			m, _, err := openManager(cmd.Context(), g)
			if err != nil {
				return err
			}
			res, err := m.RunOnceMap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return reportRun(res)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&noop, "noop", false, "run in no-op mode")
	f.StringSliceVar(&tags, "tags", nil, "only apply resources with these tags")
	f.StringVar(&environment, "environment", "", "agent environment")
	f.StringVar(&server, "server", "", "puppet master as host or host:port")
	f.BoolVar(&foreground, "foreground", false, "run in the foreground and wait for it")
	f.BoolVar(&signalDaemon, "signal-daemon", true, "wake an idle daemon instead of spawning a run")
	f.StringVar(&rawOptions, "options", "", "run options as a JSON object")
	return cmd
}

func reportRun(res dispatch.Result) error {
	switch res.Strategy {
	case dispatch.StrategyForeground:
		_, _ = os.Stdout.Write(res.Output)
		if res.ExitCode != 0 {
			return exitCodeError{code: res.ExitCode}
		}
	case dispatch.StrategySignal:
		fmt.Printf("Signalled the agent daemon at pid %d (dispatch %s)\n", res.PID, res.ID)
	case dispatch.StrategyBackground:
		if res.Fallback {
			fmt.Println("Daemon pid was stale, spawned a background run instead")
		}
		fmt.Printf("Started a background run at pid %d (dispatch %s)\n", res.PID, res.ID)
	}
	return nil
}

func newResourcesCmd(g *globalFlags) *cobra.Command {
	var (
		check string
		count bool
	)
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List the resources the agent manages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openManager(cmd.Context(), g)
			if err != nil {
				return err
			}
			switch {
			case check != "":
				ok, err := m.ManagingResource(check)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Printf("%s is not managed\n", check)
					return exitCodeError{code: 1}
				}
				fmt.Printf("%s is managed\n", check)
			case count:
				n, err := m.ManagedResourcesCount()
				if err != nil {
					return err
				}
				fmt.Println(n)
			default:
				res, err := m.ManagedResources()
				if err != nil {
					return err
				}
				for _, r := range res {
					fmt.Println(r)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&check, "check", "", "report whether this resource (e.g. File[/etc/motd]) is managed")
	cmd.Flags().BoolVar(&count, "count", false, "print only the number of managed resources")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		listen   string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the agent status and export it",
		Long: `Poll the agent status, update Prometheus metrics, publish snapshots to
the configured NATS subject and MQTT topic, and serve /healthz, /v1/status
and /metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m, cfg, err := openManager(ctx, g)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				if interval, err = cfg.Watch.PollInterval(); err != nil {
					return err
				}
			}
			if interval <= 0 {
				return fmt.Errorf("invalid interval %s", interval)
			}
			if !cmd.Flags().Changed("listen") {
				listen = cfg.Watch.Listen
			}
			return runWatch(ctx, m, cfg.Watch, interval, listen)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "poll interval (default from config)")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address, empty disables the server (default from config)")
	return cmd
}

func runWatch(ctx context.Context, src watch.Source, wcfg config.Watch, interval time.Duration, listen string) error {
	pubs, err := publish.Open(wcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pubs.Close(); err != nil {
			log.Warn().Err(err).Msg("publisher close error")
		}
	}()

	if pubs.Len() == 0 {
		log.Info().Msg("no status publishers configured")
	} else {
		log.Info().Int("transports", pubs.Len()).Msg("publishing status snapshots")
	}
	w := watch.New(src, pubs, interval)

	var srv *http.Server
	if listen != "" {
		srv = &http.Server{Addr: listen, Handler: api.Router(w, time.Now()), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", listen).Str("version", version.Version).Msg("agentmgr watch listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
	}

	_ = w.Run(ctx)
	log.Info().Msg("shutdown signal received, draining...")

	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown error")
		}
	}
	log.Info().Msg("bye")
	return nil
}
