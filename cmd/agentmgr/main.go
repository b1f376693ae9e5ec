// Package main is the entrypoint for the agentmgr CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/carlosprados/agentmgr/internal/config"
	"github.com/carlosprados/agentmgr/internal/manager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// exitCodeError ends the process with code without printing anything.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	layout     string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "agentmgr",
		Short: "Inspect and drive the local Puppet agent",
		Long: `agentmgr reads the Puppet agent's lock, pid and report files to tell
whether it is enabled, applying, idling or stopped, and requests single
runs by foreground execution, by waking the daemon, or by spawning a
detached background run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(g.logLevel, g.logFormat)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default $AGENTMGR_CONFIG or "+config.DefaultPath+")")
	pf.StringVar(&g.layout, "layout", "", "state layout: auto, v2 or v3 (overrides the config file)")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "console", "log format: console or json")

	rootCmd.AddCommand(
		newStatusCmd(g),
		newEnableCmd(g),
		newDisableCmd(g),
		newRunOnceCmd(g),
		newResourcesCmd(g),
		newWatchCmd(g),
		newVersionCmd(),
	)
	return rootCmd
}

func setupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	switch format {
	case "console":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format %q (want console or json)", format)
	}
	return nil
}

// loadConfig reads .env files, the config file and the --layout override.
func loadConfig(g *globalFlags) (config.Config, error) {
	config.LoadDotEnvDefault()
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if g.layout != "" {
		cfg.Layout = g.layout
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func openManager(ctx context.Context, g *globalFlags) (*manager.Manager, config.Config, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, config.Config{}, err
	}
	m, err := manager.New(ctx, cfg, manager.Options{})
	if err != nil {
		return nil, config.Config{}, err
	}
	return m, cfg, nil
}
