// Package cli implements the snapbot command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/snapbot/internal/config"
	"github.com/ibeckermayer/snapbot/internal/logging"
)

var (
	// Version information, set at build time
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
	noColor    bool
	headful    bool
}

// session is the loaded configuration and logger for one command.
type session struct {
	cfg    *config.Config
	path   string
	logger zerolog.Logger
}

// load reads the config and applies flag overrides on top of it
// (flags > env > file > defaults).
func (g *globals) load(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.headful {
		cfg.Browser.Headless = false
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}

	lc := cfg.LoggingConfig()
	lc.NoColor = g.noColor
	logger, err := logging.New(lc, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, path: g.configPath, logger: logger}, nil
}

// NewRootCommand builds the snapbot command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "snapbot",
		Short: "Log in to social-media accounts and capture screenshots",
		Long: `snapbot logs in to Facebook, Instagram and X accounts with a real browser
and saves screenshots of profile, friends, posts and conversation pages.

Two-factor and verification challenges are asked on the terminal while the
login waits. Passwords are read from SNAPBOT_<SITE>_PASSWORD, the OS keychain
(service "snapbot", account "<site>:<username>") or a prompt, and are never
stored by snapbot.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default is the user config dir)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVar(&g.headful, "headful", false, "show the browser window")

	cmd.SetVersionTemplate(`snapbot {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newRunCommand(g))
	cmd.AddCommand(newRunAllCommand(g))
	cmd.AddCommand(newScheduleCommand(g))
	cmd.AddCommand(newHistoryCommand(g))
	cmd.AddCommand(newOpenCommand(g))
	cmd.AddCommand(newConfigCommand(g))
	cmd.AddCommand(newFingerprintCommand(g))

	return cmd
}

// Execute runs the command line and returns the process exit code. SIGINT
// and SIGTERM cancel the running command, which closes open browsers.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "interrupted")
		return 130
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
