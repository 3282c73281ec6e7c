// Package bot runs one capture for one account on one site: launch a
// browser, log in, run the site's capture tasks and close the browser.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibeckermayer/snapbot/internal/auth"
	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/capture"
	"github.com/ibeckermayer/snapbot/internal/challenge"
	"github.com/ibeckermayer/snapbot/internal/logging"
	"github.com/ibeckermayer/snapbot/internal/sites"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// ErrNoResolver is what a challenge gets when the bot has nobody to ask.
var ErrNoResolver = errors.New("no challenge resolver configured")

// Recorder persists finished runs. *store.Store satisfies it.
type Recorder interface {
	SaveRun(ctx context.Context, r *types.RunResult) (int64, error)
}

// Config holds what a bot needs besides the site and credential.
type Config struct {
	Launcher browser.Launcher // defaults to browser.ChromeLauncher
	Browser  browser.Options
	Auth     auth.Settings
	Capture  capture.Settings
	Layout   capture.Layout

	Resolver          challenge.Resolver
	ChallengeAttempts int // answers asked for per challenge before giving up

	Sink     logging.Sink // operator-facing progress
	Recorder Recorder     // optional
}

// Bot captures one account. A Bot is single-use.
type Bot struct {
	site sites.Site
	cred types.Credential
	cfg  Config
}

// New creates a bot for cred on site.
func New(site sites.Site, cred types.Credential, cfg Config) *Bot {
	if cfg.Launcher == nil {
		cfg.Launcher = browser.ChromeLauncher{}
	}
	if cfg.Sink == nil {
		cfg.Sink = logging.Discard
	}
	if cfg.Resolver == nil {
		cfg.Resolver = challenge.ResolverFunc(func(context.Context, types.ChallengePrompt) (string, error) {
			return "", ErrNoResolver
		})
	}
	return &Bot{site: site, cred: cred, cfg: cfg}
}

func (b *Bot) logf(format string, args ...any) {
	b.cfg.Sink.Log(fmt.Sprintf(format, args...))
}

// Run performs the capture. The browser is closed on every path out,
// including cancellation of ctx. A failed login ends the run; failed capture
// tasks do not.
func (b *Bot) Run(ctx context.Context) types.RunResult {
	res := types.RunResult{
		Site:      b.site.Name,
		Account:   b.cred.Identifier,
		StartedAt: time.Now(),
	}

	if err := b.run(ctx, &res); err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	res.FinishedAt = time.Now()

	if b.cfg.Recorder != nil {
		// Record cancelled runs too.
		if _, err := b.cfg.Recorder.SaveRun(context.WithoutCancel(ctx), &res); err != nil {
			b.logf("Failed to record run: %v", err)
		}
	}
	return res
}

func (b *Bot) run(ctx context.Context, res *types.RunResult) error {
	opts := b.cfg.Browser
	opts.BlockNotifications = append(append([]string(nil), opts.BlockNotifications...), b.site.Notifications...)

	d, err := b.cfg.Launcher.Launch(ctx, opts)
	if err != nil {
		b.logf("Failed to start browser: %v", err)
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			b.logf("Error closing browser: %v", err)
		}
		b.logf("Browser closed.")
	}()
	b.logf("%s Bot initialized.", b.site.Title)

	resolver := challenge.Validating(b.cfg.Resolver, b.cfg.ChallengeAttempts)
	m := auth.New(b.site.Login, d, b.cred, resolver, b.cfg.Sink, b.cfg.Auth)
	err = m.Authenticate(ctx)
	res.State = m.State()
	if err != nil {
		return err
	}

	runner := capture.NewRunner(&capture.Env{
		Driver:   d,
		Sink:     b.cfg.Sink,
		Layout:   b.cfg.Layout,
		Site:     b.site.Name,
		Account:  b.cred.Identifier,
		Settings: b.cfg.Capture,
	})
	res.Tasks = runner.Run(ctx, b.site.Tasks(b.cred.Identifier))
	if err := ctx.Err(); err != nil {
		b.logf("Run cancelled after %d tasks.", len(res.Tasks))
		return fmt.Errorf("capture interrupted: %w", err)
	}

	b.logf("%s bot process completed.", b.site.Title)
	return nil
}
