package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/snapbot/internal/bot"
	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/capture"
	"github.com/ibeckermayer/snapbot/internal/challenge"
	"github.com/ibeckermayer/snapbot/internal/config"
	"github.com/ibeckermayer/snapbot/internal/logging"
	"github.com/ibeckermayer/snapbot/internal/scheduler"
	"github.com/ibeckermayer/snapbot/internal/sites"
	"github.com/ibeckermayer/snapbot/internal/store"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// CredentialSource resolves the login for an account.
type CredentialSource interface {
	Lookup(site, username string) (types.Credential, error)
}

// Options are the collaborators an App is built from.
type Options struct {
	Resolver    challenge.Resolver // answers challenges; usually a *challenge.Broker
	Credentials CredentialSource
	Store       *store.Store     // optional run history
	Launcher    browser.Launcher // defaults to Chrome
	Logger      zerolog.Logger
	Sink        logging.Sink // optional, in addition to the logger
}

// App holds the application state.
type App struct {
	mu sync.RWMutex

	// Immutable after creation.
	resolver challenge.Resolver
	creds    CredentialSource
	store    *store.Store
	launcher browser.Launcher
	logger   zerolog.Logger
	sink     logging.Sink

	// Mutable fields - use getSnapshot() for concurrent access.
	config *config.Config
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config *config.Config
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config: a.config,
	}
}

// New creates a new App instance.
func New(cfg *config.Config, opts Options) *App {
	if opts.Launcher == nil {
		opts.Launcher = browser.ChromeLauncher{}
	}
	return &App{
		config:   cfg,
		resolver: opts.Resolver,
		creds:    opts.Credentials,
		store:    opts.Store,
		launcher: opts.Launcher,
		logger:   opts.Logger,
		sink:     opts.Sink,
	}
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// job is one planned run.
type job struct {
	site sites.Site
	cred types.Credential
	err  error // credential lookup failure
}

// plan resolves the accounts to run for the named sites. Credentials are
// looked up here, one at a time, because the lookup may prompt. A site with
// no configured account gets one run whose username comes from the
// environment or the prompt.
func (a *App) plan(cfg *config.Config, names []string) ([]job, error) {
	if len(names) == 0 {
		names = configuredSites(cfg)
	}

	var jobs []job
	seen := make(map[string]bool)
	for _, name := range names {
		site, err := sites.Lookup(name)
		if err != nil {
			return nil, err
		}
		if seen[site.Name] {
			continue
		}
		seen[site.Name] = true

		accounts := cfg.AccountsFor(site.Name)
		if len(accounts) == 0 {
			accounts = []config.AccountConfig{{Site: site.Name}}
		}
		for _, acct := range accounts {
			j := job{site: site, cred: types.Credential{Identifier: acct.Username}}
			if a.creds == nil {
				j.err = fmt.Errorf("no credential source configured")
			} else if cred, err := a.creds.Lookup(site.Name, acct.Username); err != nil {
				j.err = err
			} else {
				j.cred = cred
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// configuredSites lists the sites with accounts, or every site when no
// account is configured.
func configuredSites(cfg *config.Config) []string {
	var names []string
	seen := make(map[string]bool)
	for _, acct := range cfg.Accounts {
		site, err := sites.Lookup(acct.Site)
		if err != nil || seen[site.Name] {
			continue
		}
		seen[site.Name] = true
		names = append(names, site.Name)
	}
	if len(names) == 0 {
		names = sites.Names()
	}
	return names
}

func (a *App) runJob(ctx context.Context, cfg *config.Config, j job) types.RunResult {
	log := a.logger.With().Str("site", j.site.Name).Str("account", j.cred.Identifier).Logger()

	if j.err != nil {
		log.Error().Err(j.err).Msg("No credentials, skipping run")
		now := time.Now()
		res := types.RunResult{
			Site:       j.site.Name,
			Account:    j.cred.Identifier,
			Error:      fmt.Sprintf("credentials unavailable: %v", j.err),
			StartedAt:  now,
			FinishedAt: now,
		}
		if a.store != nil {
			if _, err := a.store.SaveRun(context.WithoutCancel(ctx), &res); err != nil {
				log.Warn().Err(err).Msg("Failed to record run")
			}
		}
		return res
	}

	var sink logging.Sink = logging.NewZerologSink(a.logger, j.site.Name, j.cred.Identifier)
	if a.sink != nil {
		sink = logging.Multi(sink, a.sink)
	}

	bcfg := bot.Config{
		Launcher:          a.launcher,
		Browser:           cfg.BrowserOptions(),
		Auth:              cfg.AuthSettings(),
		Capture:           cfg.CaptureSettings(),
		Layout:            capture.Layout{Root: cfg.Capture.OutputDir},
		Resolver:          a.resolver,
		ChallengeAttempts: cfg.Login.ChallengeAttempts,
		Sink:              sink,
	}
	if a.store != nil {
		bcfg.Recorder = a.store
	}

	res := bot.New(j.site, j.cred, bcfg).Run(ctx)

	ev := log.Info()
	if !res.Success {
		ev = log.Error().Str("error", res.Error)
	}
	ev.Str("state", res.State.String()).
		Int("tasks", len(res.Tasks)).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Run finished")
	return res
}

// RunSite captures every configured account of one site, one after the
// other.
func (a *App) RunSite(ctx context.Context, name string) ([]types.RunResult, error) {
	s := a.getSnapshot()

	jobs, err := a.plan(s.config, []string{name})
	if err != nil {
		return nil, err
	}

	results := make([]types.RunResult, 0, len(jobs))
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, a.runJob(ctx, s.config, j))
	}
	a.prune(ctx, s.config)
	return results, ctx.Err()
}

// RunAll captures the named sites (every configured site when names is
// empty) concurrently, one browser per site. Accounts of the same site run in
// sequence. Results are in plan order.
func (a *App) RunAll(ctx context.Context, names []string) ([]types.RunResult, error) {
	s := a.getSnapshot()

	jobs, err := a.plan(s.config, names)
	if err != nil {
		return nil, err
	}

	bySite := make(map[string][]int)
	var order []string
	for i, j := range jobs {
		if _, ok := bySite[j.site.Name]; !ok {
			order = append(order, j.site.Name)
		}
		bySite[j.site.Name] = append(bySite[j.site.Name], i)
	}

	results := make([]types.RunResult, len(jobs))
	done := make([]bool, len(jobs))

	// A site never cancels its siblings; gctx ends only with ctx.
	g, gctx := errgroup.WithContext(ctx)
	for _, site := range order {
		idx := bySite[site]
		g.Go(func() error {
			for _, i := range idx {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = a.runJob(gctx, s.config, jobs[i])
				done[i] = true
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	out := make([]types.RunResult, 0, len(jobs))
	for i, r := range results {
		if done[i] {
			out = append(out, r)
		}
	}
	a.prune(ctx, s.config)
	return out, err
}

func (a *App) prune(ctx context.Context, cfg *config.Config) {
	if a.store == nil || cfg.Store.RetainDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Store.RetainDays)
	n, err := a.store.Prune(context.WithoutCancel(ctx), cutoff)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to prune run history")
		return
	}
	if n > 0 {
		a.logger.Debug().Int64("runs", n).Msg("Pruned run history")
	}
}

// Schedule registers one scheduler job per configured schedule.
func (a *App) Schedule(s *scheduler.Scheduler) error {
	cfg := a.getSnapshot().config

	for i, sc := range cfg.Schedules {
		names := sc.Sites
		name := fmt.Sprintf("schedule-%d", i+1)
		err := s.AddJob(name, sc.Cron, func(ctx context.Context) error {
			results, err := a.RunAll(ctx, names)
			if err != nil {
				return err
			}
			if n := countFailed(results); n > 0 {
				return fmt.Errorf("%d of %d runs failed", n, len(results))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func countFailed(results []types.RunResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

// ReloadConfig reloads the configuration from path (the default location
// when empty). Runs already in progress keep the config they started with.
func (a *App) ReloadConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.config = cfg
	a.mu.Unlock()

	a.logger.Info().Msg("Configuration reloaded")
	return nil
}
