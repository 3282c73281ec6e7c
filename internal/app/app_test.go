package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/browser/browsertest"
	"github.com/ibeckermayer/snapbot/internal/config"
	"github.com/ibeckermayer/snapbot/internal/logging"
	"github.com/ibeckermayer/snapbot/internal/scheduler"
	"github.com/ibeckermayer/snapbot/internal/store"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// blankLauncher hands every run a fresh empty page, so logins fail fast at
// credential entry.
type blankLauncher struct {
	mu    sync.Mutex
	pages []*browsertest.Page
}

func (l *blankLauncher) Launch(context.Context, browser.Options) (browser.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := browsertest.New("about:blank")
	l.pages = append(l.pages, p)
	return p, nil
}

func (l *blankLauncher) launched() []*browsertest.Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*browsertest.Page(nil), l.pages...)
}

type fakeCreds struct {
	mu      sync.Mutex
	missing map[string]bool
	asked   []string
}

func (c *fakeCreds) Lookup(site, username string) (types.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, site+":"+username)
	if c.missing[site] {
		return types.Credential{}, config.ErrNoCredential
	}
	return types.Credential{Identifier: username, Secret: "pw"}, nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Capture.OutputDir = filepath.Join(t.TempDir(), "files")
	cfg.Login.SettleTimeout = config.Duration{Duration: 20 * time.Millisecond}
	cfg.Login.PollInterval = config.Duration{Duration: time.Millisecond}
	cfg.Login.TypeDelay = config.Duration{}
	cfg.Accounts = []config.AccountConfig{
		{Site: "twitter", Username: "alice"},
		{Site: "facebook", Username: "alice"},
		{Site: "twitter", Username: "bob"},
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, l browser.Launcher, creds CredentialSource, st *store.Store) (*App, *logging.Recorder) {
	rec := logging.NewRecorder()
	return New(cfg, Options{
		Credentials: creds,
		Store:       st,
		Launcher:    l,
		Logger:      zerolog.Nop(),
		Sink:        rec,
	}), rec
}

func TestRunAllOneSessionPerRun(t *testing.T) {
	l := &blankLauncher{}
	creds := &fakeCreds{}
	st, err := store.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()

	a, rec := newApp(t, testConfig(t), l, creds, st)
	results, err := a.RunAll(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"twitter:alice", "twitter:bob", "facebook:alice"}, creds.asked)
	assert.Equal(t, "twitter", results[0].Site)
	assert.Equal(t, "bob", results[1].Account)
	assert.Equal(t, "facebook", results[2].Site)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Contains(t, r.Error, "credential submission failed")
		assert.Equal(t, types.StateFailed, r.State)
	}

	pages := l.launched()
	require.Len(t, pages, 3)
	for _, p := range pages {
		assert.Equal(t, 1, p.Closed)
	}
	assert.GreaterOrEqual(t, rec.Index("Twitter Bot initialized."), 0)
	assert.GreaterOrEqual(t, rec.Index("Facebook Bot initialized."), 0)

	runs, err := st.RecentRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunSiteOnlyRunsThatSite(t *testing.T) {
	l := &blankLauncher{}
	a, _ := newApp(t, testConfig(t), l, &fakeCreds{}, nil)

	results, err := a.RunSite(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "twitter", r.Site)
	}
	assert.Len(t, l.launched(), 2)
}

func TestRunSiteWithoutAccountUsesCredentialSource(t *testing.T) {
	creds := &fakeCreds{}
	a, _ := newApp(t, testConfig(t), &blankLauncher{}, creds, nil)

	results, err := a.RunSite(context.Background(), "instagram")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"instagram:"}, creds.asked)
}

func TestMissingCredentialsSkipLaunch(t *testing.T) {
	l := &blankLauncher{}
	creds := &fakeCreds{missing: map[string]bool{"facebook": true}}
	a, _ := newApp(t, testConfig(t), l, creds, nil)

	results, err := a.RunAll(context.Background(), []string{"facebook"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "credentials unavailable")
	assert.Empty(t, l.launched())
}

func TestUnknownSite(t *testing.T) {
	a, _ := newApp(t, testConfig(t), &blankLauncher{}, &fakeCreds{}, nil)

	_, err := a.RunAll(context.Background(), []string{"myspace"})
	assert.ErrorContains(t, err, "unknown site")
}

func TestRunAllCancelled(t *testing.T) {
	l := &blankLauncher{}
	a, _ := newApp(t, testConfig(t), l, &fakeCreds{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := a.RunAll(ctx, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, results)
	assert.Empty(t, l.launched())
}

// cancellingLauncher cancels the run as soon as the first browser starts.
type cancellingLauncher struct {
	blankLauncher
	once   sync.Once
	cancel context.CancelFunc
}

func (l *cancellingLauncher) Launch(ctx context.Context, opts browser.Options) (browser.Driver, error) {
	l.once.Do(l.cancel)
	return l.blankLauncher.Launch(ctx, opts)
}

func TestRunAllStopsQueuedAccountsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := &cancellingLauncher{cancel: cancel}
	cfg := testConfig(t)
	cfg.Accounts = []config.AccountConfig{
		{Site: "twitter", Username: "alice"},
		{Site: "twitter", Username: "bob"},
	}
	a, _ := newApp(t, cfg, l, &fakeCreds{}, nil)

	results, err := a.RunAll(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].Account)
	assert.False(t, results[0].Success)
	assert.Len(t, l.launched(), 1)
}

func TestReloadConfig(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newApp(t, cfg, &blankLauncher{}, &fakeCreds{}, nil)

	next := config.Default()
	next.Accounts = []config.AccountConfig{{Site: "instagram", Username: "carol"}}
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, next.Save(path))

	require.NoError(t, a.ReloadConfig(path))
	assert.Equal(t, next.Accounts, a.Config().Accounts)

	assert.Error(t, a.ReloadConfig(filepath.Join(t.TempDir(), "missing.toml")))
	assert.Equal(t, next.Accounts, a.Config().Accounts, "failed reload keeps the old config")
}

func TestScheduleRegistersJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedules = []config.ScheduleConfig{
		{Cron: "0 7 * * *", Sites: []string{"twitter"}},
		{Cron: "30 18 * * *"},
	}
	a, _ := newApp(t, cfg, &blankLauncher{}, &fakeCreds{}, nil)

	s, err := scheduler.New("UTC", time.Minute, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Schedule(s))

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "schedule-1", jobs[0].Name)
	assert.Equal(t, "schedule-2", jobs[1].Name)
}
