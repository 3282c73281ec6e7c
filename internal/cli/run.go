package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/snapbot/internal/app"
	"github.com/ibeckermayer/snapbot/internal/challenge"
	"github.com/ibeckermayer/snapbot/internal/config"
	"github.com/ibeckermayer/snapbot/internal/sites"
	"github.com/ibeckermayer/snapbot/internal/store"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// runFlags override the config for a single invocation.
type runFlags struct {
	username string
	output   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "capture only this account")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "screenshot directory (overrides capture.output_dir)")
}

func (f *runFlags) apply(cfg *config.Config, site string) error {
	if f.output != "" {
		cfg.Capture.OutputDir = f.output
	}
	if f.username != "" {
		if site == "" {
			return fmt.Errorf("--username needs a site")
		}
		cfg.Accounts = []config.AccountConfig{{Site: site, Username: f.username}}
	}
	return nil
}

// host wires an App to the terminal: credentials may be prompted for and
// challenges are asked through a broker served on the terminal.
type host struct {
	app   *app.App
	store *store.Store
	stop  context.CancelFunc
	done  chan struct{}
}

func (h *host) Close() {
	h.stop()
	<-h.done
	if h.store != nil {
		h.store.Close()
	}
}

// newHost builds the App for a command. With interactive unset no prompt is
// ever shown for credentials; challenges are still asked on the terminal.
func newHost(ctx context.Context, cmd *cobra.Command, s *session, interactive bool) (*host, error) {
	dbPath, err := s.cfg.StorePath()
	if err != nil {
		return nil, err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	ctx, stop := context.WithCancel(ctx)
	requests := make(chan challenge.Request, 16)
	broker := challenge.NewBroker(s.cfg.Login.ChallengeTimeout.Duration, func(r challenge.Request) {
		select {
		case requests <- r:
		default:
			s.logger.Warn().Str("session", r.Prompt.Session).Msg("Too many pending challenges; request will time out")
		}
	})

	terminal := challenge.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := challenge.Serve(ctx, broker, requests, terminal); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Challenge prompts stopped")
		}
	}()

	var prompt func(string, bool) (string, error)
	if interactive {
		prompt = terminalPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	a := app.New(s.cfg, app.Options{
		Resolver:    broker,
		Credentials: config.NewCredentials(prompt),
		Store:       st,
		Logger:      s.logger,
	})
	return &host{app: a, store: st, stop: stop, done: done}, nil
}

func newRunCommand(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <site>",
		Short: "Capture the configured accounts of one site",
		Long: fmt.Sprintf(`Log in to every configured account of a site and capture its pages.

Supported sites: %s ("x" is accepted for twitter).`, strings.Join(sites.Names(), ", ")),
		Example: `  snapbot run twitter
  snapbot run instagram -u alice --headful`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: sites.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := sites.Lookup(args[0])
			if err != nil {
				return err
			}
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			if err := f.apply(s.cfg, site.Name); err != nil {
				return err
			}

			h, err := newHost(cmd.Context(), cmd, s, true)
			if err != nil {
				return err
			}
			defer h.Close()

			results, err := h.app.RunSite(cmd.Context(), site.Name)
			printResults(cmd.OutOrStdout(), results)
			if err != nil {
				return err
			}
			return failures(results)
		},
	}
	f.register(cmd)
	return cmd
}

func newRunAllCommand(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run-all [site...]",
		Short: "Capture several sites at once",
		Long: `Capture every configured account, one browser per site, with the sites
running concurrently. Name sites to limit the run to them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			if f.username != "" && len(args) != 1 {
				return fmt.Errorf("--username needs exactly one site")
			}
			site := ""
			if f.username != "" {
				found, err := sites.Lookup(args[0])
				if err != nil {
					return err
				}
				site = found.Name
			}
			if err := f.apply(s.cfg, site); err != nil {
				return err
			}

			h, err := newHost(cmd.Context(), cmd, s, true)
			if err != nil {
				return err
			}
			defer h.Close()

			results, err := h.app.RunAll(cmd.Context(), args)
			printResults(cmd.OutOrStdout(), results)
			if err != nil {
				return err
			}
			return failures(results)
		},
	}
	f.register(cmd)
	return cmd
}

func printResults(w io.Writer, results []types.RunResult) {
	if len(results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tACCOUNT\tRESULT\tFILES\tTIME")
	for _, r := range results {
		files := 0
		for _, t := range r.Tasks {
			files += len(t.Files)
		}
		status := "ok"
		if !r.Success {
			status = "FAILED: " + r.Error
		} else if n := failedTasks(r); n > 0 {
			status = fmt.Sprintf("ok (%d tasks failed)", n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Site, r.Account, status, files,
			r.FinishedAt.Sub(r.StartedAt).Round(100*time.Millisecond))
	}
	tw.Flush()
}

func failedTasks(r types.RunResult) int {
	n := 0
	for _, t := range r.Tasks {
		if !t.OK() {
			n++
		}
	}
	return n
}

func failures(results []types.RunResult) error {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d of %d runs failed", n, len(results))
	}
	return nil
}
