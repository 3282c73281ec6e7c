package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/snapbot/internal/scheduler"
)

func newScheduleCommand(g *globals) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run captures on the configured cron schedules",
		Long: `Run in the foreground and capture accounts on the [[schedules]] in the
config file. Credentials must come from the environment or the keychain;
challenges are still asked on the terminal.

Send SIGHUP to reload the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			if len(s.cfg.Schedules) == 0 {
				return fmt.Errorf("no schedules configured")
			}

			h, err := newHost(cmd.Context(), cmd, s, false)
			if err != nil {
				return err
			}
			defer h.Close()

			sched, err := scheduler.New(s.cfg.Timezone, timeout, s.logger)
			if err != nil {
				return err
			}
			if err := h.app.Schedule(sched); err != nil {
				return err
			}
			sched.Start()
			printJobs(cmd, sched)

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			for {
				select {
				case <-cmd.Context().Done():
					<-sched.Stop().Done()
					return nil
				case <-hup:
					if err := h.app.ReloadConfig(s.path); err != nil {
						s.logger.Error().Err(err).Msg("Reload failed, keeping current schedules")
						continue
					}
					sched.RemoveAll()
					if err := h.app.Schedule(sched); err != nil {
						s.logger.Error().Err(err).Msg("Failed to apply reloaded schedules")
						continue
					}
					printJobs(cmd, sched)
				}
			}
		},
	}

	cmd.Flags().DurationVar(&timeout, "job-timeout", scheduler.DefaultJobTimeout, "upper bound on one scheduled run")
	return cmd
}

func printJobs(cmd *cobra.Command, s *scheduler.Scheduler) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tNEXT RUN")
	for _, j := range s.ListJobs() {
		fmt.Fprintf(tw, "%s\t%s\n", j.Name, j.NextRun.Format("2006-01-02 15:04 MST"))
	}
	tw.Flush()
}
