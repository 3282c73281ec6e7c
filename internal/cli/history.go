package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/snapbot/internal/sites"
	"github.com/ibeckermayer/snapbot/internal/store"
)

func newHistoryCommand(g *globals) *cobra.Command {
	var (
		site   string
		limit  int
		runID  int64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Example: `  snapbot history
  snapbot history --site instagram --limit 5
  snapbot history --run 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			dbPath, err := s.cfg.StorePath()
			if err != nil {
				return err
			}
			st, err := store.New(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer st.Close()

			out := cmd.OutOrStdout()

			if runID > 0 {
				caps, err := st.Captures(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(caps)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TASK\tFILE\tERROR\tTIME")
				for _, c := range caps {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Task, c.Path, c.Error, c.Duration)
				}
				return tw.Flush()
			}

			if site != "" {
				found, err := sites.Lookup(site)
				if err != nil {
					return err
				}
				site = found.Name
			}
			runs, err := st.RecentRuns(cmd.Context(), site, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(out).Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSITE\tACCOUNT\tRESULT\tFILES\tTIME")
			for _, r := range runs {
				result := "ok"
				if !r.Success {
					result = "FAILED (" + r.State + "): " + r.Error
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Site, r.Account,
					result, r.Files, r.Duration().Round(time.Second))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "only show runs of this site")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().Int64Var(&runID, "run", 0, "show the captures of one run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
