package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/snapbot/internal/browser"
)

const fingerprintURL = "https://bot.sannysoft.com"

func newFingerprintCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Open bot.sannysoft.com with the capture browser settings",
		Long: `Open bot.sannysoft.com in a visible browser launched with the same options
the bots use, to audit what the sites can tell about it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			opts := s.cfg.BrowserOptions()
			opts.Headless = false // so you can see it

			s.logger.Info().Msg("Opening bot.sannysoft.com with capture browser options...")
			sess, err := browser.NewSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Navigate(cmd.Context(), fingerprintURL, browser.WaitLoad); err != nil {
				return fmt.Errorf("failed to navigate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Press Enter to close the browser...")
			entered := make(chan struct{})
			go func() {
				readLine(cmd.InOrStdin())
				close(entered)
			}()
			select {
			case <-entered:
			case <-cmd.Context().Done():
			}

			s.logger.Info().Msg("Done.")
			return nil
		},
	}
}
