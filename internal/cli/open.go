package cli

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/snapbot/internal/config"
)

// openFile is replaced in tests.
var openFile = browser.OpenFile

func newOpenCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|output|history>",
		Short:     "Open the config file or an output location",
		Long:      "Open the config file in the default editor, or the screenshot or history directory in the file manager.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config", "output", "history"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := openTarget(g, cmd, args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("nothing to open: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opening %s\n", path)
			return openFile(path)
		},
	}
}

func openTarget(g *globals, cmd *cobra.Command, target string) (string, error) {
	switch target {
	case "config":
		if g.configPath != "" {
			return g.configPath, nil
		}
		return config.ConfigPath()
	case "output", "history":
		s, err := g.load(cmd)
		if err != nil {
			return "", err
		}
		if target == "output" {
			return s.cfg.Capture.OutputDir, nil
		}
		return s.cfg.StorePath()
	default:
		return "", fmt.Errorf("unknown target: %s", target)
	}
}
