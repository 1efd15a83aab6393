package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oshokin/uberwacher/internal/config"
	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/repository/subscribers"
)

// subscribersCmd lists the stored subscribers.
var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "List the chat ids stored in the subscriber file.",
	Long: `Prints every chat id found in the subscriber file, in file order.
Repeated ids are flagged: they are re-armed only once on startup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}

		if subscribersFile != "" {
			cfg.SubscribersFile = subscribersFile
		}

		repo := subscribers.NewFileRepository(cfg.SubscribersFile)

		recipients, err := repo.Reload(cmd.Context())
		if err != nil {
			return err
		}

		printSubscribers(cmd.OutOrStdout(), repo.Path(), recipients)

		return nil
	},
}

// printSubscribers renders recipients with duplicates highlighted.
func printSubscribers(w io.Writer, path string, recipients []motion.Recipient) {
	var (
		header    = color.New(color.Bold)
		id        = color.New(color.FgCyan)
		duplicate = color.New(color.FgYellow)
		seen      = make(map[motion.Recipient]struct{}, len(recipients))
	)

	_, _ = header.Fprintf(w, "%s: %d entries\n", path, len(recipients))

	if len(recipients) == 0 {
		_, _ = fmt.Fprintln(w, "no subscribers yet")
		return
	}

	for _, recipient := range recipients {
		if _, ok := seen[recipient]; ok {
			_, _ = duplicate.Fprintf(w, "  %s (duplicate)\n", recipient)
			continue
		}

		seen[recipient] = struct{}{}

		_, _ = id.Fprintf(w, "  %s\n", recipient)
	}

	_, _ = header.Fprintf(w, "%d unique\n", len(seen))
}
