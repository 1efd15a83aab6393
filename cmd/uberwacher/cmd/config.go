package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oshokin/uberwacher/internal/config"
)

var (
	// overwrite allows replacing an existing settings file.
	overwrite bool

	// errSettingsExist is returned when init would clobber a file.
	errSettingsExist = errors.New("settings file already exists, use --force to overwrite")

	// configCmd groups settings file helpers.
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the settings file.",
	}

	// configInitCmd writes a settings file filled with defaults.
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a settings file with default values.",
		Long: `Writes the default settings to path, YAML or TOML by extension.
The bot token is left empty: set it in the file or in UBERWACHER_BOT_TOKEN.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFilename
			if len(args) > 0 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("%s: %w", path, errSettingsExist)
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", path)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	configInitCmd.Flags().BoolVarP(&overwrite, "force", "f", false, "overwrite an existing settings file")
	configCmd.AddCommand(configInitCmd)
}
