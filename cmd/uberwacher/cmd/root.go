package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/uberwacher/internal/config"
	"github.com/oshokin/uberwacher/internal/service/daemon"
	"github.com/oshokin/uberwacher/internal/version"
)

var (
	// configPath to the YAML or TOML settings file.
	configPath string
	// subscribersFile overrides the subscriber list location.
	subscribersFile string
	// token overrides the bot token.
	token string
	// gpioPin overrides the sensor pin.
	gpioPin int
	// allowList is a comma-separated list of handles or a file path.
	allowList string
	// statusAddress enables the gRPC status server.
	statusAddress string
	// logLevel overrides the log level.
	logLevel string

	// rootCmd runs the motion alert bot.
	rootCmd = &cobra.Command{
		Use:   "uberwacher",
		Short: "Telegram bot that reports PIR motion sensor alerts.",
		Long: `Runs a Telegram bot wired to a PIR motion sensor on a GPIO pin.

Authorized users send /start to subscribe. The sensor settles first,
then every detected motion is reported to each subscriber.
Subscribers are kept in a plain file and re-armed on restart.

The bot token is taken from --token, the settings file or the
UBERWACHER_BOT_TOKEN environment variable (a .env file is honoured).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &daemon.Options{
				ConfigPath:      configPath,
				Token:           token,
				AllowList:       allowList,
				SubscribersFile: subscribersFile,
				StatusAddress:   statusAddress,
				LogLevel:        logLevel,
			}

			// Zero is a valid BCM pin, only an explicit flag overrides the file.
			if cmd.Flags().Changed("gpio-pin") {
				options.GPIOPin = &gpioPin
			}

			return daemon.Run(ctx, options)
		},
	}
)

// Execute runs the uberwacher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to settings file, YAML or TOML (default "+config.DefaultConfigFilename+" when present)")
	rootCmd.PersistentFlags().StringVar(&subscribersFile, "subscribers", "",
		"path to the subscriber list (default "+config.DefaultSubscribersFilename+")")

	rootCmd.Flags().StringVarP(&token, "token", "t", "", "Telegram bot token")
	rootCmd.Flags().IntVar(&gpioPin, "gpio-pin", config.DefaultGPIOPin, "BCM number of the PIR sensor pin")
	rootCmd.Flags().StringVar(&allowList, "whitelist", "",
		"comma-separated Telegram usernames or a file with one per line (empty allows everyone)")
	rootCmd.Flags().StringVar(&statusAddress, "status-addr", "", "listen address of the gRPC health server, e.g. :50051")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(subscribersCmd, configCmd)
}
