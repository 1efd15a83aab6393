package daemon

import (
	"context"
	"fmt"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/uberwacher/internal/access"
	"github.com/oshokin/uberwacher/internal/api/grpc/status"
	"github.com/oshokin/uberwacher/internal/config"
	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/gateway/telegram"
	"github.com/oshokin/uberwacher/internal/logger"
	"github.com/oshokin/uberwacher/internal/repository/subscribers"
	"github.com/oshokin/uberwacher/internal/sensor"
	"github.com/oshokin/uberwacher/internal/service/coordinator"
	"github.com/oshokin/uberwacher/internal/service/dispatcher"
)

// Options carries command line overrides. Zero values keep the settings file.
type Options struct {
	// ConfigPath specifies the settings file, YAML or TOML.
	ConfigPath string
	// Token overrides the bot token.
	Token string
	// GPIOPin overrides the sensor pin when not nil.
	GPIOPin *int
	// AllowList overrides the allow list: comma-separated handles or a file path.
	AllowList string
	// SubscribersFile overrides the subscriber list location.
	SubscribersFile string
	// StatusAddress overrides the gRPC status listen address.
	StatusAddress string
	// LogLevel overrides the log level.
	LogLevel string
}

// bot is the part of the Telegram gateway the daemon drives.
type bot interface {
	dispatcher.Messenger
	Run(ctx context.Context, handler telegram.Handler) error
	Ready() bool
}

// components builds the hardware and network facing parts.
type components struct {
	// openSensor acquires the GPIO input.
	openSensor sensor.OpenFunc
	// connect authenticates with the chat platform.
	connect func(ctx context.Context, token string) (bot, error)
}

// Run loads settings, makes sure no other daemon is running and serves
// until ctx is cancelled or the gateway fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "uberwacher")

	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}

	if err = logger.ApplyLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("apply log level: %w", err)
	}

	if err = ensureSingleInstance(ps.Processes); err != nil {
		return err
	}

	return run(ctx, cfg, components{
		openSensor: sensor.GPIOOpener(cfg.GPIOPin),
		connect: func(ctx context.Context, token string) (bot, error) {
			gw, err := telegram.New(ctx, token)
			if err != nil {
				return nil, err
			}

			return gw, nil
		},
	})
}

// LoadConfig reads .env and the settings file, then applies opts and the
// token environment fallback. The result is validated.
func LoadConfig(opts *Options) (*config.Config, error) {
	if opts == nil {
		opts = new(Options)
	}

	config.LoadDotEnv()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.Token != "" {
		cfg.BotToken = opts.Token
	}

	if opts.GPIOPin != nil {
		cfg.GPIOPin = *opts.GPIOPin
	}

	if opts.AllowList != "" {
		cfg.AllowList = opts.AllowList
	}

	if opts.SubscribersFile != "" {
		cfg.SubscribersFile = opts.SubscribersFile
	}

	if opts.StatusAddress != "" {
		cfg.StatusAddress = opts.StatusAddress
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	cfg.ApplyEnvironment()

	if err = config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return cfg, nil
}

// run wires the components and blocks until ctx ends or something fatal happens.
func run(ctx context.Context, cfg *config.Config, parts components) error {
	allowList, err := access.ParseAllowList(cfg.AllowList)
	if err != nil {
		return fmt.Errorf("parse allow list: %w", err)
	}

	gate := access.NewGate(allowList)
	store := subscribers.NewFileRepository(cfg.SubscribersFile)

	gw, err := parts.connect(ctx, cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := sensor.NewHub(ctx, parts.openSensor, sensor.WithPollInterval(cfg.PollInterval))

	defer func() {
		if closeErr := hub.Close(); closeErr != nil {
			logger.Warnf(ctx, "Failed to release sensor: %v", closeErr)
		}
	}()

	spawn := func(recipient motion.Recipient) coordinator.Starter {
		watcher := sensor.NewWatcher(hub,
			sensor.WithSettleWindow(cfg.SettleWindow),
			sensor.WithDebounceWindow(cfg.DebounceWindow),
		)

		return dispatcher.New(recipient, gw, watcher)
	}

	group, gctx := errgroup.WithContext(ctx)

	// Dispatchers follow the group: a failed sibling aborts pending settles.
	coord := coordinator.New(gctx, gate, store, gw, spawn,
		coordinator.WithReplayConcurrency(cfg.ReplayConcurrency),
	)
	defer coord.Close()

	if cfg.StatusAddress != "" {
		srv := status.NewServer(map[string]status.Probe{
			status.ServiceSensor:  hub.Ready,
			status.ServiceGateway: gw.Ready,
		})

		group.Go(func() error {
			return srv.Serve(gctx, cfg.StatusAddress)
		})
	}

	// Re-arming waits out settle windows, commands must not queue behind it.
	group.Go(func() error {
		if replayErr := coord.Replay(gctx); replayErr != nil {
			logger.Errorf(gctx, "Failed to re-arm stored subscribers: %v", replayErr)
		}

		return nil
	})

	logger.InfoKV(ctx, "Starting bot",
		"gpio_pin", cfg.GPIOPin,
		"subscribers_file", store.Path(),
		"restricted", gate.Restricted(),
		"allowed", gate.Size(),
	)

	group.Go(func() error {
		return gw.Run(gctx, coord)
	})

	if err = group.Wait(); err != nil {
		return fmt.Errorf("run bot: %w", err)
	}

	logger.Info(ctx, "Bot stopped")

	return nil
}
