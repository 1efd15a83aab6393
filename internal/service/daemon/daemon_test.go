package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/oshokin/uberwacher/internal/config"
	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/gateway/telegram"
	"github.com/oshokin/uberwacher/internal/sensor"
)

var errTestNetwork = errors.New("test network error")

// quietInput is a sensor input that never sees motion.
type quietInput struct{}

func (quietInput) Read() gpio.Level { return gpio.Low }

func (quietInput) WaitForEdge(timeout time.Duration) bool {
	time.Sleep(timeout)

	return false
}

// busyInput is a sensor input stuck high, so it never settles.
type busyInput struct{}

func (busyInput) Read() gpio.Level { return gpio.High }

func (busyInput) WaitForEdge(timeout time.Duration) bool {
	time.Sleep(timeout)

	return false
}

// scriptedBot delivers a fixed set of commands and records replies.
type scriptedBot struct {
	// commands are handed to the handler once Run starts.
	commands []motion.Command
	// failAfter, when set, makes Run fail with errTestNetwork after that long.
	failAfter time.Duration
	// running is set while Run is active.
	running atomic.Bool
	// mu protects sent.
	mu sync.Mutex
	// sent holds replies per recipient, in order.
	sent map[motion.Recipient][]string
}

func (b *scriptedBot) Send(_ context.Context, recipient motion.Recipient, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sent == nil {
		b.sent = make(map[motion.Recipient][]string)
	}

	b.sent[recipient] = append(b.sent[recipient], text)

	return nil
}

func (b *scriptedBot) Run(ctx context.Context, handler telegram.Handler) error {
	b.running.Store(true)
	defer b.running.Store(false)

	for _, cmd := range b.commands {
		if err := handler.Handle(ctx, cmd); err != nil {
			handler.OnError(ctx, err)
		}
	}

	if b.failAfter > 0 {
		select {
		case <-time.After(b.failAfter):
			return errTestNetwork
		case <-ctx.Done():
			return nil
		}
	}

	<-ctx.Done()

	return nil
}

func (b *scriptedBot) Ready() bool {
	return b.running.Load()
}

func (b *scriptedBot) messages(recipient motion.Recipient) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.sent[recipient]...)
}

// testConfig returns validated settings rooted in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		BotToken:        "123:test",
		SubscribersFile: filepath.Join(t.TempDir(), "subscribers"),
		SettleWindow:    time.Second,
		DebounceWindow:  10 * time.Millisecond,
		PollInterval:    100 * time.Millisecond,
	}

	require.NoError(t, config.Validate(cfg))

	return cfg
}

// testComponents wires the quiet sensor and the given bot.
func testComponents(b *scriptedBot) components {
	return components{
		openSensor: func() (sensor.Input, error) {
			return quietInput{}, nil
		},
		connect: func(context.Context, string) (bot, error) {
			return b, nil
		},
	}
}

func TestRunSubscribesAndReplays(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AllowList = "alice"

		require.NoError(t, os.WriteFile(cfg.SubscribersFile, []byte("7\n"), 0o600))

		b := &scriptedBot{commands: []motion.Command{
			{Name: motion.CommandStart, Identity: "alice", Recipient: 42},
			{Name: motion.CommandStart, Identity: "mallory", Recipient: 66},
		}}

		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)

		go func() {
			errCh <- run(ctx, cfg, testComponents(b))
		}()

		time.Sleep(cfg.SettleWindow + time.Second)
		synctest.Wait()

		require.Equal(t, []string{motion.MessageSettingUp, motion.MessageArmed}, b.messages(42))
		require.Equal(t, []string{motion.MessageSettingUp, motion.MessageArmed}, b.messages(7))
		require.Equal(t, []string{motion.MessageAccessDenied}, b.messages(66))

		contents, err := os.ReadFile(cfg.SubscribersFile)
		require.NoError(t, err)
		require.Contains(t, string(contents), "42")
		require.NotContains(t, string(contents), "66")

		cancel()
		require.NoError(t, <-errCh)
	})
}

func TestRunGatewayFailureAbortsSettling(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.SubscribersFile, []byte("7\n"), 0o600))

		b := &scriptedBot{failAfter: 5 * time.Second}
		parts := testComponents(b)
		parts.openSensor = func() (sensor.Input, error) {
			return busyInput{}, nil
		}

		errCh := make(chan error, 1)

		go func() {
			errCh <- run(t.Context(), cfg, parts)
		}()

		// The replayed subscriber is still settling when the gateway fails.
		time.Sleep(time.Second)
		synctest.Wait()
		require.Equal(t, []string{motion.MessageSettingUp}, b.messages(7))

		time.Sleep(5 * time.Second)
		synctest.Wait()

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, errTestNetwork)
		default:
			require.FailNow(t, "run kept waiting for the sensor after the gateway failed")
		}

		require.Equal(t, []string{motion.MessageSettingUp}, b.messages(7))
	})
}

func TestRunConnectFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	parts := components{
		openSensor: func() (sensor.Input, error) {
			return quietInput{}, nil
		},
		connect: func(context.Context, string) (bot, error) {
			return nil, errTestNetwork
		},
	}

	err := run(t.Context(), cfg, parts)
	require.ErrorIs(t, err, errTestNetwork)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uberwacher.toml")

	require.NoError(t, os.WriteFile(path, []byte(
		"bot_token = \"from-file\"\ngpio_pin = 4\nsubscribers_file = \"/var/lib/uberwacher/subscribers\"\n",
	), 0o600))

	t.Setenv(config.TokenEnvVar, "from-env")

	// File values.
	cfg, err := LoadConfig(&Options{ConfigPath: path})
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.BotToken)
	require.Equal(t, 4, cfg.GPIOPin)
	require.Equal(t, config.DefaultLogLevel, cfg.LogLevel)

	// Flags win over the file.
	pin := 22
	cfg, err = LoadConfig(&Options{
		ConfigPath:      path,
		Token:           "from-flag",
		GPIOPin:         &pin,
		SubscribersFile: filepath.Join(dir, "subs"),
		LogLevel:        "debug",
	})
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.BotToken)
	require.Equal(t, 22, cfg.GPIOPin)
	require.Equal(t, filepath.Join(dir, "subs"), cfg.SubscribersFile)
	require.Equal(t, "debug", cfg.LogLevel)

	// The environment fills a missing token.
	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte("gpio_pin: 5\n"), 0o600))

	cfg, err = LoadConfig(&Options{ConfigPath: emptyPath})
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.BotToken)
	require.Equal(t, 5, cfg.GPIOPin)

	// Explicit settings file must exist.
	_, err = LoadConfig(&Options{ConfigPath: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}
