package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/logger"
)

// Handler receives inbound commands and the errors they produce.
type Handler interface {
	Handle(ctx context.Context, cmd motion.Command) error
	OnError(ctx context.Context, err error)
}

// botAPI is the subset of *tgbotapi.BotAPI the gateway uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

const (
	// DefaultPollTimeout is the long-polling timeout in seconds.
	DefaultPollTimeout = 60

	// deployedMessage is logged once polling has started.
	deployedMessage = "BOT DEPLOYED. Ctrl+C to terminate"
)

var (
	// errTokenRequired is returned when no bot token is configured.
	errTokenRequired = errors.New("bot token must be provided")
	// errHandlerPanic wraps a panic recovered from a command handler.
	errHandlerPanic = errors.New("command handler panicked")
)

// Gateway connects the daemon to Telegram.
type Gateway struct {
	// bot is the Bot API client.
	bot botAPI
	// username is the bot's own handle, for logs.
	username string
	// pollTimeout is the long-polling timeout in seconds.
	pollTimeout int

	// running is true while Run receives updates.
	running atomic.Bool
	// handlers tracks in-flight command goroutines.
	handlers sync.WaitGroup
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPollTimeout overrides DefaultPollTimeout.
func WithPollTimeout(seconds int) Option {
	return func(g *Gateway) {
		if seconds > 0 {
			g.pollTimeout = seconds
		}
	}
}

// New authenticates with token and returns a gateway.
func New(ctx context.Context, token string, opts ...Option) (*Gateway, error) {
	if token == "" {
		return nil, errTokenRequired
	}

	if err := tgbotapi.SetLogger(botLogger{ctx: logger.WithName(ctx, "telegram")}); err != nil {
		return nil, fmt.Errorf("set bot logger: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w: %w", motion.ErrGateway, err)
	}

	g := newGateway(bot, bot.Self.UserName, opts...)

	logger.InfoKV(ctx, "Authorized on Telegram", "bot", g.username)

	return g, nil
}

// newGateway wraps an existing client.
func newGateway(bot botAPI, username string, opts ...Option) *Gateway {
	g := &Gateway{
		bot:         bot,
		username:    username,
		pollTimeout: DefaultPollTimeout,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Send delivers Markdown text to recipient.
func (g *Gateway) Send(ctx context.Context, recipient motion.Recipient, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send to %s: %w: %w", recipient, motion.ErrGateway, err)
	}

	msg := tgbotapi.NewMessage(int64(recipient), text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := g.bot.Send(msg); err != nil {
		return fmt.Errorf("send to %s: %w: %w", recipient, motion.ErrGateway, err)
	}

	return nil
}

// Ready reports whether the gateway is receiving updates.
func (g *Gateway) Ready() bool {
	return g.running.Load()
}

// Run receives updates until ctx is cancelled. Every command is handled in
// its own goroutine so a slow handler never blocks the update loop.
// Handler errors and panics go to handler.OnError.
func (g *Gateway) Run(ctx context.Context, handler Handler) error {
	ctx = logger.WithName(ctx, "telegram")

	config := tgbotapi.NewUpdate(0)
	config.Timeout = g.pollTimeout

	updates := g.bot.GetUpdatesChan(config)

	g.running.Store(true)
	defer g.running.Store(false)

	logger.InfoKV(ctx, deployedMessage, "bot", g.username)

	for {
		select {
		case <-ctx.Done():
			g.bot.StopReceivingUpdates()
			g.handlers.Wait()

			logger.Info(ctx, "Stopped receiving updates")

			return nil
		case update, ok := <-updates:
			if !ok {
				g.handlers.Wait()

				return fmt.Errorf("update stream closed: %w", motion.ErrGateway)
			}

			cmd, ok := toCommand(update)
			if !ok {
				continue
			}

			logger.DebugKV(ctx, "Command received", "command", cmd.Name, "identity", cmd.Identity, "recipient", cmd.Recipient)

			g.handlers.Add(1)

			go g.dispatch(ctx, handler, cmd)
		}
	}
}

// dispatch runs one command and reports its failure.
func (g *Gateway) dispatch(ctx context.Context, handler Handler, cmd motion.Command) {
	defer g.handlers.Done()

	defer func() {
		if r := recover(); r != nil {
			handler.OnError(ctx, fmt.Errorf("%s: %w: %v", cmd.Name, errHandlerPanic, r))
		}
	}()

	if err := handler.Handle(ctx, cmd); err != nil {
		handler.OnError(ctx, fmt.Errorf("%s: %w", cmd.Name, err))
	}
}

// toCommand extracts a command from a message update.
func toCommand(update tgbotapi.Update) (motion.Command, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return motion.Command{}, false
	}

	var identity motion.Identity
	if msg.From != nil {
		identity = motion.Identity(msg.From.UserName)
	}

	return motion.Command{
		Name:      "/" + msg.Command(),
		Identity:  identity,
		Recipient: motion.Recipient(msg.Chat.ID),
	}, true
}

// botLogger routes Bot API library logs to zap.
type botLogger struct {
	// ctx carries the target logger.
	ctx context.Context
}

// Println implements tgbotapi.BotLogger.
func (l botLogger) Println(v ...any) {
	logger.Warn(l.ctx, fmt.Sprint(v...))
}

// Printf implements tgbotapi.BotLogger.
func (l botLogger) Printf(format string, v ...any) {
	logger.Warnf(l.ctx, format, v...)
}
