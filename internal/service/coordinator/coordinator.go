package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/uberwacher/internal/access"
	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/logger"
	"github.com/oshokin/uberwacher/internal/repository/subscribers"
	"github.com/oshokin/uberwacher/internal/service/dispatcher"
)

// Starter is a started-once notification dispatcher.
// *dispatcher.Dispatcher implements it.
type Starter interface {
	Start(ctx context.Context) error
	Done() <-chan struct{}
}

// Spawner builds a new dispatcher for recipient.
type Spawner func(recipient motion.Recipient) Starter

// DefaultReplayConcurrency bounds how many stored subscribers are armed at once.
const DefaultReplayConcurrency = 8

// Coordinator handles chat commands and owns every running dispatcher.
type Coordinator struct {
	// ctx is the parent of every dispatcher context.
	ctx context.Context
	// cancel stops every dispatcher.
	cancel context.CancelFunc

	// gate checks command senders.
	gate *access.Gate
	// store persists subscribers.
	store subscribers.Repository
	// messenger sends replies.
	messenger dispatcher.Messenger
	// spawn creates dispatchers.
	spawn Spawner
	// replayConcurrency bounds parallel arming during Replay.
	replayConcurrency int

	// mu protects pending and active.
	mu sync.Mutex
	// pending holds recipients whose dispatcher is being set up.
	pending map[motion.Recipient]struct{}
	// active maps armed recipients to their running dispatcher.
	active map[motion.Recipient]*armed
}

// armed is a running dispatcher.
type armed struct {
	// cancel stops the dispatcher.
	cancel context.CancelFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithReplayConcurrency overrides DefaultReplayConcurrency.
func WithReplayConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.replayConcurrency = n
		}
	}
}

// New creates a coordinator. Dispatchers live until ctx ends or Close is called.
func New(
	ctx context.Context,
	gate *access.Gate,
	store subscribers.Repository,
	messenger dispatcher.Messenger,
	spawn Spawner,
	opts ...Option,
) *Coordinator {
	ctx, cancel := context.WithCancel(ctx)

	c := &Coordinator{
		ctx:               ctx,
		cancel:            cancel,
		gate:              gate,
		store:             store,
		messenger:         messenger,
		spawn:             spawn,
		replayConcurrency: DefaultReplayConcurrency,
		pending:           make(map[motion.Recipient]struct{}),
		active:            make(map[motion.Recipient]*armed),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Handle routes a command to its handler. Access denials are not errors
// for the transport: the sender has already been told.
func (c *Coordinator) Handle(ctx context.Context, cmd motion.Command) error {
	var err error

	switch cmd.Name {
	case motion.CommandStart:
		err = c.OnStart(ctx, cmd.Identity, cmd.Recipient)
	case motion.CommandHelp:
		err = c.OnHelp(ctx, cmd.Identity, cmd.Recipient)
	default:
		logger.DebugKV(ctx, "Ignoring unknown command", "command", cmd.Name, "identity", cmd.Identity)
	}

	if errors.Is(err, motion.ErrAccessDenied) {
		return nil
	}

	return err
}

// OnStart subscribes recipient and arms a dispatcher for it, unless it is
// already subscribed. The subscriber is persisted only after the
// dispatcher is armed; a failed append disarms it again.
func (c *Coordinator) OnStart(ctx context.Context, identity motion.Identity, recipient motion.Recipient) error {
	ctx = logger.WithKV(ctx, "command", motion.CommandStart, "identity", identity, "recipient", recipient)

	if !c.gate.Allowed(ctx, identity) {
		c.reply(ctx, recipient, motion.MessageAccessDenied)

		return motion.ErrAccessDenied
	}

	if !c.claim(recipient) {
		logger.Info(ctx, "Recipient is already being served")
		c.reply(ctx, recipient, motion.MessageAlreadySubscribed)

		return nil
	}

	defer c.release(recipient)

	subscribed, err := c.store.Contains(ctx, recipient)
	if err != nil {
		c.reply(ctx, recipient, motion.MessageStartFailed)

		return fmt.Errorf("check subscriber %s: %w", recipient, err)
	}

	if subscribed {
		logger.Info(ctx, "Recipient is already stored in the subscribers list")
		c.reply(ctx, recipient, motion.MessageAlreadySubscribed)

		return nil
	}

	cancel, err := c.arm(recipient)
	if err != nil {
		c.reply(ctx, recipient, motion.MessageStartFailed)

		return err
	}

	if err = c.store.Append(ctx, recipient); err != nil {
		cancel()
		c.reply(ctx, recipient, motion.MessageStartFailed)

		return fmt.Errorf("store subscriber %s: %w", recipient, err)
	}

	logger.Info(ctx, "Recipient subscribed")

	return nil
}

// OnHelp replies with the help text.
func (c *Coordinator) OnHelp(ctx context.Context, identity motion.Identity, recipient motion.Recipient) error {
	ctx = logger.WithKV(ctx, "command", motion.CommandHelp, "identity", identity, "recipient", recipient)

	if !c.gate.Allowed(ctx, identity) {
		c.reply(ctx, recipient, motion.MessageAccessDenied)

		return motion.ErrAccessDenied
	}

	c.reply(ctx, recipient, motion.MessageHelp)

	return nil
}

// OnError logs a failure raised while handling a command. It never propagates.
func (c *Coordinator) OnError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	logger.ErrorKV(ctx, "Command handling failed", "error", err)
}

// Replay arms a dispatcher for every stored subscriber, a bounded number at
// a time. Failures are logged per recipient and never stop the others.
// Only a failure to read the store is returned.
func (c *Coordinator) Replay(ctx context.Context) error {
	ctx = logger.WithName(ctx, "replay")

	recipients, err := c.store.Reload(ctx)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}

	logger.InfoKV(ctx, "Re-arming stored subscribers", "count", len(recipients))

	group := new(errgroup.Group)
	group.SetLimit(c.replayConcurrency)

	for _, recipient := range recipients {
		if !c.claim(recipient) {
			continue
		}

		group.Go(func() error {
			defer c.release(recipient)

			rctx := logger.WithKV(ctx, "recipient", recipient)

			if _, err := c.arm(recipient); err != nil {
				logger.ErrorKV(rctx, "Failed to re-arm subscriber", "error", err)
			}

			return nil
		})
	}

	return group.Wait()
}

// Active returns the armed recipients in ascending order.
func (c *Coordinator) Active() []motion.Recipient {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]motion.Recipient, 0, len(c.active))
	for recipient := range c.active {
		result = append(result, recipient)
	}

	slices.Sort(result)

	return result
}

// Close stops every dispatcher.
func (c *Coordinator) Close() {
	c.cancel()
}

// arm starts a dispatcher under the coordinator context and records it as
// active until it stops. The returned func disarms it.
// The dispatcher scopes its own logger by recipient.
func (c *Coordinator) arm(recipient motion.Recipient) (context.CancelFunc, error) {
	dctx, cancel := context.WithCancel(c.ctx)

	d := c.spawn(recipient)

	if err := d.Start(dctx); err != nil {
		cancel()

		return nil, fmt.Errorf("start dispatcher for %s: %w", recipient, err)
	}

	entry := &armed{cancel: cancel}

	c.mu.Lock()
	c.active[recipient] = entry
	c.mu.Unlock()

	go func() {
		<-d.Done()

		c.mu.Lock()
		if c.active[recipient] == entry {
			delete(c.active, recipient)
		}
		c.mu.Unlock()
	}()

	return cancel, nil
}

// claim marks recipient as pending. It fails when the recipient is
// already pending or armed.
func (c *Coordinator) claim(recipient motion.Recipient) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[recipient]; ok {
		return false
	}

	if _, ok := c.active[recipient]; ok {
		return false
	}

	c.pending[recipient] = struct{}{}

	return true
}

// release clears the pending mark of recipient.
func (c *Coordinator) release(recipient motion.Recipient) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, recipient)
}

// reply sends text and logs delivery failures.
func (c *Coordinator) reply(ctx context.Context, recipient motion.Recipient, text string) {
	if err := c.messenger.Send(ctx, recipient, text); err != nil {
		logger.ErrorKV(ctx, "Failed to send reply", "error", err)
	}
}
