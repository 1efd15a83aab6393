package sensor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/gpio"

	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/logger"
)

const (
	// DefaultPollInterval bounds a single edge wait so cancellation is observed.
	DefaultPollInterval = 250 * time.Millisecond

	// subscriberBufferSize is the level channel buffer of each subscriber.
	subscriberBufferSize = 64

	// dropWarnInterval throttles warnings about slow subscribers.
	dropWarnInterval = 10 * time.Second
)

// Hub owns one physical input and fans its level out to subscribers.
// The input is opened on the first subscription.
type Hub struct {
	// ctx scopes the poll goroutine and its logs.
	ctx context.Context
	// cancel stops the poll goroutine.
	cancel context.CancelFunc
	// open acquires the input.
	open OpenFunc
	// pollInterval is the edge wait timeout of one poll iteration.
	pollInterval time.Duration

	// mu protects input, subscribers and closed.
	mu sync.RWMutex
	// input is nil until a subscription opened it successfully.
	input Input
	// subscribers maps subscription id to its level channel.
	subscribers map[string]chan gpio.Level
	// closed is set by Close.
	closed bool

	// ready is true while the input is open and polled.
	ready atomic.Bool
	// done is closed when the poll goroutine exits.
	done chan struct{}
	// dropWarn throttles dropped-sample warnings.
	dropWarn rate.Sometimes
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(interval time.Duration) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.pollInterval = interval
		}
	}
}

// NewHub creates a hub that opens its input with open. The poll goroutine
// stops when ctx is cancelled or Close is called.
func NewHub(ctx context.Context, open OpenFunc, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(logger.WithName(ctx, "sensor-hub"))

	h := &Hub{
		ctx:          ctx,
		cancel:       cancel,
		open:         open,
		pollInterval: DefaultPollInterval,
		subscribers:  make(map[string]chan gpio.Level),
		done:         make(chan struct{}),
		dropWarn:     rate.Sometimes{Interval: dropWarnInterval},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Subscribe registers a new level stream. The current level is delivered
// first. The stream is closed when ctx ends or the hub is closed.
// Fails with motion.ErrSensorUnavailable when the input cannot be opened.
func (h *Hub) Subscribe(ctx context.Context) (<-chan gpio.Level, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("hub closed: %w", motion.ErrSensorUnavailable)
	}

	if h.input == nil {
		input, err := h.open()
		if err != nil {
			logger.ErrorKV(h.ctx, "Failed to open sensor input", "error", err)

			return nil, fmt.Errorf("open sensor: %w: %w", motion.ErrSensorUnavailable, err)
		}

		h.input = input
		h.ready.Store(true)

		go h.poll(input)

		logger.Info(h.ctx, "Sensor input opened")
	}

	id := uuid.NewString()
	ch := make(chan gpio.Level, subscriberBufferSize)
	ch <- h.input.Read()

	h.subscribers[id] = ch

	logger.DebugKV(h.ctx, "Subscriber added", "sub_id", id, "subscribers", len(h.subscribers))

	go func() {
		select {
		case <-ctx.Done():
			h.unsubscribe(id)
		case <-h.ctx.Done():
		}
	}()

	return ch, nil
}

// Ready reports whether the input is open and being polled.
func (h *Hub) Ready() bool {
	return h.ready.Load()
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers)
}

// Close stops polling, closes every subscriber stream and halts the input.
// It is safe to call multiple times.
func (h *Hub) Close() error {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		return nil
	}

	h.closed = true
	h.cancel()

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}

	input := h.input
	h.mu.Unlock()

	if input == nil {
		return nil
	}

	<-h.done
	h.ready.Store(false)

	if err := halt(input); err != nil {
		return fmt.Errorf("halt sensor input: %w", err)
	}

	return nil
}

// poll waits for edges and publishes the sampled level after every wait,
// so subscribers also see the level when no edge occurs.
func (h *Hub) poll(input Input) {
	defer close(h.done)

	for {
		if h.ctx.Err() != nil {
			return
		}

		edge := input.WaitForEdge(h.pollInterval)
		level := input.Read()

		if edge {
			logger.DebugKV(h.ctx, "Edge detected", "level", level)
		}

		h.publish(level)
	}
}

// publish sends level to every subscriber without blocking.
func (h *Hub) publish(level gpio.Level) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- level:
		default:
			h.dropWarn.Do(func() {
				logger.WarnKV(h.ctx, "Dropped sample for slow subscriber", "sub_id", id)
			})
		}
	}
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subscribers[id]
	if !ok {
		return
	}

	delete(h.subscribers, id)
	close(ch)

	logger.DebugKV(h.ctx, "Subscriber removed", "sub_id", id, "subscribers", len(h.subscribers))
}
