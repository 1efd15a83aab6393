package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/oshokin/uberwacher/internal/domain/motion"
)

const (
	// DefaultSettleWindow is how long the input must stay low before arming.
	DefaultSettleWindow = 2 * time.Second

	// DefaultDebounceWindow is how long a new level must hold before it is committed.
	DefaultDebounceWindow = 100 * time.Millisecond

	// eventBufferSize is the buffer of the outgoing event channel.
	eventBufferSize = 16
)

// Source provides a stream of raw levels. *Hub implements it.
type Source interface {
	Subscribe(ctx context.Context) (<-chan gpio.Level, error)
}

var (
	// errAlreadyStarted is returned by a second Start on the same watcher.
	errAlreadyStarted = errors.New("watcher already started")
	// errSourceClosed is returned when the level stream ends while settling.
	errSourceClosed = errors.New("level stream closed")
)

// Watcher debounces a level stream into motion events.
//
// Lifecycle: Unarmed -> Settling -> Armed{Quiet} <-> Armed{Active}.
type Watcher struct {
	// source supplies raw levels.
	source Source
	// settle is the quiet baseline required before arming.
	settle time.Duration
	// debounce is the hold time before a level change is committed.
	debounce time.Duration

	// phase holds a motion.WatcherPhase.
	phase atomic.Int32
	// state holds the committed motion.SensorState.
	state atomic.Int32
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithSettleWindow overrides DefaultSettleWindow.
func WithSettleWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.settle = d
		}
	}
}

// WithDebounceWindow overrides DefaultDebounceWindow.
func WithDebounceWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates an unarmed watcher over source.
func NewWatcher(source Source, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		source:   source,
		settle:   DefaultSettleWindow,
		debounce: DefaultDebounceWindow,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Phase returns the current lifecycle phase.
func (w *Watcher) Phase() motion.WatcherPhase {
	return motion.WatcherPhase(w.phase.Load())
}

// State returns the last committed sensor state.
func (w *Watcher) State() motion.SensorState {
	return motion.SensorState(w.state.Load())
}

// Start subscribes to the source and blocks until the input has been low
// for the settle window. There is no timeout: only ctx cancellation aborts
// the wait. On success the returned channel carries one event per debounced
// transition, strictly alternating Active and Quiet, and is closed when ctx
// ends or the source stream closes.
func (w *Watcher) Start(ctx context.Context) (<-chan motion.Event, error) {
	if !w.phase.CompareAndSwap(int32(motion.Unarmed), int32(motion.Settling)) {
		return nil, errAlreadyStarted
	}

	levels, err := w.source.Subscribe(ctx)
	if err != nil {
		w.phase.Store(int32(motion.Unarmed))

		if !errors.Is(err, motion.ErrSensorUnavailable) {
			err = fmt.Errorf("%w: %w", motion.ErrSensorUnavailable, err)
		}

		return nil, fmt.Errorf("subscribe to sensor: %w", err)
	}

	if err = w.settleDown(ctx, levels); err != nil {
		w.phase.Store(int32(motion.Unarmed))

		return nil, err
	}

	w.state.Store(int32(motion.Quiet))
	w.phase.Store(int32(motion.Armed))

	events := make(chan motion.Event, eventBufferSize)

	go w.run(ctx, levels, events)

	return events, nil
}

// settleDown returns once the stream has stayed low for the settle window.
func (w *Watcher) settleDown(ctx context.Context, levels <-chan gpio.Level) error {
	var quiet debounceTimer
	defer quiet.stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("settle sensor: %w", ctx.Err())
		case level, ok := <-levels:
			if !ok {
				return fmt.Errorf("settle sensor: %w: %w", motion.ErrSensorUnavailable, errSourceClosed)
			}

			if level == gpio.High {
				quiet.stop()
				continue
			}

			quiet.arm(w.settle)
		case <-quiet.fired():
			return nil
		}
	}
}

// run commits level changes that hold for the debounce window and emits
// one event per commit.
func (w *Watcher) run(ctx context.Context, levels <-chan gpio.Level, events chan<- motion.Event) {
	defer close(events)

	var (
		committed = gpio.Low
		pending   debounceTimer
	)

	defer pending.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case level, ok := <-levels:
			if !ok {
				return
			}

			if level == committed {
				pending.stop()
				continue
			}

			pending.arm(w.debounce)
		case <-pending.fired():
			pending.stop()

			committed = !committed

			state := motion.Quiet
			if committed == gpio.High {
				state = motion.Active
			}

			w.state.Store(int32(state))

			select {
			case events <- motion.Event{State: state, At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// debounceTimer is a one-shot timer that is armed once and kept running
// until it fires or is stopped.
type debounceTimer struct {
	// timer is nil while disarmed.
	timer *time.Timer
}

// arm starts the timer unless it is already running.
func (t *debounceTimer) arm(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
	}
}

// stop disarms the timer.
func (t *debounceTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// fired returns the timer channel, or nil (blocks forever) while disarmed.
func (t *debounceTimer) fired() <-chan time.Time {
	if t.timer == nil {
		return nil
	}

	return t.timer.C
}
