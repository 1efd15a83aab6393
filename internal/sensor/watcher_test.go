package sensor

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/oshokin/uberwacher/internal/domain/motion"
)

var errTestHardware = errors.New("test hardware error")

// drain returns every event currently buffered in events.
func drain(events <-chan motion.Event) []motion.SensorState {
	var result []motion.SensorState

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return result
			}

			result = append(result, evt.State)
		default:
			return result
		}
	}
}

// TestWatcher_AlternatesTransitions checks one event per edge, strictly alternating.
func TestWatcher_AlternatesTransitions(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		source := &fakeSource{levels: make(chan gpio.Level, 16)}
		watcher := NewWatcher(source, WithSettleWindow(time.Second), WithDebounceWindow(50*time.Millisecond))

		require.Equal(t, motion.Unarmed, watcher.Phase())

		source.levels <- gpio.Low

		events, err := watcher.Start(ctx)
		require.NoError(t, err)
		require.Equal(t, motion.Armed, watcher.Phase())
		require.Equal(t, motion.Quiet, watcher.State())

		for _, level := range []gpio.Level{gpio.High, gpio.High, gpio.Low, gpio.High} {
			source.levels <- level

			time.Sleep(100 * time.Millisecond)
		}

		require.Equal(t, []motion.SensorState{motion.Active, motion.Quiet, motion.Active}, drain(events))
		require.Equal(t, motion.Active, watcher.State())
	})
}

// TestWatcher_DebouncesGlitches ensures a change shorter than the debounce window emits nothing.
func TestWatcher_DebouncesGlitches(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		source := &fakeSource{levels: make(chan gpio.Level, 16)}
		watcher := NewWatcher(source, WithSettleWindow(0), WithDebounceWindow(50*time.Millisecond))

		source.levels <- gpio.Low

		events, err := watcher.Start(ctx)
		require.NoError(t, err)

		source.levels <- gpio.High

		time.Sleep(10 * time.Millisecond)

		source.levels <- gpio.Low

		time.Sleep(time.Second)

		require.Empty(t, drain(events))
		require.Equal(t, motion.Quiet, watcher.State())
	})
}

// TestWatcher_SettlesOnQuietBaseline verifies Start blocks while the sensor reports activity.
func TestWatcher_SettlesOnQuietBaseline(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		source := &fakeSource{levels: make(chan gpio.Level, 16)}
		watcher := NewWatcher(source, WithSettleWindow(2*time.Second))

		started := make(chan error, 1)

		go func() {
			_, err := watcher.Start(ctx)
			started <- err
		}()

		source.levels <- gpio.High

		time.Sleep(time.Minute)
		require.Equal(t, motion.Settling, watcher.Phase())

		// A short quiet spell is not a baseline.
		source.levels <- gpio.Low

		time.Sleep(time.Second)

		source.levels <- gpio.High

		time.Sleep(5 * time.Second)
		require.Equal(t, motion.Settling, watcher.Phase())

		source.levels <- gpio.Low

		time.Sleep(3 * time.Second)
		require.NoError(t, <-started)
		require.Equal(t, motion.Armed, watcher.Phase())
	})
}

// TestWatcher_SourceUnavailable checks Start maps subscription failures to ErrSensorUnavailable.
func TestWatcher_SourceUnavailable(t *testing.T) {
	t.Parallel()

	watcher := NewWatcher(&fakeSource{err: errTestHardware})

	events, err := watcher.Start(context.Background())
	require.ErrorIs(t, err, motion.ErrSensorUnavailable)
	require.ErrorIs(t, err, errTestHardware)
	require.Nil(t, events)
	require.Equal(t, motion.Unarmed, watcher.Phase())
}

// TestWatcher_CancelWhileSettling verifies cancellation aborts the settling wait.
func TestWatcher_CancelWhileSettling(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		source := &fakeSource{levels: make(chan gpio.Level, 1)}
		source.levels <- gpio.High

		_, err := NewWatcher(source).Start(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// TestWatcher_StartTwice rejects a second Start on the same watcher.
func TestWatcher_StartTwice(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		source := &fakeSource{levels: make(chan gpio.Level, 1)}
		source.levels <- gpio.Low

		watcher := NewWatcher(source, WithSettleWindow(0))

		_, err := watcher.Start(ctx)
		require.NoError(t, err)

		_, err = watcher.Start(ctx)
		require.ErrorIs(t, err, errAlreadyStarted)
	})
}

// TestWatcher_OverHub wires a watcher to a hub polling a fake input.
func TestWatcher_OverHub(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		input := newFakeInput()
		hub := NewHub(ctx, func() (Input, error) { return input, nil }, WithPollInterval(100*time.Millisecond))

		defer func() {
			require.NoError(t, hub.Close())
		}()

		watcher := NewWatcher(hub, WithSettleWindow(time.Second), WithDebounceWindow(50*time.Millisecond))

		events, err := watcher.Start(ctx)
		require.NoError(t, err)

		input.edges <- gpio.High

		evt := <-events
		require.True(t, evt.IsMotion())

		input.edges <- gpio.Low

		evt = <-events
		require.False(t, evt.IsMotion())
	})
}
