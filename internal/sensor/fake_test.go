package sensor

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// fakeInput is an in-memory Input whose edges are pushed by tests.
type fakeInput struct {
	// mu protects level and halted.
	mu sync.Mutex
	// level is the value returned by Read.
	level gpio.Level
	// halted records whether Halt was called.
	halted bool
	// edges delivers the new level of every simulated edge.
	edges chan gpio.Level
}

// newFakeInput creates a low input. It must be called inside the test bubble.
func newFakeInput() *fakeInput {
	return &fakeInput{
		level: gpio.Low,
		edges: make(chan gpio.Level),
	}
}

// Read returns the current level.
func (f *fakeInput) Read() gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.level
}

// WaitForEdge waits for a pushed edge or the timeout.
func (f *fakeInput) WaitForEdge(timeout time.Duration) bool {
	select {
	case level := <-f.edges:
		f.mu.Lock()
		f.level = level
		f.mu.Unlock()

		return true
	case <-time.After(timeout):
		return false
	}
}

// Halt records the release of the input.
func (f *fakeInput) Halt() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.halted = true

	return nil
}

// isHalted reports whether Halt was called.
func (f *fakeInput) isHalted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.halted
}

// fakeSource hands out a single level channel controlled by the test.
type fakeSource struct {
	// levels is returned by Subscribe.
	levels chan gpio.Level
	// err, when set, is returned by Subscribe instead.
	err error
}

// Subscribe returns the test channel or the configured error.
func (f *fakeSource) Subscribe(context.Context) (<-chan gpio.Level, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.levels, nil
}
