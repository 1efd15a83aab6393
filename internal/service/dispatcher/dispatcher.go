package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/logger"
)

// Messenger delivers text to a recipient.
type Messenger interface {
	Send(ctx context.Context, recipient motion.Recipient, text string) error
}

// Arming starts a sensor watcher and returns its event stream.
// *sensor.Watcher implements it.
type Arming interface {
	Start(ctx context.Context) (<-chan motion.Event, error)
}

// Dispatcher relays motion events of one watcher to one recipient.
type Dispatcher struct {
	// id correlates log entries of this dispatcher.
	id uuid.UUID
	// recipient receives every message.
	recipient motion.Recipient
	// messenger delivers messages.
	messenger Messenger
	// watcher produces sensor events.
	watcher Arming
	// done is closed when the relay goroutine exits.
	done chan struct{}
}

// New creates a dispatcher for recipient. It does nothing until Start.
func New(recipient motion.Recipient, messenger Messenger, watcher Arming) *Dispatcher {
	return &Dispatcher{
		id:        uuid.New(),
		recipient: recipient,
		messenger: messenger,
		watcher:   watcher,
		done:      make(chan struct{}),
	}
}

// ID returns the correlation id of the dispatcher.
func (d *Dispatcher) ID() uuid.UUID {
	return d.id
}

// Recipient returns the recipient the dispatcher serves.
func (d *Dispatcher) Recipient() motion.Recipient {
	return d.recipient
}

// Done is closed once the dispatcher stops relaying events.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Start acknowledges the request, blocks until the watcher is armed,
// announces it and spawns the relay. Relaying continues until ctx ends.
// A watcher failure is returned and no further messages are sent.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx = logger.WithName(ctx, "dispatcher")
	ctx = logger.WithKV(ctx, "recipient", d.recipient, "dispatcher_id", d.id.String())

	d.send(ctx, motion.MessageSettingUp)

	logger.Info(ctx, "Waiting for the sensor to settle")

	events, err := d.watcher.Start(ctx)
	if err != nil {
		close(d.done)

		return fmt.Errorf("arm sensor watcher: %w", err)
	}

	d.send(ctx, motion.MessageArmed)

	logger.Info(ctx, "Motion sensor armed")

	go d.relay(ctx, events)

	return nil
}

// relay forwards events in order until the stream closes.
func (d *Dispatcher) relay(ctx context.Context, events <-chan motion.Event) {
	defer close(d.done)

	for evt := range events {
		if !evt.IsMotion() {
			logger.InfoKV(ctx, "No motion detected", "at", evt.At)
			continue
		}

		logger.InfoKV(ctx, "MOTION DETECTED", "at", evt.At)

		d.send(ctx, motion.MessageMotionDetected)
	}

	logger.Info(ctx, "Dispatcher stopped")
}

// send delivers text and logs failures; gateway errors never stop the dispatcher.
func (d *Dispatcher) send(ctx context.Context, text string) {
	if err := d.messenger.Send(ctx, d.recipient, text); err != nil {
		logger.ErrorKV(ctx, "Failed to deliver message", "error", err)
	}
}
