package motion

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recipient is the chat id a message is delivered to.
type Recipient int64

// ParseRecipient parses one decimal id, ignoring surrounding whitespace.
func ParseRecipient(s string) (Recipient, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse recipient %q: %w", s, err)
	}

	return Recipient(id), nil
}

// String renders the id the way it is stored on disk.
func (r Recipient) String() string {
	return strconv.FormatInt(int64(r), 10)
}

// Identity is the handle of the user who sent a command.
type Identity string

// SensorState is the debounced state of the motion sensor.
type SensorState int

const (
	// Quiet means no motion is observed.
	Quiet SensorState = iota
	// Active means motion is observed.
	Active
)

// String returns a lowercase name for logs.
func (s SensorState) String() string {
	switch s {
	case Quiet:
		return "quiet"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// WatcherPhase is the lifecycle phase of a sensor watcher.
type WatcherPhase int

const (
	// Unarmed watchers have not been started or failed to start.
	Unarmed WatcherPhase = iota
	// Settling watchers wait for a quiet baseline.
	Settling
	// Armed watchers emit events on every debounced transition.
	Armed
)

// String returns a lowercase name for logs.
func (p WatcherPhase) String() string {
	switch p {
	case Unarmed:
		return "unarmed"
	case Settling:
		return "settling"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}

// Event is a debounced sensor transition.
type Event struct {
	// State is the state the sensor has just entered.
	State SensorState
	// At is when the transition was committed.
	At time.Time
}

// IsMotion reports whether the event is a Quiet to Active edge.
func (e Event) IsMotion() bool {
	return e.State == Active
}

// Command names understood by the coordinator.
const (
	CommandStart = "/start"
	CommandHelp  = "/help"
)

// Command is an inbound chat command.
type Command struct {
	// Name is the command including the leading slash, e.g. "/start".
	Name string
	// Identity is the sender handle used for access checks.
	Identity Identity
	// Recipient is the chat the command came from and replies go to.
	Recipient Recipient
}
