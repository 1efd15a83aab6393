package daemon

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-ps"
)

// errAlreadyRunning is returned when another daemon owns the sensor and the bot.
var errAlreadyRunning = errors.New("another instance is already running")

// processLister returns a snapshot of the process table.
type processLister func() ([]ps.Process, error)

// ensureSingleInstance fails when another process runs the same executable.
// Two daemons would fight over the GPIO pin and the Telegram update stream.
func ensureSingleInstance(list processLister) error {
	processList, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	var executable string

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			executable = process.Executable()
			break
		}
	}

	// Not visible to ourselves, nothing to compare against.
	if executable == "" {
		return nil
	}

	for _, process := range processList {
		if process.Pid() == thisProcessID || process.Executable() != executable {
			continue
		}

		return fmt.Errorf("%w: %s (pid %d)", errAlreadyRunning, executable, process.Pid())
	}

	return nil
}
