package sensor

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/oshokin/uberwacher/internal/domain/motion"
)

// Input is an edge-triggered digital input.
// Every periph gpio.PinIn configured with edge detection satisfies it.
type Input interface {
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// OpenFunc acquires the sensor input.
type OpenFunc func() (Input, error)

// errPinNotFound is returned when the GPIO registry has no such pin.
var errPinNotFound = errors.New("gpio pin not found")

// GPIOOpener returns an OpenFunc for the BCM-numbered pin.
func GPIOOpener(pin int) OpenFunc {
	return func() (Input, error) {
		return OpenGPIO(pin)
	}
}

// OpenGPIO initialises the host drivers and configures pin as a pulled-down
// input reporting both edges, the wiring of a PIR sensor output.
func OpenGPIO(pin int) (Input, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w: %w", motion.ErrSensorUnavailable, err)
	}

	name := fmt.Sprintf("GPIO%d", pin)

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("open %s: %w: %w", name, motion.ErrSensorUnavailable, errPinNotFound)
	}

	if err := p.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure %s: %w: %w", name, motion.ErrSensorUnavailable, err)
	}

	return p, nil
}

// halt releases the input when it supports it.
func halt(input Input) error {
	h, ok := input.(interface{ Halt() error })
	if !ok {
		return nil
	}

	return h.Halt()
}
