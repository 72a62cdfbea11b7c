//go:build linux

package gpio

import (
	"fmt"
	"log"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// RpioOutput drives the pin through memory-mapped BCM2835 registers.
// Writes are much cheaper than gpiocdev ioctls, which matters at high
// tick rates.
type RpioOutput struct {
	pins  map[int]rpio.Pin
	debug bool
	open  bool
}

// NewRpioOutput creates an output; the registers are mapped by Init.
func NewRpioOutput() *RpioOutput {
	return &RpioOutput{pins: make(map[int]rpio.Pin)}
}

// Init maps the GPIO registers.
func (r *RpioOutput) Init(debug bool) error {
	r.debug = debug
	if r.open {
		return nil
	}
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("open rpio: %w", err)
	}
	r.open = true
	return nil
}

// ConfigureAsOutput sets the pin direction and drives it LOW.
func (r *RpioOutput) ConfigureAsOutput(pin int) error {
	if !r.open {
		return fmt.Errorf("rpio not initialized")
	}
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	r.pins[pin] = p
	if r.debug {
		log.Printf("gpio: rpio pin %d configured as output", pin)
	}
	return nil
}

// WriteLevel sets the pin level.
func (r *RpioOutput) WriteLevel(pin int, level transmitter.Level) error {
	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured as output", pin)
	}
	if level == transmitter.High {
		p.High()
	} else {
		p.Low()
	}
	if r.debug {
		log.Printf("gpio: rpio pin %d %s", pin, level)
	}
	return nil
}

// Close drives pins LOW, returns them to pulled-down inputs and unmaps the registers.
func (r *RpioOutput) Close() error {
	if !r.open {
		return nil
	}
	for pin, p := range r.pins {
		p.Low()
		p.Input()
		p.PullDown()
		delete(r.pins, pin)
	}
	r.open = false
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close rpio: %w", err)
	}
	return nil
}
