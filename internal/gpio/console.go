package gpio

import (
	"fmt"
	"io"
	"sort"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// ConsoleOutput prints pin activity to a writer instead of driving hardware.
// Used for dry runs and the waveform dump.
type ConsoleOutput struct {
	w      io.Writer
	debug  bool
	writes int
	levels map[int]transmitter.Level
	closed bool
}

// NewConsoleOutput creates a ConsoleOutput writing to w.
func NewConsoleOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w, levels: make(map[int]transmitter.Level)}
}

// Init enables per-write output when debug is true.
// Without debug, writes are only counted.
func (c *ConsoleOutput) Init(debug bool) error {
	c.debug = debug
	if debug {
		fmt.Fprintln(c.w, "gpio: console output, debug on")
	}
	return nil
}

// ConfigureAsOutput announces the pin in debug mode.
func (c *ConsoleOutput) ConfigureAsOutput(pin int) error {
	c.levels[pin] = transmitter.Low
	if c.debug {
		fmt.Fprintf(c.w, "gpio%d: output\n", pin)
	}
	return nil
}

// WriteLevel prints the new level in debug mode.
func (c *ConsoleOutput) WriteLevel(pin int, level transmitter.Level) error {
	if c.closed {
		return fmt.Errorf("gpio%d: output closed", pin)
	}
	c.write(pin, level)
	return nil
}

func (c *ConsoleOutput) write(pin int, level transmitter.Level) {
	c.writes++
	c.levels[pin] = level
	if c.debug {
		fmt.Fprintf(c.w, "gpio%d: %s\n", pin, level)
	}
}

// Writes returns the number of level writes.
func (c *ConsoleOutput) Writes() int {
	return c.writes
}

// Close drives any pin left HIGH to LOW and stops accepting writes.
func (c *ConsoleOutput) Close() error {
	if c.closed {
		return nil
	}
	pins := make([]int, 0, len(c.levels))
	for pin, level := range c.levels {
		if level == transmitter.High {
			pins = append(pins, pin)
		}
	}
	sort.Ints(pins)
	for _, pin := range pins {
		c.write(pin, transmitter.Low)
	}
	c.closed = true
	return nil
}
