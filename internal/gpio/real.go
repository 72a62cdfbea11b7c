//go:build linux

package gpio

import (
	"fmt"
	"log"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// RealOutput drives the pin through the Linux GPIO character device.
type RealOutput struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	debug bool
}

// NewRealOutput opens the named GPIO chip (e.g. "gpiochip0").
func NewRealOutput(chipName string) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealOutput{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// Init sets debug logging of level changes.
func (r *RealOutput) Init(debug bool) error {
	if r.chip == nil {
		return fmt.Errorf("gpio chip closed")
	}
	r.debug = debug
	return nil
}

// ConfigureAsOutput requests the line as an output, initially LOW.
// Calling it again for a held pin drives it LOW.
func (r *RealOutput) ConfigureAsOutput(pin int) error {
	if line, ok := r.lines[pin]; ok {
		return line.Reconfigure(gpiocdev.AsOutput(0))
	}
	line, err := r.chip.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	r.lines[pin] = line
	if r.debug {
		log.Printf("gpio: pin %d configured as output on %s", pin, r.chip.Name)
	}
	return nil
}

// WriteLevel sets the line value.
func (r *RealOutput) WriteLevel(pin int, level transmitter.Level) error {
	line, ok := r.lines[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured as output", pin)
	}
	if err := line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	if r.debug {
		log.Printf("gpio: pin %d %s", pin, level)
	}
	return nil
}

// Close drives every held line LOW and releases it.
// Lines are left as inputs with pull-down, matching Raspberry Pi boot
// defaults, so the emitter is not left powered after exit.
func (r *RealOutput) Close() error {
	var errs []error

	for pin, line := range r.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pin %d low: %w", pin, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(r.lines, pin)
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
