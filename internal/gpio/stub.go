//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string) (*RealOutput, error) {
	return nil, errUnsupported
}

func (r *RealOutput) Init(debug bool) error { return errUnsupported }
func (r *RealOutput) ConfigureAsOutput(pin int) error { return errUnsupported }
func (r *RealOutput) WriteLevel(pin int, level transmitter.Level) error { return errUnsupported }
func (r *RealOutput) Close() error { return nil }

// RpioOutput is not available on non-Linux platforms.
type RpioOutput struct{}

// NewRpioOutput returns an output whose Init always fails.
func NewRpioOutput() *RpioOutput {
	return &RpioOutput{}
}

func (r *RpioOutput) Init(debug bool) error { return errUnsupported }
func (r *RpioOutput) ConfigureAsOutput(pin int) error { return errUnsupported }
func (r *RpioOutput) WriteLevel(pin int, level transmitter.Level) error { return errUnsupported }
func (r *RpioOutput) Close() error { return nil }
