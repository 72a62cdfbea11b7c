// Package gpio provides the transmitter output pin with hardware abstraction.
// The real implementations use the Linux GPIO character device (gpiocdev) or
// memory-mapped registers (rpio). The fake implementation allows testing
// without hardware.
package gpio

import "github.com/sweeney/ir-transmitter/internal/transmitter"

// Output drives the transmitter pin.
type Output interface {
	transmitter.PinOutput

	// Close drives the pin LOW and releases GPIO resources.
	Close() error
}

// Defaults (BCM numbering)
const (
	DefaultPin  = 18
	DefaultChip = "gpiochip0"
)

// consumer is the label shown by gpioinfo for lines we hold.
const consumer = "ir-transmitter"
