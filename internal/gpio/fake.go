package gpio

import (
	"errors"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// Write is one recorded pin write.
type Write struct {
	Pin   int
	Level transmitter.Level
}

// FakeOutput is a test double that records pin activity.
type FakeOutput struct {
	// Writes contains every WriteLevel call in order.
	Writes []Write

	// Configured contains pins passed to ConfigureAsOutput.
	Configured []int

	// Inits counts Init calls; Debug is the last debug flag passed.
	Inits int
	Debug bool

	// Closed tracks if Close was called
	Closed bool

	// InitError, ConfigureError and WriteError, if set, are returned by the
	// matching method.
	InitError      error
	ConfigureError error
	WriteError     error

	levels map[int]transmitter.Level
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{levels: make(map[int]transmitter.Level)}
}

// Init records the debug flag.
func (f *FakeOutput) Init(debug bool) error {
	f.Inits++
	f.Debug = debug
	return f.InitError
}

// ConfigureAsOutput records the pin.
func (f *FakeOutput) ConfigureAsOutput(pin int) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.Configured = append(f.Configured, pin)
	f.levels[pin] = transmitter.Low
	return nil
}

// WriteLevel records the write. Writes to unconfigured pins fail.
func (f *FakeOutput) WriteLevel(pin int, level transmitter.Level) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if _, ok := f.levels[pin]; !ok {
		return errors.New("pin not configured as output")
	}
	f.Writes = append(f.Writes, Write{Pin: pin, Level: level})
	f.levels[pin] = level
	return nil
}

// Level returns the current level of pin.
func (f *FakeOutput) Level(pin int) transmitter.Level {
	return f.levels[pin]
}

// Close drives configured pins LOW and marks the output as closed.
func (f *FakeOutput) Close() error {
	for pin := range f.levels {
		f.levels[pin] = transmitter.Low
	}
	f.Closed = true
	return nil
}

// Reset clears recorded activity.
func (f *FakeOutput) Reset() {
	f.Writes = nil
	f.Configured = nil
	f.Inits = 0
	f.Debug = false
	f.Closed = false
	f.levels = make(map[int]transmitter.Level)
}
