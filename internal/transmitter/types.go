// Package transmitter contains the tick-driven state machine that emits a
// square-wave pulse train on a single digital output.
// This package has NO external dependencies (no GPIO, MQTT, OS, or clocks).
// Hardware and the frequency table are reached through interfaces.
package transmitter

import "time"

// State is the current state of the transmitter state machine.
type State string

const (
	StateInit       State = "INIT"
	StateWait       State = "WAIT"
	StateSignalHigh State = "SIGNAL_HIGH"
	StateSignalLow  State = "SIGNAL_LOW"
)

// Level is a digital output level.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// DefaultPulseWidth is the burst length in ticks: 200ms at the 100kHz device tick.
const DefaultPulseWidth = 20000

// PinOutput drives the physical output pin.
type PinOutput interface {
	// Init prepares the output backend. When debug is true the backend
	// makes level changes observable (e.g. logs them).
	Init(debug bool) error

	// ConfigureAsOutput sets the pin direction.
	ConfigureAsOutput(pin int) error

	// WriteLevel sets the pin to the given level.
	WriteLevel(pin int, level Level) error
}

// FrequencyTable maps a frequency number to a square-wave period in ticks.
// Every period must be > 0. Out-of-range numbers are a caller error.
type FrequencyTable interface {
	Period(n uint16) uint32
}

// EventType identifies a burst boundary.
type EventType string

const (
	EventBurstStart EventType = "BURST_START"
	EventBurstEnd   EventType = "BURST_END"
)

// Event is emitted by Tick when a burst starts or ends.
type Event struct {
	// Timestamp is zero when returned from Tick; callers stamp it.
	Timestamp time.Time
	Type      EventType
	Frequency uint16
	Period    uint32
	// Timer is the signal timer value at the transition.
	Timer uint32
}

// Counts tracks activity since Init.
type Counts struct {
	BurstsStarted   int
	BurstsCompleted int
	Edges           int
	WriteErrors     int
}
