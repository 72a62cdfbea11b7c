package transmitter

import "fmt"

// Transmitter generates a square wave on one output pin at the period of the
// selected frequency, in bursts of PulseWidth ticks.
//
// Tick must be called at a fixed rate; the output frequency is the tick rate
// divided by the period. Transmitter is not safe for concurrent use; the
// owner serializes Tick with the setters.
type Transmitter struct {
	pin   int
	out   PinOutput
	table FrequencyTable

	state        State
	timer        uint32
	period       uint32
	frequency    uint16
	pulseWidth   uint32
	continuous   bool
	runRequested bool
	debug        bool

	level   Level
	ticks   uint64
	counts  Counts
	lastErr error
}

// New creates a transmitter for the given pin. Call Init before ticking.
func New(pin int, out PinOutput, table FrequencyTable) *Transmitter {
	return &Transmitter{
		pin:        pin,
		out:        out,
		table:      table,
		state:      StateInit,
		pulseWidth: DefaultPulseWidth,
	}
}

// Init resets the state machine and configures the output pin.
// The period is computed from the current frequency number.
func (t *Transmitter) Init() error {
	t.state = StateInit
	t.timer = 0
	t.runRequested = false
	t.period = t.table.Period(t.frequency)
	t.level = Low
	t.ticks = 0
	t.counts = Counts{}
	t.lastErr = nil

	if err := t.out.Init(t.debug); err != nil {
		return fmt.Errorf("init output: %w", err)
	}
	if err := t.out.ConfigureAsOutput(t.pin); err != nil {
		return fmt.Errorf("configure pin %d: %w", t.pin, err)
	}
	return nil
}

// Tick advances the state machine by one step and returns any burst
// boundary events. It returns nil on most ticks.
func (t *Transmitter) Tick() []Event {
	var events []Event
	t.ticks++

	// Transition logic
	switch t.state {
	case StateInit:
		t.state = StateWait
	case StateWait:
		if !t.runRequested {
			break
		}
		if !t.continuous {
			// one burst per Run
			t.runRequested = false
		}
		t.write(High)
		// Period is only picked up between bursts.
		t.period = t.table.Period(t.frequency)
		t.timer = 0
		t.state = StateSignalHigh
		t.counts.BurstsStarted++
		events = append(events, t.event(EventBurstStart))
	case StateSignalHigh:
		// Burst length wins over the half-cycle check.
		if t.timer > t.pulseWidth {
			t.write(Low)
			events = append(events, t.endBurst())
		} else if t.timer%t.period > t.period/2 {
			t.state = StateSignalLow
			t.write(Low)
		}
	case StateSignalLow:
		if t.timer > t.pulseWidth {
			events = append(events, t.endBurst())
		} else if t.timer%t.period < t.period/2 {
			t.state = StateSignalHigh
			t.write(High)
		}
	}

	// Action logic
	switch t.state {
	case StateSignalHigh, StateSignalLow:
		t.timer++
	}

	return events
}

func (t *Transmitter) endBurst() Event {
	t.state = StateWait
	if !t.continuous {
		// Continuous mode was switched off mid-burst: don't re-arm.
		t.runRequested = false
	}
	t.counts.BurstsCompleted++
	return t.event(EventBurstEnd)
}

func (t *Transmitter) event(typ EventType) Event {
	return Event{
		Type:      typ,
		Frequency: t.frequency,
		Period:    t.period,
		Timer:     t.timer,
	}
}

func (t *Transmitter) write(level Level) {
	t.level = level
	t.counts.Edges++
	if err := t.out.WriteLevel(t.pin, level); err != nil {
		t.counts.WriteErrors++
		t.lastErr = err
	}
}

// Run requests a burst. While a one-shot burst is in flight the call is
// ignored; in continuous mode it arms the transmitter until continuous mode
// is switched off.
func (t *Transmitter) Run() {
	if !t.continuous && t.inBurst() {
		return
	}
	t.runRequested = true
}

// Running reports whether a burst is pending or in progress. A Run before
// the first Tick counts as pending, so Running can be true in StateInit.
func (t *Transmitter) Running() bool {
	return t.runRequested || t.inBurst()
}

func (t *Transmitter) inBurst() bool {
	return t.state == StateSignalHigh || t.state == StateSignalLow
}

// SetFrequencyNumber selects the frequency for the next burst. A burst in
// flight keeps the period it started with. The number is not range checked.
func (t *Transmitter) SetFrequencyNumber(n uint16) {
	t.frequency = n
}

// FrequencyNumber returns the current frequency setting.
func (t *Transmitter) FrequencyNumber() uint16 {
	return t.frequency
}

// SetContinuousMode enables back-to-back bursts. Switching it off lets the
// current burst finish and then stops.
func (t *Transmitter) SetContinuousMode(on bool) {
	t.continuous = on
}

// ContinuousMode reports whether continuous mode is on.
func (t *Transmitter) ContinuousMode() bool {
	return t.continuous
}

// SetPulseWidth sets the burst length in ticks.
func (t *Transmitter) SetPulseWidth(ticks uint32) {
	t.pulseWidth = ticks
}

// PulseWidth returns the burst length in ticks.
func (t *Transmitter) PulseWidth() uint32 {
	return t.pulseWidth
}

// SetDebug is passed to the output on the next Init.
func (t *Transmitter) SetDebug(on bool) {
	t.debug = on
}

// Debug reports the debug setting.
func (t *Transmitter) Debug() bool {
	return t.debug
}

// State returns the current state.
func (t *Transmitter) State() State {
	return t.state
}

// Timer returns the signal timer. Only meaningful during a burst.
func (t *Transmitter) Timer() uint32 {
	return t.timer
}

// Period returns the period in ticks of the current (or last) burst.
func (t *Transmitter) Period() uint32 {
	return t.period
}

// Level returns the last level written to the pin.
func (t *Transmitter) Level() Level {
	return t.level
}

// Ticks returns the number of ticks since Init.
func (t *Transmitter) Ticks() uint64 {
	return t.ticks
}

// Counts returns activity counters since Init.
func (t *Transmitter) Counts() Counts {
	return t.counts
}

// LastWriteError returns the most recent pin write error, or nil.
func (t *Transmitter) LastWriteError() error {
	return t.lastErr
}
