// Package status provides a thread-safe status tracker for the transmitter daemon.
// It is written by the run loop and read by HTTP handlers and MQTT snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	Pin         int
	Tick        time.Duration
	Mode        string
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	// FrequenciesHz lists the output frequency for each frequency number.
	FrequenciesHz []float64
}

// TickRateHz returns the tick rate implied by the tick interval.
func (c Config) TickRateHz() float64 {
	if c.Tick <= 0 {
		return 0
	}
	return float64(time.Second) / float64(c.Tick)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         transmitter.State
	Running       bool
	Level         transmitter.Level
	Frequency     uint16
	Period        uint32
	PulseWidth    uint32
	Continuous    bool
	Ticks         uint64
	Counts        transmitter.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// FrequencyHz returns the output frequency of the current period, or 0 if unknown.
func (s Snapshot) FrequencyHz() float64 {
	rate := s.Config.TickRateHz()
	if s.Period == 0 || rate == 0 {
		return 0
	}
	return rate / float64(s.Period)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update copies the transmitter's observable state.
// Must be called from the goroutine that owns tx.
func (t *Tracker) Update(tx *transmitter.Transmitter) {
	t.mu.Lock()
	t.snap.State = tx.State()
	t.snap.Running = tx.Running()
	t.snap.Level = tx.Level()
	t.snap.Frequency = tx.FrequencyNumber()
	t.snap.Period = tx.Period()
	t.snap.PulseWidth = tx.PulseWidth()
	t.snap.Continuous = tx.ContinuousMode()
	t.snap.Ticks = tx.Ticks()
	t.snap.Counts = tx.Counts()
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
