package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	Running       bool       `json:"running"`
	Level         string     `json:"level"`
	Frequency     uint16     `json:"frequency"`
	FrequencyHz   float64    `json:"frequency_hz"`
	Period        uint32     `json:"period_ticks"`
	PulseWidth    uint32     `json:"pulse_width_ticks"`
	Continuous    bool       `json:"continuous"`
	Ticks         uint64     `json:"ticks"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transmitter counters.
type CountsJSON struct {
	BurstsStarted   int `json:"bursts_started"`
	BurstsCompleted int `json:"bursts_completed"`
	Edges           int `json:"edges"`
	WriteErrors     int `json:"write_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend       string    `json:"backend"`
	Pin           int       `json:"pin"`
	TickUs        float64   `json:"tick_us"`
	Mode          string    `json:"mode"`
	HeartbeatMs   int64     `json:"heartbeat_ms"`
	Broker        string    `json:"broker"`
	HTTPAddr      string    `json:"http_addr"`
	FrequenciesHz []float64 `json:"frequencies_hz"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	return StatusInner{
		State:         state,
		Running:       snap.Running,
		Level:         snap.Level.String(),
		Frequency:     snap.Frequency,
		FrequencyHz:   snap.FrequencyHz(),
		Period:        snap.Period,
		PulseWidth:    snap.PulseWidth,
		Continuous:    snap.Continuous,
		Ticks:         snap.Ticks,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			BurstsStarted:   snap.Counts.BurstsStarted,
			BurstsCompleted: snap.Counts.BurstsCompleted,
			Edges:           snap.Counts.Edges,
			WriteErrors:     snap.Counts.WriteErrors,
		},
		Config: ConfigJSON{
			Backend:       snap.Config.Backend,
			Pin:           snap.Config.Pin,
			TickUs:        float64(snap.Config.Tick) / float64(time.Microsecond),
			Mode:          snap.Config.Mode,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			FrequenciesHz: snap.Config.FrequenciesHz,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
