// Package mqtt publishes transmitter events to MQTT with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// Topic is the MQTT topic for burst events.
const Topic = "ir/transmitter/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "ir/transmitter/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a burst event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event transmitter.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Transmitter TransmitterPayload `json:"transmitter"`
}

// TransmitterPayload contains the burst event details.
type TransmitterPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Frequency uint16 `json:"frequency"`
	Period    uint32 `json:"period_ticks"`
	Timer     uint32 `json:"timer_ticks"`
}

// FormatPayload creates the JSON payload for a burst event.
func FormatPayload(event transmitter.Event) ([]byte, error) {
	payload := Payload{
		Transmitter: TransmitterPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:     string(event.Type),
			Frequency: event.Frequency,
			Period:    event.Period,
			Timer:     event.Timer,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (OFFLINE, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(transmitter.Event) error { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error { return nil }
func (NopPublisher) IsConnected() bool { return false }
