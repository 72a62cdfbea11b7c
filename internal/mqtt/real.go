package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// outboxSize bounds the number of messages held while disconnected.
const outboxSize = 256

// RealPublisher publishes to an actual MQTT broker.
// Messages published while disconnected are queued and replayed in order
// once the connection is back.
type RealPublisher struct {
	client paho.Client
	topic  string

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	replaying bool
	everUp    bool
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout, it keeps retrying in the
// background and messages are queued meanwhile.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{
		topic:  Topic,
		outbox: newOutbox(outboxSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect replays queued messages. paho calls it on its own goroutine.
// Publishes arriving during the replay keep queuing until the outbox is
// empty, so they go out after the messages queued before them.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.replaying = true
	reconnect := p.everUp
	p.everUp = true
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if !p.connected {
			p.replaying = false
			p.mu.Unlock()
			return
		}
		msgs, dropped := p.outbox.drain()
		if len(msgs) == 0 {
			p.replaying = false
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		log.Printf("mqtt: connected, replaying %d queued messages (%d dropped)", len(msgs), dropped)
		for _, m := range msgs {
			c.Publish(m.topic, m.qos, m.retained, m.payload)
		}
	}

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			c.Publish(TopicSystem, 1, false, payload)
		}
	}
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// enqueue queues msg if disconnected or replaying and reports whether it did.
func (p *RealPublisher) enqueue(msg outboxMsg) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected && !p.replaying {
		return false
	}
	p.outbox.push(msg)
	return true
}

// Publish sends a burst event to the MQTT broker.
// QoS 0 and not waited on: this is called from the tick loop.
func (p *RealPublisher) Publish(event transmitter.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	msg := outboxMsg{topic: p.topic, payload: payload}
	if p.enqueue(msg) {
		return nil
	}
	p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	msg := outboxMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}
	if p.enqueue(msg) {
		return nil
	}
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}

	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Queued returns the number of messages waiting for a connection.
func (p *RealPublisher) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.Queued(); n > 0 {
		log.Printf("mqtt: closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
