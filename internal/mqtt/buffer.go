package mqtt

import "log"

// outboxMsg stores a serialized MQTT message for replay after reconnection.
type outboxMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO that holds messages while disconnected.
// When full, the oldest message is overwritten.
// Not safe for concurrent use; caller must synchronize.
type outbox struct {
	msgs    []outboxMsg
	next    int // next write position
	count   int
	dropped int // messages overwritten since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{msgs: make([]outboxMsg, capacity)}
}

func (o *outbox) push(msg outboxMsg) {
	if o.count == len(o.msgs) {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", len(o.msgs))
		}
		o.dropped++
	} else {
		o.count++
	}
	o.msgs[o.next] = msg
	o.next = (o.next + 1) % len(o.msgs)
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() (msgs []outboxMsg, dropped int) {
	dropped = o.dropped
	if o.count > 0 {
		msgs = make([]outboxMsg, o.count)
		start := (o.next - o.count + len(o.msgs)) % len(o.msgs)
		for i := range msgs {
			msgs[i] = o.msgs[(start+i)%len(o.msgs)]
		}
	}
	o.count = 0
	o.next = 0
	o.dropped = 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return o.count
}
