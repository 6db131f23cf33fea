package broker

import "context"

// Publisher publishes payloads to one topic. The key selects the
// room-scoped partition on the work topic; broadcast publishers pass
// an empty key.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
	Close() error
}

// Delivery is one message pulled from a topic together with its
// acknowledgement controls. Ack marks the delivery done; Nack asks the
// broker to redeliver it.
type Delivery struct {
	Key   []byte
	Value []byte

	ack  func() error
	nack func() error
}

func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d *Delivery) Nack() error {
	if d.nack == nil {
		return nil
	}
	return d.nack()
}

// NewDelivery builds a delivery with explicit ack controls. Intended
// for consumer implementations and tests.
func NewDelivery(key, value []byte, ack, nack func() error) *Delivery {
	return &Delivery{Key: key, Value: value, ack: ack, nack: nack}
}

// Handler processes one delivery. Implementations own the ack/nack
// decision; a handler that returns without acking leaves the delivery
// uncommitted.
type Handler func(ctx context.Context, d *Delivery)

// Consumer runs a poll loop over one topic, invoking the handler for
// every delivery. One invocation is in flight at a time per consumer.
type Consumer interface {
	Run(ctx context.Context) error
	Close() error
}
