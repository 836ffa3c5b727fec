// Package broker is the message-broker binding for the five named work
// queues (splitter_queue, chunker_queue, tts_queue, stitch_queue,
// event_tracker_queue). Every consumer sets prefetch=1 and acks only
// after its output is durably placed in the object store (or, for the
// tracker, after the aggregate-store mutation has been applied).
package broker

import "context"

// Delivery is one message pulled off a queue. The caller must call
// exactly one of Ack or Nack before requesting the next delivery, since
// prefetch=1 means the broker will not hand over a second message until
// the first is resolved.
type Delivery struct {
	Body []byte

	ack  func() error
	nack func(requeue bool) error
}

// Ack acknowledges successful processing.
func (d Delivery) Ack() error {
	return d.ack()
}

// Nack rejects the message. requeue=true redelivers it (transient
// failures); requeue=false discards it (malformed messages, permanent
// content failures already recorded via the tracker).
func (d Delivery) Nack(requeue bool) error {
	return d.nack(requeue)
}

// Broker is the narrow publish/consume contract every worker depends on.
type Broker interface {
	// Publish enqueues body on the named queue.
	Publish(ctx context.Context, queue string, body []byte) error

	// Consume returns a channel of deliveries from the named queue, with
	// prefetch limiting how many unacknowledged messages the broker will
	// hand to this consumer at once.
	Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error)

	// Close releases the underlying connection.
	Close() error
}

// Queue names, one per pipeline stage.
const (
	SplitterQueue     = "splitter_queue"
	ChunkerQueue      = "chunker_queue"
	TTSQueue          = "tts_queue"
	StitchQueue       = "stitch_queue"
	EventTrackerQueue = "event_tracker_queue"
)
