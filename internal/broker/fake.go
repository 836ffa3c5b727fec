package broker

import (
	"context"
	"sync"
)

// Fake is an in-memory Broker used in tests in place of RabbitMQ.
// Requeued messages are appended to the back of their queue, mirroring
// RabbitMQ's behaviour closely enough to exercise retry paths.
type Fake struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

// NewFake returns an empty in-memory broker.
func NewFake() *Fake {
	return &Fake{queues: make(map[string][][]byte)}
}

// Publish appends body to the named queue.
func (f *Fake) Publish(ctx context.Context, queue string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[queue] = append(f.queues[queue], body)
	return nil
}

// Published returns a copy of everything currently enqueued on queue,
// for assertions in tests.
func (f *Fake) Published(queue string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.queues[queue]))
	copy(out, f.queues[queue])
	return out
}

// Consume drains queue one message at a time, honouring prefetch=1
// semantics: the next message is only handed out after the previous one
// is acked or nacked.
func (f *Fake) Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			body, ok := f.pop(queue)
			if !ok {
				select {
				case <-ctx.Done():
					return
				default:
					return
				}
			}

			resolved := make(chan struct{})
			d := Delivery{
				Body: body,
				ack: func() error {
					close(resolved)
					return nil
				},
				nack: func(requeue bool) error {
					if requeue {
						f.mu.Lock()
						f.queues[queue] = append(f.queues[queue], body)
						f.mu.Unlock()
					}
					close(resolved)
					return nil
				},
			}

			select {
			case out <- d:
			case <-ctx.Done():
				return
			}

			select {
			case <-resolved:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (f *Fake) pop(queue string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.queues[queue]
	if len(items) == 0 {
		return nil, false
	}
	body := items[0]
	f.queues[queue] = items[1:]
	return body, true
}

// Close is a no-op for the fake broker.
func (f *Fake) Close() error {
	return nil
}
