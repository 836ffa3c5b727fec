package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBroker binds the pipeline's named queues to RabbitMQ.
type AMQPBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// AMQPOptions configures the RabbitMQ connection.
type AMQPOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

// NewAMQPBroker dials RabbitMQ and declares the five named queues.
func NewAMQPBroker(opts AMQPOptions) (*AMQPBroker, error) {
	vhost := opts.VHost
	if vhost == "" {
		vhost = "/"
	}
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s", opts.User, opts.Password, opts.Host, opts.Port, vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, queue := range []string{SplitterQueue, ChunkerQueue, TTSQueue, StitchQueue, EventTrackerQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}

	return &AMQPBroker{conn: conn, channel: ch}, nil
}

// Publish enqueues body on the default exchange, routed by queue name.
func (b *AMQPBroker) Publish(ctx context.Context, queue string, body []byte) error {
	err := b.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Consume sets this consumer's prefetch and returns a channel of deliveries.
func (b *AMQPBroker) Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error) {
	if err := b.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch on %s: %w", queue, err)
	}

	raw, err := b.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				out <- toDelivery(msg)
			}
		}
	}()

	return out, nil
}

func toDelivery(msg amqp.Delivery) Delivery {
	return Delivery{
		Body: msg.Body,
		ack: func() error {
			return msg.Ack(false)
		},
		nack: func(requeue bool) error {
			return msg.Nack(false, requeue)
		},
	}
}

// Close tears down the channel and connection.
func (b *AMQPBroker) Close() error {
	if err := b.channel.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
