// Package tracker runs the event tracker as a single-instance consumer
// process: it decodes operations off the tracker queue and applies them
// serially through internal/events, which is the sole place aggregate
// state is written.
package tracker

import (
	"context"
	"log"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/events"
)

// Worker consumes the event tracker queue and applies each operation to
// the aggregate store. It is meant to run as exactly one instance: the
// tracker is the pipeline's single synchronisation point, and running
// more than one would let two operations race on the same emptiness
// check.
type Worker struct {
	Tracker *events.Tracker
}

// Run consumes the event tracker queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.Tracker.Broker.Consume(ctx, broker.EventTrackerQueue, 1)
	if err != nil {
		return err
	}

	for d := range deliveries {
		w.handle(ctx, d)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, d broker.Delivery) {
	op, err := events.Decode(d.Body)
	if err != nil {
		log.Printf("tracker: malformed operation: %v", err)
		_ = d.Nack(false)
		return
	}

	if err := w.Tracker.Apply(ctx, op); err != nil {
		log.Printf("tracker: apply failed: %v", err)
		_ = d.Nack(true)
		return
	}

	_ = d.Ack()
}
