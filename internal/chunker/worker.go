package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/events"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/model"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
	"github.com/bookcast/pipeline/internal/retrier"
)

// Worker consumes chunk jobs and splits one chapter's text into
// size-bounded chunks, each uploaded and announced to the tracker and
// the synthesizer.
type Worker struct {
	Broker        broker.Broker
	ObjectStore   objectstore.Adapter
	MaxChunkBytes int
	MaxRetries    int
	RetryDelay    time.Duration
}

// Run consumes the chunker queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.Broker.Consume(ctx, broker.ChunkerQueue, 1)
	if err != nil {
		return fmt.Errorf("consume chunker queue: %w", err)
	}

	for d := range deliveries {
		w.handle(ctx, d)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, d broker.Delivery) {
	var job messages.ChunkJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("chunker: malformed job: %v", err)
		_ = d.Nack(false)
		return
	}

	if err := w.process(ctx, job); err != nil {
		log.Printf("chunker: chapter %s failed: %v", job.ChapterUUID, err)
		_ = d.Nack(true)
		return
	}

	_ = d.Ack()
}

func (w *Worker) process(ctx context.Context, job messages.ChunkJob) error {
	if err := w.notify(ctx, events.NewUpdateChapterStatus(job.BookUUID, job.ChapterUUID, string(model.StatusInProgress))); err != nil {
		return err
	}

	var text string
	err := retrier.Do(ctx, w.retries(), w.delay(), func() error {
		rc, err := w.ObjectStore.Get(ctx, objectkeys.ChapterText(job.BookUUID, job.ChapterUUID))
		if err != nil {
			return err
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		text = string(raw)
		return err
	})
	if err != nil {
		return fmt.Errorf("download chapter text: %w", err)
	}

	chunks := split(text, w.maxChunkBytes())
	if len(chunks) == 0 {
		return w.failChapter(ctx, job)
	}

	for i, chunk := range chunks {
		index := i + 1
		err := retrier.Do(ctx, w.retries(), w.delay(), func() error {
			return w.ObjectStore.Put(ctx, objectkeys.ChunkText(job.BookUUID, job.ChapterUUID, index), strings.NewReader(chunk))
		})
		if err != nil {
			return fmt.Errorf("upload chunk %d: %w", index, err)
		}

		if err := w.notify(ctx, events.NewAddChunk(job.BookUUID, job.ChapterUUID, index)); err != nil {
			return err
		}

		ttsJob, err := messages.Marshal(messages.TTSJob{BookUUID: job.BookUUID, ChapterUUID: job.ChapterUUID, ChunkIndex: index})
		if err != nil {
			return fmt.Errorf("encode tts job: %w", err)
		}
		if err := w.Broker.Publish(ctx, broker.TTSQueue, ttsJob); err != nil {
			return fmt.Errorf("enqueue tts job %d: %w", index, err)
		}
	}

	return nil
}

// failChapter handles the zero-chunk edge case: the chapter is marked
// failed and removed from its book's open set rather than left
// dangling forever.
func (w *Worker) failChapter(ctx context.Context, job messages.ChunkJob) error {
	if err := w.notify(ctx, events.NewUpdateChapterStatus(job.BookUUID, job.ChapterUUID, string(model.StatusFailed))); err != nil {
		return err
	}
	return w.notify(ctx, events.NewRemoveChapter(job.BookUUID, job.ChapterUUID))
}

func (w *Worker) notify(ctx context.Context, body []byte, err error) error {
	if err != nil {
		return fmt.Errorf("encode tracker notification: %w", err)
	}
	if err := w.Broker.Publish(ctx, broker.EventTrackerQueue, body); err != nil {
		return fmt.Errorf("notify tracker: %w", err)
	}
	return nil
}

func (w *Worker) maxChunkBytes() int {
	if w.MaxChunkBytes > 0 {
		return w.MaxChunkBytes
	}
	return defaultMaxChunkBytes
}

func (w *Worker) retries() int {
	if w.MaxRetries > 0 {
		return w.MaxRetries
	}
	return 3
}

func (w *Worker) delay() time.Duration {
	if w.RetryDelay > 0 {
		return w.RetryDelay
	}
	return time.Second
}
