package splitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/events"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/model"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
	"github.com/bookcast/pipeline/internal/retrier"
)

// Worker consumes split jobs and turns an uploaded EPUB into one
// chapter-text object per surviving chapter.
type Worker struct {
	Broker      broker.Broker
	ObjectStore objectstore.Adapter
	MaxRetries  int
	RetryDelay  time.Duration
}

// Run consumes the splitter queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.Broker.Consume(ctx, broker.SplitterQueue, 1)
	if err != nil {
		return fmt.Errorf("consume splitter queue: %w", err)
	}

	for d := range deliveries {
		w.handle(ctx, d)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, d broker.Delivery) {
	var job messages.SplitJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("splitter: malformed job: %v", err)
		_ = d.Nack(false)
		return
	}

	if err := w.process(ctx, job); err != nil {
		log.Printf("splitter: book %s failed: %v", job.BookUUID, err)
		_ = d.Nack(false)
		return
	}

	_ = d.Ack()
}

func (w *Worker) process(ctx context.Context, job messages.SplitJob) error {
	if err := w.notifyBookInProgress(ctx, job.BookUUID); err != nil {
		return err
	}

	var epub []byte
	err := retrier.Do(ctx, w.retries(), w.delay(), func() error {
		rc, err := w.ObjectStore.Get(ctx, objectkeys.EPUB(job.BookUUID))
		if err != nil {
			return err
		}
		defer rc.Close()
		epub, err = io.ReadAll(rc)
		return err
	})
	if err != nil {
		return fmt.Errorf("download epub: %w", err)
	}

	items, err := extractItems(epub)
	if err != nil {
		return fmt.Errorf("extract spine items: %w", err)
	}

	survivors := 0
	for _, item := range items {
		added, err := w.processItem(ctx, job.BookUUID, item)
		if err != nil {
			return err
		}
		if added {
			survivors++
		}
	}

	if survivors == 0 {
		// Every item was filtered as metadata (or the epub had none): the
		// book has no chapters to ever complete, so it fails here rather
		// than sitting in_progress forever.
		body, err := events.NewUpdateBookStatus(job.BookUUID, string(model.StatusFailed))
		if err != nil {
			return fmt.Errorf("encode update_book_status notification: %w", err)
		}
		return w.Broker.Publish(ctx, broker.EventTrackerQueue, body)
	}

	return nil
}

// processItem uploads item's chapter text and announces it, reporting
// whether it survived the metadata filter. A false, nil return means
// item was skipped as metadata, not that anything went wrong.
func (w *Worker) processItem(ctx context.Context, bookUUID string, item rawItem) (bool, error) {
	text, err := extractPlainText(item.html)
	if err != nil {
		return false, fmt.Errorf("extract text from %s: %w", item.name, err)
	}

	title := deriveTitle(item.name)
	if isMetadata(title, text) {
		return false, nil
	}

	chapterUUID := uuid.NewString()

	err = retrier.Do(ctx, w.retries(), w.delay(), func() error {
		return w.ObjectStore.Put(ctx, objectkeys.ChapterText(bookUUID, chapterUUID), strings.NewReader(text))
	})
	if err != nil {
		return false, fmt.Errorf("upload chapter text %s: %w", chapterUUID, err)
	}

	body, err := events.NewAddChapter(bookUUID, chapterUUID, title)
	if err != nil {
		return false, fmt.Errorf("encode add_chapter notification: %w", err)
	}
	if err := w.Broker.Publish(ctx, broker.EventTrackerQueue, body); err != nil {
		return false, fmt.Errorf("notify add_chapter: %w", err)
	}

	chunkJob, err := messages.Marshal(messages.ChunkJob{BookUUID: bookUUID, ChapterUUID: chapterUUID})
	if err != nil {
		return false, fmt.Errorf("encode chunker job: %w", err)
	}
	if err := w.Broker.Publish(ctx, broker.ChunkerQueue, chunkJob); err != nil {
		return false, fmt.Errorf("enqueue chunker job: %w", err)
	}

	return true, nil
}

func (w *Worker) notifyBookInProgress(ctx context.Context, bookUUID string) error {
	body, err := events.NewUpdateBookStatus(bookUUID, string(model.StatusInProgress))
	if err != nil {
		return fmt.Errorf("encode update_book_status notification: %w", err)
	}
	return w.Broker.Publish(ctx, broker.EventTrackerQueue, body)
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
