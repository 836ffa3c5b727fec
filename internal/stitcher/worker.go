// Package stitcher concatenates a chapter's synthesized audio fragments,
// in ascending chunk order, into the chapter's final audio file.
package stitcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/events"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
	"github.com/bookcast/pipeline/internal/retrier"
)

// Worker consumes stitch jobs, assembles a chapter's audio from its
// chunk fragments and announces the chapter's completion.
type Worker struct {
	Broker      broker.Broker
	ObjectStore objectstore.Adapter
	MaxRetries  int
	RetryDelay  time.Duration
}

// Run consumes the stitch queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.Broker.Consume(ctx, broker.StitchQueue, 1)
	if err != nil {
		return fmt.Errorf("consume stitch queue: %w", err)
	}

	for d := range deliveries {
		w.handle(ctx, d)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, d broker.Delivery) {
	var job messages.StitchJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("stitcher: malformed job: %v", err)
		_ = d.Nack(false)
		return
	}

	if err := w.process(ctx, job); err != nil {
		log.Printf("stitcher: chapter %s failed: %v", job.ChapterUUID, err)
		_ = d.Nack(true)
		return
	}

	_ = d.Ack()
}

// process lists the chapter's audio fragments, concatenates them in
// ascending chunk order, uploads the result and removes the chapter
// from its book's outstanding set. Only one stitch job is ever
// requested per chapter, but the output key is deterministic so a
// requeued retry is safe.
func (w *Worker) process(ctx context.Context, job messages.StitchJob) error {
	var keys []string
	err := retrier.Do(ctx, w.retries(), w.delay(), func() error {
		listed, err := w.ObjectStore.List(ctx, objectkeys.ChunkAudioPrefix(job.BookUUID, job.ChapterUUID))
		if err != nil {
			return err
		}
		keys = listed
		return nil
	})
	if err != nil {
		return fmt.Errorf("list chunk audio: %w", err)
	}

	ordered, err := sortByChunkIndex(keys)
	if err != nil {
		return fmt.Errorf("order chunk audio: %w", err)
	}
	if len(ordered) == 0 {
		return fmt.Errorf("no audio fragments found for chapter %s", job.ChapterUUID)
	}

	var combined bytes.Buffer
	if err := w.concatenate(ctx, ordered, &combined); err != nil {
		return fmt.Errorf("concatenate chunk audio: %w", err)
	}

	err = retrier.Do(ctx, w.retries(), w.delay(), func() error {
		return w.ObjectStore.Put(ctx, objectkeys.ChapterAudio(job.BookUUID, job.ChapterUUID), bytes.NewReader(combined.Bytes()))
	})
	if err != nil {
		return fmt.Errorf("upload chapter audio: %w", err)
	}

	return w.notify(ctx, events.NewRemoveChapter(job.BookUUID, job.ChapterUUID))
}

// concatenate streams each fragment's bytes into w in order. MP3
// fragments are concatenable frame-by-frame, so a plain byte-level
// join is sufficient -- no re-encoding is needed.
func (w *Worker) concatenate(ctx context.Context, keys []string, dst io.Writer) error {
	for _, key := range keys {
		rc, err := w.ObjectStore.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		_, err = io.Copy(dst, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("copy %s: %w", key, err)
		}
	}
	return nil
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

// sortByChunkIndex orders keys by the numeric suffix in their
// chunk_N.mp3 basename, ascending.
func sortByChunkIndex(keys []string) ([]string, error) {
	indices := make(map[string]int, len(keys))
	for _, key := range keys {
		base := path.Base(key)
		name := strings.TrimSuffix(base, path.Ext(base))
		numeric := strings.TrimPrefix(name, "chunk_")
		n, err := strconv.Atoi(numeric)
		if err != nil {
			return nil, fmt.Errorf("parse chunk index from %q: %w", base, err)
		}
		indices[key] = n
	}

	ordered := make([]string, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool {
		return indices[ordered[i]] < indices[ordered[j]]
	})
	return ordered, nil
}
