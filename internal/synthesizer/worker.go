// Package synthesizer turns one chunk's text into an audio fragment via
// an external text-to-speech collaborator, uploads the result and
// removes the chunk from its chapter's outstanding set.
package synthesizer

import (
	"bytes"
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
	"github.com/bookcast/pipeline/internal/tts"
)

const defaultVoiceID = "en-US-female"

// Worker consumes tts jobs, synthesizes one chunk's audio fragment and
// announces its removal to the tracker.
type Worker struct {
	Broker      broker.Broker
	ObjectStore objectstore.Adapter
	Provider    tts.Provider
	VoiceID     string
	MaxRetries  int
	RetryDelay  time.Duration
}

// Run consumes the tts queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.Broker.Consume(ctx, broker.TTSQueue, 1)
	if err != nil {
		return fmt.Errorf("consume tts queue: %w", err)
	}

	for d := range deliveries {
		w.handle(ctx, d)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, d broker.Delivery) {
	var job messages.TTSJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("synthesizer: malformed job: %v", err)
		_ = d.Nack(false)
		return
	}

	if err := w.process(ctx, job); err != nil {
		log.Printf("synthesizer: chunk %s:%d failed: %v", job.ChapterUUID, job.ChunkIndex, err)
		_ = d.Nack(true)
		return
	}

	_ = d.Ack()
}

// process runs the synthesizer's three-step procedure: mark the chunk
// in progress, synthesize and upload its audio, then announce the
// chunk's removal. Every step is safe to retry because the upload key
// is a deterministic function of (book, chapter, index).
func (w *Worker) process(ctx context.Context, job messages.TTSJob) error {
	if err := w.notify(ctx, events.NewUpdateChunkStatus(job.BookUUID, job.ChapterUUID, job.ChunkIndex, string(model.StatusInProgress))); err != nil {
		return err
	}

	var text string
	err := retrier.Do(ctx, w.retries(), w.delay(), func() error {
		rc, err := w.ObjectStore.Get(ctx, objectkeys.ChunkText(job.BookUUID, job.ChapterUUID, job.ChunkIndex))
		if err != nil {
			return err
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		text = string(raw)
		return err
	})
	if err != nil {
		return fmt.Errorf("download chunk text: %w", err)
	}

	if strings.TrimSpace(text) == "" {
		return w.notify(ctx, events.NewUpdateChunkStatus(job.BookUUID, job.ChapterUUID, job.ChunkIndex, string(model.StatusFailed)))
	}

	var audio *tts.Response
	err = retrier.Do(ctx, w.retries(), w.delay(), func() error {
		resp, err := w.Provider.Synthesize(ctx, tts.Request{Text: text, VoiceID: w.voiceID()})
		if err != nil {
			return err
		}
		audio = resp
		return nil
	})
	if err != nil {
		return fmt.Errorf("synthesize chunk: %w", err)
	}

	err = retrier.Do(ctx, w.retries(), w.delay(), func() error {
		return w.ObjectStore.Put(ctx, objectkeys.ChunkAudio(job.BookUUID, job.ChapterUUID, job.ChunkIndex), bytes.NewReader(audio.AudioData))
	})
	if err != nil {
		return fmt.Errorf("upload chunk audio: %w", err)
	}

	return w.notify(ctx, events.NewRemoveChunk(job.BookUUID, job.ChapterUUID, job.ChunkIndex))
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

func (w *Worker) voiceID() string {
	if w.VoiceID != "" {
		return w.VoiceID
	}
	return defaultVoiceID
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
