package synthesizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bookcast/pipeline/internal/broker"
	"github.com/bookcast/pipeline/internal/messages"
	"github.com/bookcast/pipeline/internal/objectkeys"
	"github.com/bookcast/pipeline/internal/objectstore"
	"github.com/bookcast/pipeline/internal/tts"
)

type fakeProvider struct {
	lastReq tts.Request
	fail    bool
	audio   []byte
}

func (f *fakeProvider) Synthesize(ctx context.Context, req tts.Request) (*tts.Response, error) {
	f.lastReq = req
	if f.fail {
		return nil, errors.New("synthesis unavailable")
	}
	audio := f.audio
	if audio == nil {
		audio = []byte("fake-audio-bytes")
	}
	return &tts.Response{AudioData: audio, Format: "mp3"}, nil
}

func (f *fakeProvider) Close() error { return nil }

func newTestStore(t *testing.T) objectstore.Adapter {
	t.Helper()
	store, err := objectstore.NewAdapter(objectstore.Config{
		Adapter: "local",
		Local:   objectstore.LocalOptions{BasePath: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	return store
}

func TestWorkerProcessUploadsAudioAndRemovesChunk(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	bookUUID, chapterUUID, index := "book-1", "chapter-1", 1
	if err := store.Put(context.Background(), objectkeys.ChunkText(bookUUID, chapterUUID, index), strings.NewReader("Hello there.")); err != nil {
		t.Fatalf("put chunk text: %v", err)
	}

	fakeBroker := broker.NewFake()
	provider := &fakeProvider{audio: []byte("synth-output")}
	w := &Worker{Broker: fakeBroker, ObjectStore: store, Provider: provider}

	job := messages.TTSJob{BookUUID: bookUUID, ChapterUUID: chapterUUID, ChunkIndex: index}
	if err := w.process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	if provider.lastReq.Text != "Hello there." {
		t.Errorf("provider got text %q, want %q", provider.lastReq.Text, "Hello there.")
	}
	if provider.lastReq.VoiceID != defaultVoiceID {
		t.Errorf("provider got voice %q, want default %q", provider.lastReq.VoiceID, defaultVoiceID)
	}

	rc, err := store.Get(context.Background(), objectkeys.ChunkAudio(bookUUID, chapterUUID, index))
	if err != nil {
		t.Fatalf("get chunk audio: %v", err)
	}
	defer rc.Close()

	notifications := fakeBroker.Published(broker.EventTrackerQueue)
	var sawInProgress, sawRemove bool
	for _, body := range notifications {
		if strings.Contains(string(body), `"operation":"update_chunk_status"`) && strings.Contains(string(body), `"in_progress"`) {
			sawInProgress = true
		}
		if strings.Contains(string(body), `"operation":"remove_chunk"`) {
			sawRemove = true
		}
	}
	if !sawInProgress {
		t.Error("expected an update_chunk_status(in_progress) notification")
	}
	if !sawRemove {
		t.Error("expected a remove_chunk notification")
	}
}

func TestWorkerProcessFailsOnSynthesisError(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	bookUUID, chapterUUID, index := "book-1", "chapter-1", 1
	if err := store.Put(context.Background(), objectkeys.ChunkText(bookUUID, chapterUUID, index), strings.NewReader("Hello there.")); err != nil {
		t.Fatalf("put chunk text: %v", err)
	}

	fakeBroker := broker.NewFake()
	provider := &fakeProvider{fail: true}
	w := &Worker{Broker: fakeBroker, ObjectStore: store, Provider: provider, RetryDelay: 1}

	job := messages.TTSJob{BookUUID: bookUUID, ChapterUUID: chapterUUID, ChunkIndex: index}
	if err := w.process(context.Background(), job); err == nil {
		t.Fatal("expected process to fail when synthesis errors")
	}

	if _, err := store.Get(context.Background(), objectkeys.ChunkAudio(bookUUID, chapterUUID, index)); err == nil {
		t.Error("expected no audio to be uploaded on synthesis failure")
	}

	for _, body := range fakeBroker.Published(broker.EventTrackerQueue) {
		if strings.Contains(string(body), `"operation":"remove_chunk"`) {
			t.Error("did not expect a remove_chunk notification on failure")
		}
	}
}

func TestHandleNacksWithRequeueOnFailure(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	fakeBroker := broker.NewFake()
	provider := &fakeProvider{fail: true}
	w := &Worker{Broker: fakeBroker, ObjectStore: store, Provider: provider, RetryDelay: 1}

	body, err := messages.Marshal(messages.TTSJob{BookUUID: "book-1", ChapterUUID: "chapter-1", ChunkIndex: 1})
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}

	if err := fakeBroker.Publish(context.Background(), broker.TTSQueue, body); err != nil {
		t.Fatalf("publish job: %v", err)
	}

	deliveries, err := fakeBroker.Consume(context.Background(), broker.TTSQueue, 1)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	d := <-deliveries
	w.handle(context.Background(), d)

	// A requeue-nack should make the job consumable again.
	select {
	case redelivered := <-deliveries:
		if string(redelivered.Body) != string(body) {
			t.Error("redelivered job body does not match original")
		}
		_ = redelivered.Nack(false)
	case <-time.After(5 * time.Second):
		t.Error("expected the failed job to be requeued for redelivery")
	}
}
